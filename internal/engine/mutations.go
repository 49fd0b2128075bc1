package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/drivefs-project/drivefs/internal/remote"
)

// validateNew checks the preconditions shared by mknod/mkdir/create: the
// parent must be known, and path must not already exist (spec §4.7 step
// 1, "validate locally").
func (e *Engine) validateNew(path string) (parentID, name string, err error) {
	parent := parentPath(path)
	parentID, ok := e.idx.PathToID(parent)
	if !ok {
		return "", "", ErrNotFound
	}
	if _, exists := e.idx.PathToID(path); exists {
		return "", "", ErrExists
	}
	return parentID, baseName(path), nil
}

// Mknod creates an empty regular file both in the shadow cache and
// remotely (spec §4.7, mknod).
func (e *Engine) Mknod(ctx context.Context, path string) error {
	parentID, name, err := e.validateNew(path)
	if err != nil {
		return err
	}
	f, err := e.shadow.CreateFile(path, "")
	if err != nil {
		return fmt.Errorf("mknod %q: %w", path, err)
	}
	f.Close()

	rec, err := e.api.Create(ctx, name, parentID, false, inTrash(path))
	if err != nil {
		return fmt.Errorf("%w: mknod %q: %v", ErrRemote, path, err)
	}
	e.idx.SetRecord(rec.ID, rec)
	if err := e.idx.SetPath(path, rec.ID); err != nil {
		return err
	}
	e.idx.AddChild(parentID, rec.ID)
	return nil
}

// Create is like Mknod but also returns an open handle on the new shadow
// file, for the FUSE create() callback (spec §4.7, create).
func (e *Engine) Create(ctx context.Context, path string) (*os.File, error) {
	parentID, name, err := e.validateNew(path)
	if err != nil {
		return nil, err
	}
	f, err := e.shadow.CreateFile(path, "")
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}

	rec, err := e.api.Create(ctx, name, parentID, false, inTrash(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: create %q: %v", ErrRemote, path, err)
	}
	e.idx.SetRecord(rec.ID, rec)
	if err := e.idx.SetPath(path, rec.ID); err != nil {
		f.Close()
		return nil, err
	}
	e.idx.AddChild(parentID, rec.ID)
	return f, nil
}

// Mkdir creates a new folder, locally and remotely (spec §4.7, mkdir).
func (e *Engine) Mkdir(ctx context.Context, path string) error {
	parentID, name, err := e.validateNew(path)
	if err != nil {
		return err
	}
	if err := e.shadow.MkdirAll(path); err != nil {
		return fmt.Errorf("mkdir %q: %w", path, err)
	}

	rec, err := e.api.Create(ctx, name, parentID, true, inTrash(path))
	if err != nil {
		return fmt.Errorf("%w: mkdir %q: %v", ErrRemote, path, err)
	}
	e.idx.SetRecord(rec.ID, rec)
	if err := e.idx.SetPath(path, rec.ID); err != nil {
		return err
	}
	e.idx.AddChild(parentID, rec.ID)
	return nil
}

// removeFile implements _remove_file from spec §4.7: trash on first
// unlink, permanently delete on a second unlink of an already-trashed
// item. Shared by Unlink and Rmdir.
func (e *Engine) removeFile(ctx context.Context, path string) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, ok := e.idx.Record(id)
	if !ok {
		return ErrInvariant
	}

	if rec.Trashed {
		if err := e.api.Delete(ctx, id); err != nil {
			return fmt.Errorf("%w: deleting %q: %v", ErrRemote, path, err)
		}
		e.uploads.Cancel(id)
		return e.removeFromCache(rec, path)
	}

	trashedTrue := true
	patch := remote.FileRecordPatch{Trashed: &trashedTrue, Parents: []string{e.rootID}}
	updated, err := e.api.Update(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("%w: trashing %q: %v", ErrRemote, path, err)
	}
	newPath := trashPathFor(rec.Name)
	preserveCTime(updated, rec)
	return e.moveInHierarchy(path, newPath, rec, updated)
}

// Unlink implements spec §4.7's unlink.
func (e *Engine) Unlink(ctx context.Context, path string) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, _ := e.idx.Record(id)
	if rec != nil && rec.IsDir() {
		return ErrIsDir
	}
	return e.removeFile(ctx, path)
}

// Rmdir implements spec §4.7's rmdir, which first asserts the directory
// is empty in the shadow cache.
func (e *Engine) Rmdir(ctx context.Context, path string) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, _ := e.idx.Record(id)
	if rec == nil || !rec.IsDir() {
		return ErrNotDir
	}
	empty, err := e.shadow.IsEmptyDir(path)
	if err != nil {
		return fmt.Errorf("rmdir %q: %w", path, err)
	}
	if !empty {
		return ErrNotEmpty
	}
	return e.removeFile(ctx, path)
}

// Rename implements spec §4.7's rename: the identifier must exist at
// old, and no file may exist at new.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	id, ok := e.idx.PathToID(oldPath)
	if !ok {
		return ErrNotFound
	}
	if _, exists := e.idx.PathToID(newPath); exists {
		return ErrExists
	}
	newParentID, ok := e.idx.PathToID(parentPath(newPath))
	if !ok {
		return ErrNotFound
	}
	rec, ok := e.idx.Record(id)
	if !ok {
		return ErrInvariant
	}
	oldParentID := rec.ParentID()

	updated, err := e.api.Reparent(ctx, id, oldParentID, newParentID)
	if err != nil {
		return fmt.Errorf("%w: renaming %q to %q: %v", ErrRemote, oldPath, newPath, err)
	}

	newName := baseName(newPath)
	if updated.Name != newName {
		name := newName
		renamed, err := e.api.Update(ctx, id, remote.FileRecordPatch{Name: &name})
		if err != nil {
			return fmt.Errorf("%w: renaming %q to %q: %v", ErrRemote, oldPath, newPath, err)
		}
		updated = renamed
	}
	preserveCTime(updated, rec)
	return e.moveInHierarchy(oldPath, newPath, rec, updated)
}

// Truncate resizes the shadow file for path and marks it dirty for a
// later flush (spec §4.7's write/truncate, Design Note (d): these must
// actually mutate the shadow rather than being stubbed out).
func (e *Engine) Truncate(path string, size int64) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, ok := e.idx.Record(id)
	if !ok {
		return ErrInvariant
	}
	if rec.IsDir() {
		return ErrIsDir
	}
	if err := e.shadow.Truncate(path, e.localSuffix(rec), size); err != nil {
		return fmt.Errorf("truncate %q: %w", path, err)
	}
	e.uploads.MarkDirty(id, path)
	return nil
}

// MarkDirty records that path's shadow content changed locally (called
// by the FUSE write callback after each successful write) so that Flush
// knows to upload it.
func (e *Engine) MarkDirty(path string) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	e.uploads.MarkDirty(id, path)
	return nil
}

// Flush uploads path's shadow content if dirty (spec §4.7's flush). It is
// also what release() calls before closing the handle.
func (e *Engine) Flush(ctx context.Context, path string) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	return e.uploads.Flush(ctx, id, path)
}

// Utimens sets the shadow entry's access and modification times (spec
// §4.7's utimens). Not propagated remotely, per spec ("optional, and not
// required").
func (e *Engine) Utimens(path string, atime, mtime time.Time) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, _ := e.idx.Record(id)
	suffix := ""
	if rec != nil {
		suffix = e.localSuffix(rec)
	}
	return e.shadow.SetTimes(path, suffix, atime, mtime)
}

// Chmod changes the shadow entry's permission bits. Local-only; not
// propagated remotely (spec §4.7).
func (e *Engine) Chmod(path string, mode os.FileMode) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, _ := e.idx.Record(id)
	suffix := ""
	if rec != nil {
		suffix = e.localSuffix(rec)
	}
	return e.shadow.Chmod(path, suffix, mode)
}

// Chown changes the shadow entry's owning uid/gid. Local-only; not
// propagated remotely (spec §4.7).
func (e *Engine) Chown(path string, uid, gid int) error {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return ErrNotFound
	}
	rec, _ := e.idx.Record(id)
	suffix := ""
	if rec != nil {
		suffix = e.localSuffix(rec)
	}
	return e.shadow.Chown(path, suffix, uid, gid)
}

// Symlink and Link are refused outright (spec §4.7 / Non-goals).
func (e *Engine) Symlink(target, path string) error { return ErrUnsupported }
func (e *Engine) Link(target, path string) error    { return ErrUnsupported }
