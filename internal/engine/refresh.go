package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/drivefs-project/drivefs/internal/remote"
)

// Refresh pulls the freshest remote state for path and reconciles the
// local index and shadow cache against it (spec §4.6). It is called from
// read-side FUSE callbacks after a local miss, or explicitly by the
// background refresh loop.
func (e *Engine) Refresh(ctx context.Context, path string) error {
	switch {
	case path == "/":
		return e.refreshDirectory(ctx, "/", e.rootID)
	case path == TrashRoot:
		// Resolved Open Question (a): the original source left /.Trash
		// readdir inert. A correct implementation lists every record with
		// trashed=true, which is exactly what refreshTrash does.
		return e.refreshTrash(ctx)
	}

	id, ok := e.idx.PathToID(path)
	if !ok {
		return e.refreshUnknownPath(ctx, path)
	}
	return e.refreshKnownPath(ctx, path, id)
}

// refreshTrash lists every trashed record remotely and reconciles the
// flat trash view against it.
func (e *Engine) refreshTrash(ctx context.Context) error {
	recs, err := e.api.Query(ctx, "trashed = true")
	if err != nil {
		return fmt.Errorf("%w: refreshing trash: %v", ErrRemote, err)
	}

	var childIDs []string
	for _, rec := range recs {
		path := trashPathFor(rec.Name)
		if existingID, ok := e.idx.PathToID(path); ok {
			if existingID != rec.ID {
				log.Warn().Str("path", path).Msg("Duplicate name in trash view, keeping first-seen entry.")
				childIDs = append(childIDs, existingID)
				continue
			}
		} else if old, known := e.idx.Record(rec.ID); !known {
			if err := e.cache(ctx, rec, path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to cache trashed entry.")
				continue
			}
		} else {
			preserveCTime(rec, old)
			if oldPath, cached := e.idx.PathOf(rec.ID); cached {
				if err := e.moveInHierarchy(oldPath, path, old, rec); err != nil {
					log.Error().Err(err).Str("path", path).Msg("Failed to move entry into trash view.")
					continue
				}
			} else {
				e.idx.SetRecord(rec.ID, rec)
				if err := e.idx.SetPath(path, rec.ID); err != nil {
					log.Error().Err(err).Str("path", path).Msg("Failed to index trashed entry.")
					continue
				}
			}
		}
		childIDs = append(childIDs, rec.ID)
	}
	e.idx.SetChildren(trashID, childIDs)
	return nil
}

// escapeQueryLiteral escapes single quotes in a value interpolated into a
// Drive query string, the same minimal escaping rclone's Drive backend
// applies to its own `q` parameter values.
func escapeQueryLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

// refreshUnknownPath handles a path not present in path_to_id (spec §4.6
// step 3): traverse component-by-component from the root, querying each
// name under the parent found so far, to find the exact record.
func (e *Engine) refreshUnknownPath(ctx context.Context, path string) error {
	if inTrash(path) {
		// Trash entries are only ever discovered via refreshTrash; an
		// unknown trash path genuinely does not exist.
		return ErrNotFound
	}

	components := strings.Split(strings.Trim(path, "/"), "/")
	if len(components) == 0 || components[0] == "" {
		return ErrNotFound
	}

	parentID := e.rootID
	var rec *remote.FileRecord
	for _, c := range components {
		q := fmt.Sprintf("name = '%s' and '%s' in parents", escapeQueryLiteral(c), parentID)
		matches, err := e.api.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("%w: traversing %q: %v", ErrRemote, path, err)
		}
		if len(matches) == 0 {
			return ErrNotFound
		}
		if len(matches) > 1 {
			log.Warn().Str("path", path).Str("component", c).Msg("Duplicate name under parent, keeping first match.")
		}
		rec = matches[0]
		parentID = rec.ID
	}

	if existingPath, ok := e.idx.PathOf(rec.ID); ok && existingPath != path {
		old, _ := e.idx.Record(rec.ID)
		return e.diffAndReconcile(ctx, existingPath, old, rec)
	}
	return e.cache(ctx, rec, path)
}

// refreshKnownPath handles a path already present in path_to_id (spec
// §4.6 step 4): fetch the record fresh and reconcile.
func (e *Engine) refreshKnownPath(ctx context.Context, path, id string) error {
	old, _ := e.idx.Record(id)
	fresh, err := e.api.Get(ctx, id)
	if errors.Is(err, remote.ErrNotExist) {
		return e.removeFromCache(old, path)
	}
	if err != nil {
		return fmt.Errorf("%w: refreshing %q: %v", ErrRemote, path, err)
	}
	return e.diffAndReconcile(ctx, path, old, fresh)
}

// diffAndReconcile compares an old cached record against its freshly
// fetched state and applies the consequences from the diff table in spec
// §4.6 step 5, in order.
func (e *Engine) diffAndReconcile(ctx context.Context, path string, old, fresh *remote.FileRecord) error {
	currentPath := path
	preserveCTime(fresh, old)

	parentsChanged := old.ParentID() != fresh.ParentID()
	trashedFlipped := old.Trashed != fresh.Trashed
	renamed := old.Name != fresh.Name

	if parentsChanged || trashedFlipped || renamed {
		newPath, err := e.computePath(fresh)
		if err != nil {
			return err
		}
		if err := e.moveInHierarchy(currentPath, newPath, old, fresh); err != nil {
			return err
		}
		currentPath = newPath
	} else {
		e.idx.SetRecord(fresh.ID, fresh)
	}

	if old.MIME != fresh.MIME {
		log.Warn().Str("path", currentPath).Str("old_mime", old.MIME).Str("new_mime", fresh.MIME).
			Msg("Remote mime type changed; this should never happen, skipping.")
	}

	if fresh.MTime.After(old.MTime) {
		suffix := e.localSuffix(fresh)
		lpath := e.shadow.LocalPath(currentPath, suffix)
		if !fresh.IsDir() {
			if err := e.api.Download(ctx, fresh, lpath); err != nil {
				return fmt.Errorf("%w: re-downloading %q: %v", ErrRemote, currentPath, err)
			}
		}
		e.idx.SetRecord(fresh.ID, fresh)
		if err := e.shadow.SetTimes(currentPath, suffix, fresh.ATime, fresh.MTime); err != nil {
			log.Warn().Err(err).Str("path", currentPath).Msg("Could not update shadow cache times.")
		}
	}

	if fresh.IsDir() {
		return e.refreshDirectory(ctx, currentPath, fresh.ID)
	}
	return nil
}

// computePath recomputes rec's path from its current parent chain and
// trashed flag (spec §4.6 step 5's "compute new path from new parent
// chain").
func (e *Engine) computePath(rec *remote.FileRecord) (string, error) {
	if rec.Trashed {
		return trashPathFor(rec.Name), nil
	}
	if rec.ParentID() == "" || rec.ParentID() == e.rootID {
		return joinPath("/", rec.Name), nil
	}
	parentPath, ok := e.idx.PathOf(rec.ParentID())
	if !ok {
		return "", fmt.Errorf("%w: parent %q of %q is not cached", ErrInvariant, rec.ParentID(), rec.ID)
	}
	return joinPath(parentPath, rec.Name), nil
}

// moveInHierarchy relocates a cached file's shadow copy and index entries
// to a new path, per the GLOSSARY definition of the same name. It renames
// the shadow entry only if the path actually changed.
func (e *Engine) moveInHierarchy(oldPath, newPath string, old, fresh *remote.FileRecord) error {
	if oldPath != newPath {
		oldSuffix := e.localSuffix(old)
		newSuffix := e.localSuffix(fresh)
		if e.shadow.Exists(oldPath, oldSuffix) {
			if err := e.shadow.Rename(oldPath, oldSuffix, newPath, newSuffix); err != nil {
				return fmt.Errorf("moving shadow entry %q -> %q: %w", oldPath, newPath, err)
			}
		}
	}
	e.idx.MoveInHierarchy(fresh.ID, oldPath, newPath, e.childKey(old), e.childKey(fresh), fresh)
	return nil
}

// refreshDirectory reconciles folder id's children at path against the
// remote listing (spec §4.6 step 6).
func (e *Engine) refreshDirectory(ctx context.Context, path, id string) error {
	recs, err := e.api.Query(ctx, fmt.Sprintf("'%s' in parents", id))
	if err != nil {
		return fmt.Errorf("%w: listing %q: %v", ErrRemote, path, err)
	}

	byID := make(map[string]*remote.FileRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	oldChildren, _ := e.idx.Children(id)
	oldSet := make(map[string]bool, len(oldChildren))
	for _, c := range oldChildren {
		oldSet[c] = true
	}

	finalChildren := make([]string, 0, len(recs))
	for childID, rec := range byID {
		if !rec.Trashed {
			finalChildren = append(finalChildren, childID)
		}
		if oldSet[childID] {
			continue
		}
		if oldRec, known := e.idx.Record(childID); known {
			oldPath, _ := e.idx.PathOf(childID)
			newPath := e.computeChildPath(path, rec)
			preserveCTime(rec, oldRec)
			if err := e.moveInHierarchy(oldPath, newPath, oldRec, rec); err != nil {
				return err
			}
			continue
		}
		childPath := e.computeChildPath(path, rec)
		if _, exists := e.idx.PathToID(childPath); exists {
			log.Warn().Str("path", childPath).Msg("Duplicate name under parent, keeping first-seen entry.")
			continue
		}
		if err := e.cache(ctx, rec, childPath); err != nil {
			log.Error().Err(err).Str("path", childPath).Msg("Failed to cache new child during directory refresh.")
		}
	}

	for _, oldID := range oldChildren {
		if _, stillThere := byID[oldID]; stillThere {
			continue
		}
		oldRec, _ := e.idx.Record(oldID)
		oldPath, _ := e.idx.PathOf(oldID)

		fresh, err := e.api.Get(ctx, oldID)
		if errors.Is(err, remote.ErrNotExist) {
			if err := e.removeFromCache(oldRec, oldPath); err != nil {
				log.Error().Err(err).Str("path", oldPath).Msg("Failed to remove vanished entry.")
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: fetching %q: %v", ErrRemote, oldID, err)
		}
		newPath, err := e.computePath(fresh)
		if err != nil {
			return err
		}
		preserveCTime(fresh, oldRec)
		if err := e.moveInHierarchy(oldPath, newPath, oldRec, fresh); err != nil {
			return err
		}
	}

	e.idx.SetChildren(id, finalChildren)
	return nil
}
