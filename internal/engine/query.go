package engine

import (
	"context"
	"os"

	"github.com/drivefs-project/drivefs/internal/remote"
)

// Stat returns the current record for path, refreshing first if the path
// is not yet cached (spec §4.6: refresh is "called from read-side FUSE
// callbacks... after a local miss").
func (e *Engine) Stat(ctx context.Context, path string) (*remote.FileRecord, error) {
	id, ok := e.idx.PathToID(path)
	if !ok {
		if err := e.Refresh(ctx, path); err != nil {
			return nil, err
		}
		id, ok = e.idx.PathToID(path)
		if !ok {
			return nil, ErrNotFound
		}
	}
	rec, ok := e.idx.Record(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Readdir returns the records for every child of the directory at path,
// refreshing the listing first if it has never been populated.
func (e *Engine) Readdir(ctx context.Context, path string) ([]*remote.FileRecord, error) {
	id, ok := e.idx.PathToID(path)
	if !ok {
		if err := e.Refresh(ctx, path); err != nil {
			return nil, err
		}
		id, ok = e.idx.PathToID(path)
		if !ok {
			return nil, ErrNotFound
		}
	}
	rec, ok := e.idx.Record(id)
	if !ok {
		return nil, ErrNotFound
	}
	if !rec.IsDir() {
		return nil, ErrNotDir
	}

	children, listed := e.idx.Children(id)
	if !listed {
		if err := e.Refresh(ctx, path); err != nil {
			return nil, err
		}
		children, _ = e.idx.Children(id)
	}

	out := make([]*remote.FileRecord, 0, len(children))
	for _, childID := range children {
		if r, ok := e.idx.Record(childID); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Open returns a read/write handle onto path's shadow file, for the FUSE
// open() callback against an already-cached regular file.
func (e *Engine) Open(path string) (*os.File, error) {
	id, ok := e.idx.PathToID(path)
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := e.idx.Record(id)
	if !ok {
		return nil, ErrInvariant
	}
	if rec.IsDir() {
		return nil, ErrIsDir
	}
	return e.shadow.OpenFile(path, e.localSuffix(rec))
}
