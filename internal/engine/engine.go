// Package engine implements the Sync Engine (spec §4.5–§4.7): the
// coordinator that reconciles the Metadata Index and Shadow Cache against
// the Remote API Facade. It is the hard core of the system; everything
// else (FUSE glue, CLI, config) calls into an Engine and nothing else.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/drivefs-project/drivefs/internal/index"
	"github.com/drivefs-project/drivefs/internal/mimemap"
	"github.com/drivefs-project/drivefs/internal/remote"
	"github.com/drivefs-project/drivefs/internal/shadow"
)

// trashID is a synthetic identifier used as the id_to_children key for
// the trash view, which has no single remote folder backing it.
const trashID = "__trash__"

// Engine coordinates the index, shadow cache and remote for one mounted
// drive. It assumes single-threaded use (spec §5): callers serialize
// FUSE callbacks before invoking engine methods.
type Engine struct {
	api    remote.API
	idx    *index.Index
	shadow *shadow.Cache
	mimes  *mimemap.Table
	rootID string

	uploads *UploadManager
}

// New constructs an Engine. rootID is the remote identifier of the
// account's drive root.
func New(api remote.API, shadowCache *shadow.Cache, mimes *mimemap.Table, rootID string) *Engine {
	idx := index.New(rootID)
	idx.SetRecord(rootID, &remote.FileRecord{
		ID:   rootID,
		Name: "",
		MIME: remote.FolderMIME,
	})
	idx.SetRecord(trashID, &remote.FileRecord{
		ID:   trashID,
		Name: ".Trash",
		MIME: remote.FolderMIME,
	})
	if err := idx.SetPath(TrashRoot, trashID); err != nil {
		// Cannot happen: the record above was just set.
		panic(err)
	}

	e := &Engine{
		api:    api,
		idx:    idx,
		shadow: shadowCache,
		mimes:  mimes,
		rootID: rootID,
	}
	e.uploads = NewUploadManager(e)
	return e
}

// Index exposes the underlying Metadata Index, mainly for tests and for
// the offline-resume snapshot written at shutdown.
func (e *Engine) Index() *index.Index { return e.idx }

// Shadow exposes the underlying Shadow Cache, for the fusefront adapter
// to open real file descriptors against.
func (e *Engine) Shadow() *shadow.Cache { return e.shadow }

// AttachUploadDB wires a bbolt database into the engine's upload manager
// for crash-resume of unflushed writes (the same bbolt state database of
// spec §6.2 that holds the index snapshot; it is cache-dir-local state, not
// user config, mirroring the teacher's own bbolt-backed upload queue).
func (e *Engine) AttachUploadDB(db *bbolt.DB) error {
	return e.uploads.AttachDB(db)
}

// PersistSnapshot writes the current index to db, for a clean-shutdown
// offline-resume snapshot (spec §6.2's bbolt state database).
func (e *Engine) PersistSnapshot(db *bbolt.DB) error {
	return e.idx.Persist(db)
}

// RestoreSnapshot loads a previously persisted index from db. It reports
// ok=false when db holds no snapshot yet, so the caller knows to Crawl
// instead.
func (e *Engine) RestoreSnapshot(db *bbolt.DB) (ok bool, err error) {
	return e.idx.Load(db)
}

// RefreshLoop periodically refreshes "/" in the background, modeled on
// the teacher's DeltaLoop: a ticker that re-walks the tree so that
// changes made from other clients are eventually noticed even without a
// FUSE callback forcing a refresh.
func (e *Engine) RefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Refresh(ctx, "/"); err != nil {
				log.Warn().Err(err).Msg("Background refresh failed; will retry next tick.")
			}
		}
	}
}

// UploadRetryLoop runs the upload manager's periodic retry of dirty
// files that failed to flush on their first attempt.
func (e *Engine) UploadRetryLoop(ctx context.Context, interval time.Duration) {
	e.uploads.RetryLoop(ctx, interval)
}

// localSuffix returns the shadow-cache filename suffix for a record:
// empty for folders and ordinary files, the MIME-translated extension
// for native documents (invariant I6).
func (e *Engine) localSuffix(r *remote.FileRecord) string {
	if r.IsDir() {
		return ""
	}
	_, ext, ok := e.mimes.Translate(r.MIME)
	if !ok {
		return ""
	}
	return ext
}

// cache materializes record at path: downloads or mkdirs the shadow
// entry, sets its times, and records it in all three index maps. This is
// the one place new identifiers enter the index (spec §4.5 step 3 /
// §4.6's "cache it fresh").
func (e *Engine) cache(ctx context.Context, record *remote.FileRecord, path string) error {
	suffix := e.localSuffix(record)

	if record.IsDir() {
		if err := e.shadow.MkdirAll(path); err != nil {
			return fmt.Errorf("caching %q: %w", path, err)
		}
	} else {
		lpath := e.shadow.LocalPath(path, suffix)
		if err := e.shadow.MkdirAll(parentPath(path)); err != nil {
			return fmt.Errorf("caching %q: %w", path, err)
		}
		if err := e.api.Download(ctx, record, lpath); err != nil {
			return fmt.Errorf("%w: downloading %q: %v", ErrRemote, path, err)
		}
	}

	e.idx.SetRecord(record.ID, record)
	if err := e.idx.SetPath(path, record.ID); err != nil {
		return fmt.Errorf("caching %q: %w", path, err)
	}
	if key := e.childKey(record); key != "" {
		e.idx.AddChild(key, record.ID)
	}
	if err := e.shadow.SetTimes(path, suffix, record.ATime, record.MTime); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not set shadow cache times.")
	}
	return nil
}

// childKey returns the id_to_children key a record should be filed under:
// trashID for anything trashed, regardless of its raw remote parent, so
// that trashed entries surface only via the trash view and not also
// under their original folder (spec §4.6 step 2).
func (e *Engine) childKey(record *remote.FileRecord) string {
	if record.Trashed {
		return trashID
	}
	return record.ParentID()
}

// preserveCTime pins fresh's ctime at old's, since Drive has no ctime of its
// own (spec §3 EXPANSION): it is synthesized from modifiedTime the first
// time a record is seen and must not drift to the latest modifiedTime on
// every later refresh.
func preserveCTime(fresh, old *remote.FileRecord) {
	fresh.CTime = old.CTime
}

// Crawl performs the initial BFS materialization of the remote tree
// (spec §4.5), starting from the drive root. It should be called once,
// at mount time, before serving any FUSE callbacks.
func (e *Engine) Crawl(ctx context.Context) error {
	type queued struct {
		path string
		id   string
	}
	queue := []queued{{"/", e.rootID}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := e.api.Query(ctx, fmt.Sprintf("'%s' in parents", cur.id))
		if err != nil {
			return fmt.Errorf("%w: crawling %q: %v", ErrRemote, cur.path, err)
		}

		var childIDs []string
		for _, rec := range children {
			childPath := e.computeChildPath(cur.path, rec)

			if _, exists := e.idx.PathToID(childPath); exists {
				log.Warn().Str("path", childPath).Msg("Duplicate name under parent during crawl, keeping first-seen entry.")
				continue
			}
			if err := e.cache(ctx, rec, childPath); err != nil {
				log.Error().Err(err).Str("path", childPath).Msg("Failed to cache entry during crawl.")
				continue
			}
			if !rec.Trashed {
				childIDs = append(childIDs, rec.ID)
			}
			if rec.IsDir() {
				queue = append(queue, queued{childPath, rec.ID})
			}
		}
		e.idx.SetChildren(cur.id, childIDs)
	}
	return nil
}

// computeChildPath decides where a child record belongs: the trash view
// if it's trashed and we aren't already walking inside /.Trash, otherwise
// a normal child of parentPath (spec §4.5 step 2).
func (e *Engine) computeChildPath(parentPath string, rec *remote.FileRecord) string {
	if rec.Trashed && !inTrash(parentPath) {
		return trashPathFor(rec.Name)
	}
	return joinPath(parentPath, rec.Name)
}

// removeFromCache permanently forgets rec, deleting its shadow entry and
// every index trace (spec §4.6 step 4 / §9's _remove_from_cache, with the
// id_to_children typo from the original fixed by construction here since
// Forget touches the correct map).
func (e *Engine) removeFromCache(rec *remote.FileRecord, path string) error {
	if rec == nil {
		return nil
	}
	var err error
	if rec.IsDir() {
		err = e.shadow.RemoveAll(path)
	} else {
		err = e.shadow.Remove(path, e.localSuffix(rec))
	}
	if key := e.childKey(rec); key != "" {
		e.idx.RemoveChild(key, rec.ID)
	}
	e.idx.Forget(rec.ID, path)
	if err != nil {
		return fmt.Errorf("removing shadow entry for %q: %w", path, err)
	}
	return nil
}
