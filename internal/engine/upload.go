package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// uploadBucket is the bbolt bucket used to persist the set of dirty
// (unflushed) paths across restarts, the same role the teacher's
// upload_manager.go gives its own bucket: resuming uploads that were
// still in flight when the process last stopped.
const uploadBucket = "pendingUploads"

// maxUploadRetries bounds how many times the retry loop will re-attempt a
// single dirty file before giving up and logging it as abandoned,
// mirroring the teacher's bounded retry count in uploadLoop.
const maxUploadRetries = 10

// UploadManager tracks which cached files have local writes not yet
// reflected remotely, and flushes them — on demand (Flush, called from
// the FUSE release/flush path) or periodically (RetryLoop, for writes
// that failed to flush because the remote was briefly unreachable).
type UploadManager struct {
	engine *Engine

	mu      sync.Mutex
	dirty   map[string]string // id -> path
	retries map[string]int

	db *bbolt.DB
}

// NewUploadManager constructs an UploadManager with no persistence. Call
// AttachDB afterward to enable crash-resume.
func NewUploadManager(e *Engine) *UploadManager {
	return &UploadManager{
		engine:  e,
		dirty:   make(map[string]string),
		retries: make(map[string]int),
	}
}

// AttachDB wires a bbolt database into the manager for dead-letter
// persistence and loads any dirty entries left over from a previous,
// uncleanly-terminated run.
func (um *UploadManager) AttachDB(db *bbolt.DB) error {
	um.mu.Lock()
	defer um.mu.Unlock()
	um.db = db

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(uploadBucket))
		if err != nil {
			return fmt.Errorf("creating upload bucket: %w", err)
		}
		return b.ForEach(func(k, v []byte) error {
			um.dirty[string(k)] = string(v)
			return nil
		})
	})
}

func (um *UploadManager) persist(id, path string) {
	if um.db == nil {
		return
	}
	if err := um.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(uploadBucket))
		if b == nil {
			return nil
		}
		return b.Put([]byte(id), []byte(path))
	}); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Could not persist dirty upload marker.")
	}
}

func (um *UploadManager) forget(id string) {
	if um.db == nil {
		return
	}
	if err := um.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(uploadBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	}); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Could not clear dirty upload marker.")
	}
}

// MarkDirty records that id's shadow content at path has unflushed local
// changes.
func (um *UploadManager) MarkDirty(id, path string) {
	um.mu.Lock()
	um.dirty[id] = path
	um.mu.Unlock()
	um.persist(id, path)
}

// Cancel drops any pending dirty marker for id, used when the file is
// deleted before it was ever flushed.
func (um *UploadManager) Cancel(id string) {
	um.mu.Lock()
	delete(um.dirty, id)
	delete(um.retries, id)
	um.mu.Unlock()
	um.forget(id)
}

// Flush uploads id's shadow content if it is marked dirty. A clean id is
// a no-op, since flush/release are called unconditionally by FUSE even
// when nothing changed.
func (um *UploadManager) Flush(ctx context.Context, id, path string) error {
	um.mu.Lock()
	_, dirty := um.dirty[id]
	um.mu.Unlock()
	if !dirty {
		return nil
	}

	rec, ok := um.engine.idx.Record(id)
	if !ok {
		return ErrInvariant
	}
	lpath := um.engine.shadow.LocalPath(path, um.engine.localSuffix(rec))

	uploaded, err := um.engine.api.Upload(ctx, lpath, id, rec.ParentID(), rec.Name)
	if err != nil {
		return fmt.Errorf("%w: uploading %q: %v", ErrRemote, path, err)
	}
	preserveCTime(uploaded, rec)
	um.engine.idx.SetRecord(id, uploaded)

	um.mu.Lock()
	delete(um.dirty, id)
	delete(um.retries, id)
	um.mu.Unlock()
	um.forget(id)
	return nil
}

// RetryLoop periodically re-attempts to flush every still-dirty file,
// for writes whose original flush failed because the remote was briefly
// unreachable. It gives up on (and logs) a file after maxUploadRetries
// consecutive failures, the same bounded-retry shape as the teacher's
// uploadLoop.
func (um *UploadManager) RetryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			um.retryAll(ctx)
		}
	}
}

func (um *UploadManager) retryAll(ctx context.Context) {
	um.mu.Lock()
	pending := make(map[string]string, len(um.dirty))
	for id, path := range um.dirty {
		pending[id] = path
	}
	um.mu.Unlock()

	for id, path := range pending {
		if err := um.Flush(ctx, id, path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Retrying failed upload later.")
			um.mu.Lock()
			um.retries[id]++
			tooMany := um.retries[id] >= maxUploadRetries
			um.mu.Unlock()
			if tooMany {
				log.Error().Str("path", path).Int("attempts", maxUploadRetries).
					Msg("Giving up on uploading file after repeated failures.")
				um.Cancel(id)
			}
		}
	}
}

// pendingCount reports how many files are currently dirty, mainly for
// tests.
func (um *UploadManager) pendingCount() int {
	um.mu.Lock()
	defer um.mu.Unlock()
	return len(um.dirty)
}
