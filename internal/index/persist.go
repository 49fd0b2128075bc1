package index

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/drivefs-project/drivefs/internal/remote"
)

// snapshotBucket and the three keys within it hold the index's offline-
// resume state, the same bbolt-as-dead-letter-store pattern the upload
// manager uses for its own dirty-path bucket (internal/engine/upload.go).
const (
	snapshotBucket      = "indexSnapshot"
	snapshotPathToIDKey = "pathToID"
	snapshotRecordsKey  = "idToRecord"
	snapshotChildrenKey = "idToChildren"
)

// Persist writes a full Snapshot of the index into db, overwriting
// whatever snapshot was there before. Called at clean shutdown so the
// next mount can Restore instead of re-crawling the whole remote tree.
func (idx *Index) Persist(db *bbolt.DB) error {
	pathToID, idToRecord, idToChildren := idx.Snapshot()

	pathToIDBytes, err := json.Marshal(pathToID)
	if err != nil {
		return fmt.Errorf("index: marshaling pathToID snapshot: %w", err)
	}
	idToRecordBytes, err := json.Marshal(idToRecord)
	if err != nil {
		return fmt.Errorf("index: marshaling idToRecord snapshot: %w", err)
	}
	idToChildrenBytes, err := json.Marshal(idToChildren)
	if err != nil {
		return fmt.Errorf("index: marshaling idToChildren snapshot: %w", err)
	}

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		if err != nil {
			return fmt.Errorf("index: creating snapshot bucket: %w", err)
		}
		if err := b.Put([]byte(snapshotPathToIDKey), pathToIDBytes); err != nil {
			return err
		}
		if err := b.Put([]byte(snapshotRecordsKey), idToRecordBytes); err != nil {
			return err
		}
		return b.Put([]byte(snapshotChildrenKey), idToChildrenBytes)
	})
}

// Load reads back a snapshot written by Persist and Restores it into idx.
// It reports ok=false (with a nil error) when db has no snapshot bucket
// yet, the normal case on a first-ever mount, so the caller knows to fall
// back to a full crawl instead.
func (idx *Index) Load(db *bbolt.DB) (ok bool, err error) {
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(snapshotBucket))
		if b == nil {
			return nil
		}
		pathToIDBytes := b.Get([]byte(snapshotPathToIDKey))
		idToRecordBytes := b.Get([]byte(snapshotRecordsKey))
		idToChildrenBytes := b.Get([]byte(snapshotChildrenKey))
		if pathToIDBytes == nil || idToRecordBytes == nil || idToChildrenBytes == nil {
			return nil
		}

		var pathToID map[string]string
		if err := json.Unmarshal(pathToIDBytes, &pathToID); err != nil {
			return fmt.Errorf("index: unmarshaling pathToID snapshot: %w", err)
		}
		idToRecord := make(map[string]*remote.FileRecord)
		if err := json.Unmarshal(idToRecordBytes, &idToRecord); err != nil {
			return fmt.Errorf("index: unmarshaling idToRecord snapshot: %w", err)
		}
		idToChildren := make(map[string][]string)
		if err := json.Unmarshal(idToChildrenBytes, &idToChildren); err != nil {
			return fmt.Errorf("index: unmarshaling idToChildren snapshot: %w", err)
		}

		idx.Restore(pathToID, idToRecord, idToChildren)
		ok = true
		return nil
	})
	return ok, err
}
