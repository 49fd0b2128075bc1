package remote

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get when the identifier is "gone" — deleted or
// never existed remotely, per spec §4.2.
var ErrNotExist = errors.New("remote: item does not exist")

// API is the narrow, synchronous interface the sync engine depends on. It
// is deliberately small: everything the engine needs to reconcile local
// state against remote ground truth, and nothing about how that happens
// (HTTP, auth, retries) is visible here. See spec §4.2's operation table.
type API interface {
	// Query runs a remote search query (same grammar as Google Drive's
	// `q` parameter, e.g. `'<id>' in parents` or `name = '<name>'`) and
	// returns every matching record, trashed or not.
	Query(ctx context.Context, q string) ([]*FileRecord, error)

	// Get fetches a single record by ID. Returns ErrNotExist if the item
	// is gone.
	Get(ctx context.Context, id string) (*FileRecord, error)

	// Create makes a new, empty file or folder as a child of parentID.
	Create(ctx context.Context, name, parentID string, isDir, inTrash bool) (*FileRecord, error)

	// Update applies a partial metadata patch (rename, trash/untrash).
	Update(ctx context.Context, id string, patch FileRecordPatch) (*FileRecord, error)

	// Reparent moves id from oldParent to newParent.
	Reparent(ctx context.Context, id, oldParent, newParent string) (*FileRecord, error)

	// Delete permanently removes an item (only ever called on items
	// already trashed, per the mutation rules in spec §4.7).
	Delete(ctx context.Context, id string) error

	// Download fetches record's content (or its MIME-translated export,
	// for native documents) to localPath. Never called for folders.
	Download(ctx context.Context, record *FileRecord, localPath string) error

	// Upload pushes the content at localPath to the remote, creating the
	// item first if id is empty. Returns the authoritative record
	// afterward (ID, size, checksum, mtime).
	Upload(ctx context.Context, localPath, id, parentID, name string) (*FileRecord, error)
}
