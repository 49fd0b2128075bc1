// Package index implements the Metadata Index (spec §3): the engine's
// in-memory map of what it believes the remote tree looks like. It is
// intentionally dumb — three maps and a mutex — with every higher-level
// rule (what a refresh does, when a path is trashed) living in
// internal/engine instead.
package index

import (
	"fmt"
	"sync"

	"github.com/drivefs-project/drivefs/internal/remote"
)

// ErrCycle reports a parent chain that revisits an identifier, the
// cyclic-data risk noted in spec §9. Nothing in this package returns it:
// PathOf is a flat scan of path_to_id and ParentIDOf reads a single level,
// so neither walks a chain.
var ErrCycle = fmt.Errorf("index: cyclic parent chain detected")

// Index holds the three maps from spec §3: path_to_id, id_to_record and
// id_to_children. A single sync.RWMutex guards all three, rather than the
// teacher's per-map sync.Map, because the engine only ever touches the
// index from its own goroutine plus the occasional background refresh
// loop (spec §5) — one lock covering all three keeps moveInHierarchy and
// similar multi-map updates atomic without juggling lock order.
type Index struct {
	mu sync.RWMutex

	pathToID     map[string]string
	idToRecord   map[string]*remote.FileRecord
	idToChildren map[string][]string
}

// New returns an empty index with root pre-seeded, since root always
// exists and is never looked up remotely by path.
func New(rootID string) *Index {
	idx := &Index{
		pathToID:     make(map[string]string),
		idToRecord:   make(map[string]*remote.FileRecord),
		idToChildren: make(map[string][]string),
	}
	idx.pathToID["/"] = rootID
	return idx
}

// PathToID implements the path_to_id lookup.
func (idx *Index) PathToID(path string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.pathToID[path]
	return id, ok
}

// Record implements the id_to_record lookup. The returned record is a
// clone; callers must not mutate the index's copy in place.
func (idx *Index) Record(id string) (*remote.FileRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.idToRecord[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Children implements the id_to_children lookup. The bool distinguishes
// "never listed" from "listed and empty", per spec §3's "populated lazily"
// note.
func (idx *Index) Children(id string) ([]string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	children, ok := idx.idToChildren[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), children...), true
}

// SetPath records path -> id. Enforces I1 by requiring the id already
// have a record; callers must SetRecord before SetPath.
func (idx *Index) SetPath(path, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.idToRecord[id]; !ok {
		return fmt.Errorf("index: SetPath(%q, %q): %w", path, id, ErrRecordMissing)
	}
	idx.pathToID[path] = id
	return nil
}

// ErrRecordMissing is returned when a caller tries to establish a path or
// child link to an identifier with no cached record yet.
var ErrRecordMissing = fmt.Errorf("index: no record cached for identifier")

// SetRecord stores or replaces the record for id.
func (idx *Index) SetRecord(id string, r *remote.FileRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.idToRecord[id] = r.Clone()
}

// SetChildren replaces the full child list for folder id, per a directory
// refresh (spec §4.6 step 6).
func (idx *Index) SetChildren(id string, children []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.idToChildren[id] = append([]string(nil), children...)
}

// AddChild appends childID to parentID's child list if not already
// present, preserving I3.
func (idx *Index) AddChild(parentID, childID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, c := range idx.idToChildren[parentID] {
		if c == childID {
			return
		}
	}
	idx.idToChildren[parentID] = append(idx.idToChildren[parentID], childID)
}

// RemoveChild removes childID from parentID's child list, if present.
func (idx *Index) RemoveChild(parentID, childID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	kids := idx.idToChildren[parentID]
	for i, c := range kids {
		if c == childID {
			idx.idToChildren[parentID] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

// RemovePath deletes path from path_to_id. It does not touch id_to_record
// or id_to_children — callers that are forgetting an identifier entirely
// (spec §4.7's _remove_from_cache) must also call Forget.
func (idx *Index) RemovePath(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.pathToID, path)
}

// Forget removes every trace of id: its record, its child list, and (via
// the caller passing the known path) its path entry. Used when an item is
// permanently gone from the remote (spec §4.7, _remove_from_cache).
func (idx *Index) Forget(id, path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.pathToID, path)
	delete(idx.idToRecord, id)
	delete(idx.idToChildren, id)
}

// MoveInHierarchy updates the index when an identifier already known
// under oldPath is discovered to now live at newPath under a new parent,
// without re-downloading it (spec §4.6 step 6, move_in_hierarchy). It
// relinks the child lists of both the old and new parent.
func (idx *Index) MoveInHierarchy(id, oldPath, newPath, oldParentID, newParentID string, updated *remote.FileRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if oldPath != "" {
		delete(idx.pathToID, oldPath)
	}
	idx.pathToID[newPath] = id
	idx.idToRecord[id] = updated.Clone()

	if oldParentID != "" {
		kids := idx.idToChildren[oldParentID]
		for i, c := range kids {
			if c == id {
				idx.idToChildren[oldParentID] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
	}
	if newParentID != "" {
		found := false
		for _, c := range idx.idToChildren[newParentID] {
			if c == id {
				found = true
				break
			}
		}
		if !found {
			idx.idToChildren[newParentID] = append(idx.idToChildren[newParentID], id)
		}
	}
}

// PathOf performs the reverse lookup documented in spec §3 as "rare path;
// no secondary index required unless profiling demands it": a linear scan
// of path_to_id for the entry mapping to id.
func (idx *Index) PathOf(id string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for p, i := range idx.pathToID {
		if i == id {
			return p, true
		}
	}
	return "", false
}

// ParentIDOf returns the immediate parent identifier recorded for id,
// per the cached FileRecord's Parents[0]. It does not walk further up the
// chain; callers that need the full ancestor chain (e.g. to detect
// cycles per spec §9's cyclic-data-risk note) should loop over this
// themselves, tracking visited identifiers.
func (idx *Index) ParentIDOf(id string) (string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.idToRecord[id]
	if !ok {
		return "", fmt.Errorf("index: ParentIDOf(%q): %w", id, ErrRecordMissing)
	}
	return r.ParentID(), nil
}

// Snapshot returns a deep copy of all three maps, for the offline-resume
// persistence the engine writes to bbolt on a clean shutdown.
func (idx *Index) Snapshot() (pathToID map[string]string, idToRecord map[string]*remote.FileRecord, idToChildren map[string][]string) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pathToID = make(map[string]string, len(idx.pathToID))
	for k, v := range idx.pathToID {
		pathToID[k] = v
	}
	idToRecord = make(map[string]*remote.FileRecord, len(idx.idToRecord))
	for k, v := range idx.idToRecord {
		idToRecord[k] = v.Clone()
	}
	idToChildren = make(map[string][]string, len(idx.idToChildren))
	for k, v := range idx.idToChildren {
		idToChildren[k] = append([]string(nil), v...)
	}
	return
}

// Restore replaces the index's contents wholesale, used when resuming
// from a bbolt-backed snapshot at startup instead of a full crawl.
func (idx *Index) Restore(pathToID map[string]string, idToRecord map[string]*remote.FileRecord, idToChildren map[string][]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pathToID = pathToID
	idx.idToRecord = idToRecord
	idx.idToChildren = idToChildren
}
