package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/drivefs-project/drivefs/internal/remote"
)

// fakeRemote is an in-memory stand-in for remote.API, the mocked-remote
// harness spec §8 asks for ("Concrete end-to-end scenarios (remote
// mocked)"). It understands exactly the query grammar the engine emits:
// `'<id>' in parents`, `name = '<name>' and '<id>' in parents`, and
// `trashed = true`.
type fakeRemote struct {
	mu      sync.Mutex
	records map[string]*remote.FileRecord
	content map[string][]byte
	nextID  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[string]*remote.FileRecord),
		content: make(map[string][]byte),
	}
}

// addFolder and addFile are test-setup helpers that seed a record directly,
// bypassing Create, for building a starting tree.
func (f *fakeRemote) addFolder(id, name, parentID string) *remote.FileRecord {
	return f.add(id, name, parentID, remote.FolderMIME, nil)
}

func (f *fakeRemote) addFile(id, name, parentID, mime string, data []byte) *remote.FileRecord {
	return f.add(id, name, parentID, mime, data)
}

func (f *fakeRemote) add(id, name, parentID, mime string, data []byte) *remote.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	rec := &remote.FileRecord{
		ID:      id,
		Name:    name,
		MIME:    mime,
		Parents: []string{parentID},
		MTime:   now,
		ATime:   now,
		CTime:   now,
	}
	if data != nil {
		f.content[id] = data
		rec.Size = uint64(len(data))
		rec.MD5 = md5Hex(data)
	}
	f.records[id] = rec
	return rec.Clone()
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func extractQuoted(s string) string {
	start := strings.IndexByte(s, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return strings.ReplaceAll(s[start+1:start+1+end], "\\'", "'")
}

func (f *fakeRemote) Query(ctx context.Context, q string) ([]*remote.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if q == "trashed = true" {
		var out []*remote.FileRecord
		for _, r := range f.records {
			if r.Trashed {
				out = append(out, r.Clone())
			}
		}
		return out, nil
	}

	var name string
	parentClause := q
	if idx := strings.Index(q, " and "); idx >= 0 {
		name = extractQuoted(q[:idx])
		parentClause = q[idx+len(" and "):]
	}
	parentID := extractQuoted(strings.TrimSuffix(parentClause, " in parents"))

	var out []*remote.FileRecord
	for _, r := range f.records {
		if r.ParentID() != parentID {
			continue
		}
		if name != "" && r.Name != name {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeRemote) Get(ctx context.Context, id string) (*remote.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, remote.ErrNotExist
	}
	return r.Clone(), nil
}

func (f *fakeRemote) Create(ctx context.Context, name, parentID string, isDir, inTrash bool) (*remote.FileRecord, error) {
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("gen-%d", f.nextID)
	f.mu.Unlock()

	mime := "text/plain"
	if isDir {
		mime = remote.FolderMIME
	}
	rec := f.add(id, name, parentID, mime, nil)
	if inTrash {
		f.mu.Lock()
		f.records[id].Trashed = true
		f.mu.Unlock()
		rec = f.records[id].Clone()
	}
	return rec, nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, patch remote.FileRecordPatch) (*remote.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, remote.ErrNotExist
	}
	if patch.Name != nil {
		r.Name = *patch.Name
	}
	if patch.Trashed != nil {
		r.Trashed = *patch.Trashed
	}
	if len(patch.Parents) > 0 {
		r.Parents = append([]string(nil), patch.Parents...)
	}
	r.MTime = time.Now().UTC().Truncate(time.Second)
	return r.Clone(), nil
}

func (f *fakeRemote) Reparent(ctx context.Context, id, oldParent, newParent string) (*remote.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, remote.ErrNotExist
	}
	r.Parents = []string{newParent}
	r.MTime = time.Now().UTC().Truncate(time.Second)
	return r.Clone(), nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	delete(f.content, id)
	return nil
}

func (f *fakeRemote) Download(ctx context.Context, record *remote.FileRecord, localPath string) error {
	f.mu.Lock()
	data := f.content[record.ID]
	f.mu.Unlock()
	return os.WriteFile(localPath, data, 0644)
}

func (f *fakeRemote) Upload(ctx context.Context, localPath, id, parentID, name string) (*remote.FileRecord, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("gen-%d", f.nextID)
	}
	r, ok := f.records[id]
	if !ok {
		r = &remote.FileRecord{ID: id, Name: name, MIME: "text/plain", Parents: []string{parentID}}
		f.records[id] = r
	}
	f.content[id] = data
	r.Size = uint64(len(data))
	r.MD5 = md5Hex(data)
	r.MTime = time.Now().UTC().Add(time.Second) // strictly newer than creation time
	return r.Clone(), nil
}

// recordCount reports how many records remain, for assertions that a forget
// actually happened.
func (f *fakeRemote) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}
