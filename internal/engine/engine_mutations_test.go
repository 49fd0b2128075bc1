package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario 3 (spec §8): trash then permanently delete.
func TestUnlinkTrashesThenPurges(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	fake.addFolder("f1", "F", "root")
	fake.addFile("b1", "B", "f1", "text/plain", []byte("b"))
	require.NoError(t, e.Crawl(ctx))
	require.True(t, e.shadow.Exists("/F/B", ""))

	require.NoError(t, e.Unlink(ctx, "/F/B"))

	fake.mu.Lock()
	b1 := fake.records["b1"]
	require.True(t, b1.Trashed)
	require.Equal(t, "root", b1.ParentID())
	fake.mu.Unlock()

	_, ok := e.idx.PathToID("/F/B")
	require.False(t, ok)
	id, ok := e.idx.PathToID("/.Trash/B")
	require.True(t, ok)
	require.Equal(t, "b1", id)

	fChildren, _ := e.idx.Children("f1")
	require.NotContains(t, fChildren, "b1")
	trashChildren, listed := e.idx.Children(trashID)
	require.True(t, listed)
	require.Contains(t, trashChildren, "b1")

	require.NoError(t, e.Unlink(ctx, "/.Trash/B"))

	_, ok = e.idx.PathToID("/.Trash/B")
	require.False(t, ok)
	require.False(t, e.shadow.Exists("/.Trash/B", ""))
	_, ok = e.idx.Record("b1")
	require.False(t, ok)
	require.Equal(t, 1, fake.recordCount())
}

// Scenario 5 (spec §8): overwrite an existing file's content, flush
// uploads it, and a subsequent read sees the new content from the shadow.
func TestOverwriteFlushesUpload(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	fake.addFile("b1", "B", "root", "text/plain", []byte("original"))
	require.NoError(t, e.Crawl(ctx))

	before, ok := e.idx.Record("b1")
	require.True(t, ok)

	f, err := e.Open("/B")
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(len("hello"))))
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	require.NoError(t, e.MarkDirty("/B"))
	require.NoError(t, e.Flush(ctx, "/B"))

	fake.mu.Lock()
	content := string(fake.content["b1"])
	fake.mu.Unlock()
	require.Equal(t, "hello", content)

	after, ok := e.idx.Record("b1")
	require.True(t, ok)
	require.True(t, after.MTime.After(before.MTime))

	require.Equal(t, "hello", readShadow(t, e, "/B", ""))
}

// Scenario 6 (spec §8): rename across directories reparents remotely and
// relocates both the shadow entry and the child-list bookkeeping.
func TestRenameAcrossDirectories(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	fake.addFolder("f1", "F", "root")
	fake.addFile("b1", "B", "f1", "text/plain", []byte("b"))
	require.NoError(t, e.Crawl(ctx))
	require.True(t, e.shadow.Exists("/F/B", ""))

	require.NoError(t, e.Rename(ctx, "/F/B", "/C"))

	fake.mu.Lock()
	require.Equal(t, "root", fake.records["b1"].ParentID())
	require.Equal(t, "C", fake.records["b1"].Name)
	fake.mu.Unlock()

	_, ok := e.idx.PathToID("/F/B")
	require.False(t, ok)
	id, ok := e.idx.PathToID("/C")
	require.True(t, ok)
	require.Equal(t, "b1", id)

	require.True(t, e.shadow.Exists("/C", ""))
	require.False(t, e.shadow.Exists("/F/B", ""))
	require.Equal(t, "b", readShadow(t, e, "/C", ""))

	fChildren, _ := e.idx.Children("f1")
	require.NotContains(t, fChildren, "b1")
	rootChildren, _ := e.idx.Children("root")
	require.Contains(t, rootChildren, "b1")
}
