package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drivefs-project/drivefs/internal/mimemap"
	"github.com/drivefs-project/drivefs/internal/shadow"
)

// newTestEngine wires an Engine against a fresh fakeRemote and a shadow
// cache rooted in a fresh temp directory, the same mocked-remote harness
// spec §8 calls for.
func newTestEngine(t *testing.T) (*Engine, *fakeRemote) {
	t.Helper()
	fake := newFakeRemote()

	root := filepath.Join(t.TempDir(), "shadow")
	cache, err := shadow.New(root)
	require.NoError(t, err)

	mimes, err := mimemap.Default()
	require.NoError(t, err)

	return New(fake, cache, mimes, "root"), fake
}

func readShadow(t *testing.T, e *Engine, path, suffix string) string {
	t.Helper()
	data, err := os.ReadFile(e.shadow.LocalPath(path, suffix))
	require.NoError(t, err)
	return string(data)
}

// Scenario 1 (spec §8): crawl a two-level tree.
func TestCrawlTwoLevelTree(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	fake.addFolder("f1", "F", "root")
	fake.addFile("a1", "A", "root", "application/vnd.google-apps.document", []byte("doc body"))
	fake.addFile("b1", "B", "f1", "text/plain", []byte("plain body"))

	require.NoError(t, e.Crawl(ctx))

	id, ok := e.idx.PathToID("/A")
	require.True(t, ok)
	require.Equal(t, "a1", id)

	id, ok = e.idx.PathToID("/F")
	require.True(t, ok)
	require.Equal(t, "f1", id)

	id, ok = e.idx.PathToID("/F/B")
	require.True(t, ok)
	require.Equal(t, "b1", id)

	require.True(t, e.shadow.Exists("/A", ".docx"))
	require.True(t, e.shadow.Exists("/F", ""))
	require.True(t, e.shadow.Exists("/F/B", ""))
	require.Equal(t, "doc body", readShadow(t, e, "/A", ".docx"))
	require.Equal(t, "plain body", readShadow(t, e, "/F/B", ""))
}

// P3: refresh is idempotent when remote state hasn't changed.
func TestRefreshIdempotent(t *testing.T) {
	e, fake := newTestEngine(t)
	ctx := context.Background()

	fake.addFile("a1", "A", "root", "text/plain", []byte("hello"))
	require.NoError(t, e.Crawl(ctx))

	require.NoError(t, e.Refresh(ctx, "/A"))
	require.NoError(t, e.Refresh(ctx, "/A"))

	id, ok := e.idx.PathToID("/A")
	require.True(t, ok)
	require.Equal(t, "a1", id)
	require.Equal(t, "hello", readShadow(t, e, "/A", ""))
}
