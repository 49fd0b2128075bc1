package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "state.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)

	idx := New("root")
	idx.SetRecord("a1", rec("a1", "A", "root"))
	require.NoError(t, idx.SetPath("/A", "a1"))
	idx.AddChild("root", "a1")
	require.NoError(t, idx.Persist(db))

	fresh := New("root")
	ok, err := fresh.Load(db)
	require.NoError(t, err)
	require.True(t, ok)

	id, ok := fresh.PathToID("/A")
	require.True(t, ok)
	require.Equal(t, "a1", id)
	children, ok := fresh.Children("root")
	require.True(t, ok)
	require.Equal(t, []string{"a1"}, children)
}

func TestLoadReportsNotOkWhenNoSnapshotExists(t *testing.T) {
	db := openTestDB(t)

	idx := New("root")
	ok, err := idx.Load(db)
	require.NoError(t, err)
	require.False(t, ok)
}
