package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drivefs-project/drivefs/internal/remote"
)

func rec(id, name, parent string) *remote.FileRecord {
	return &remote.FileRecord{ID: id, Name: name, MIME: "text/plain", Parents: []string{parent}}
}

func TestSetPathRequiresRecord(t *testing.T) {
	idx := New("root")
	err := idx.SetPath("/A", "a1")
	require.ErrorIs(t, err, ErrRecordMissing)

	idx.SetRecord("a1", rec("a1", "A", "root"))
	require.NoError(t, idx.SetPath("/A", "a1"))

	id, ok := idx.PathToID("/A")
	require.True(t, ok)
	require.Equal(t, "a1", id)
}

func TestRecordReturnsAClone(t *testing.T) {
	idx := New("root")
	idx.SetRecord("a1", rec("a1", "A", "root"))

	r, ok := idx.Record("a1")
	require.True(t, ok)
	r.Name = "mutated"

	r2, _ := idx.Record("a1")
	require.Equal(t, "A", r2.Name)
}

func TestChildrenDistinguishesNeverListedFromEmpty(t *testing.T) {
	idx := New("root")
	_, listed := idx.Children("f1")
	require.False(t, listed)

	idx.SetChildren("f1", nil)
	children, listed := idx.Children("f1")
	require.True(t, listed)
	require.Empty(t, children)
}

func TestAddChildIsIdempotent(t *testing.T) {
	idx := New("root")
	idx.AddChild("f1", "a1")
	idx.AddChild("f1", "a1")
	idx.AddChild("f1", "b1")

	children, ok := idx.Children("f1")
	require.True(t, ok)
	require.ElementsMatch(t, []string{"a1", "b1"}, children)
}

func TestRemoveChild(t *testing.T) {
	idx := New("root")
	idx.AddChild("f1", "a1")
	idx.AddChild("f1", "b1")
	idx.RemoveChild("f1", "a1")

	children, _ := idx.Children("f1")
	require.Equal(t, []string{"b1"}, children)
}

func TestForgetRemovesEveryTrace(t *testing.T) {
	idx := New("root")
	idx.SetRecord("a1", rec("a1", "A", "root"))
	require.NoError(t, idx.SetPath("/A", "a1"))
	idx.AddChild("root", "a1")
	idx.SetChildren("a1", []string{})

	idx.Forget("a1", "/A")

	_, ok := idx.PathToID("/A")
	require.False(t, ok)
	_, ok = idx.Record("a1")
	require.False(t, ok)
	_, ok = idx.Children("a1")
	require.False(t, ok)
}

func TestMoveInHierarchyRelinksBothParents(t *testing.T) {
	idx := New("root")
	idx.SetRecord("f1", rec("f1", "F", "root"))
	require.NoError(t, idx.SetPath("/F", "f1"))
	idx.SetRecord("b1", rec("b1", "B", "f1"))
	require.NoError(t, idx.SetPath("/F/B", "b1"))
	idx.AddChild("f1", "b1")

	moved := rec("b1", "B", "root")
	idx.MoveInHierarchy("b1", "/F/B", "/B", "f1", "root", moved)

	_, ok := idx.PathToID("/F/B")
	require.False(t, ok)
	id, ok := idx.PathToID("/B")
	require.True(t, ok)
	require.Equal(t, "b1", id)

	fChildren, _ := idx.Children("f1")
	require.NotContains(t, fChildren, "b1")
	rootChildren, _ := idx.Children("root")
	require.Contains(t, rootChildren, "b1")
}

func TestMoveInHierarchyIsIdempotentForNewParent(t *testing.T) {
	idx := New("root")
	idx.SetRecord("b1", rec("b1", "B", "root"))
	require.NoError(t, idx.SetPath("/B", "b1"))
	idx.AddChild("root", "b1")

	idx.MoveInHierarchy("b1", "/B", "/B", "root", "root", rec("b1", "B", "root"))

	rootChildren, _ := idx.Children("root")
	require.Equal(t, []string{"b1"}, rootChildren)
}

func TestPathOf(t *testing.T) {
	idx := New("root")
	idx.SetRecord("a1", rec("a1", "A", "root"))
	require.NoError(t, idx.SetPath("/A", "a1"))

	path, ok := idx.PathOf("a1")
	require.True(t, ok)
	require.Equal(t, "/A", path)

	_, ok = idx.PathOf("missing")
	require.False(t, ok)
}

func TestParentIDOf(t *testing.T) {
	idx := New("root")
	idx.SetRecord("a1", rec("a1", "A", "root"))

	parent, err := idx.ParentIDOf("a1")
	require.NoError(t, err)
	require.Equal(t, "root", parent)

	_, err = idx.ParentIDOf("missing")
	require.ErrorIs(t, err, ErrRecordMissing)
}

func TestSnapshotAndRestore(t *testing.T) {
	idx := New("root")
	idx.SetRecord("a1", rec("a1", "A", "root"))
	require.NoError(t, idx.SetPath("/A", "a1"))
	idx.AddChild("root", "a1")

	pathToID, idToRecord, idToChildren := idx.Snapshot()

	fresh := New("root")
	fresh.Restore(pathToID, idToRecord, idToChildren)

	id, ok := fresh.PathToID("/A")
	require.True(t, ok)
	require.Equal(t, "a1", id)
	children, ok := fresh.Children("root")
	require.True(t, ok)
	require.Equal(t, []string{"a1"}, children)

	// The restored index owns its own copies.
	idx.SetRecord("a1", rec("a1", "mutated-elsewhere", "root"))
	freshRec, _ := fresh.Record("a1")
	require.Equal(t, "A", freshRec.Name)
}
