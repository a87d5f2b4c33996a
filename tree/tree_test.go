package tree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/prf"
	"github.com/summitto/upsi/tree"
)

func newStream() *prf.Stream {
	var key [prf.KeySize]byte
	for i := range key {
		key[i] = byte(i * 7)
	}
	return prf.NewStream(key)
}

func TestInsertSatisfiesInvariants(t *testing.T) {
	tr := tree.New(4, 4)
	stream := newStream()

	batch := make([]any, 0, 20)
	for i := 0; i < 20; i++ {
		batch = append(batch, tree.PlaintextContent{Element: []byte{byte(i)}})
	}
	_, _, err := tr.Insert(batch, stream)
	require.NoError(t, err)
	require.NoError(t, tr.CheckInvariants())
}

func TestPathContainsInsertedElement(t *testing.T) {
	tr := tree.New(4, 4)
	stream := newStream()

	elem := tree.PlaintextContent{Element: []byte("target")}
	_, hashes, err := tr.Insert([]any{elem}, stream)
	require.NoError(t, err)
	require.Len(t, hashes, 1)

	path := tr.Path(hashes[0])
	found := false
	for _, e := range path {
		if pc, ok := e.Content.(tree.PlaintextContent); ok && string(pc.Element) == "target" {
			found = true
		}
	}
	require.True(t, found, "path(e) must contain the inserted element")
}

// Depth growth scenario from spec.md §8: NODE_SIZE=2, STASH_SIZE=2, insert
// batches of size 3 twice; depth must reach >=1 after the first batch and
// >=2 after the second, and path() for any inserted element must still
// contain it.
func TestDepthGrowthScenario(t *testing.T) {
	tr := tree.New(2, 2)
	stream := newStream()

	batch1 := []any{
		tree.PlaintextContent{Element: []byte("a")},
		tree.PlaintextContent{Element: []byte("b")},
		tree.PlaintextContent{Element: []byte("c")},
	}
	_, hashes1, err := tr.Insert(batch1, stream)
	require.NoError(t, err)
	require.GreaterOrEqual(t, tr.Depth, 1)
	require.NoError(t, tr.CheckInvariants())

	batch2 := []any{
		tree.PlaintextContent{Element: []byte("d")},
		tree.PlaintextContent{Element: []byte("e")},
		tree.PlaintextContent{Element: []byte("f")},
	}
	_, hashes2, err := tr.Insert(batch2, stream)
	require.NoError(t, err)
	require.GreaterOrEqual(t, tr.Depth, 2)
	require.NoError(t, tr.CheckInvariants())

	allElems := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e"), []byte("f")}
	allHashes := append(append([][prf.HashSize]byte{}, hashes1...), hashes2...)
	for i, h := range allHashes {
		path := tr.Path(h)
		found := false
		for _, e := range path {
			if pc, ok := e.Content.(tree.PlaintextContent); ok && string(pc.Element) == string(allElems[i]) {
				found = true
			}
		}
		require.True(t, found, "element %s must still be reachable via its insertion hash", allElems[i])
	}
}

func TestHistoryIndependenceSameHashesSameDeltas(t *testing.T) {
	key := [prf.KeySize]byte{}
	treeA := tree.New(4, 4)
	treeB := tree.New(4, 4)
	streamA := prf.NewStream(key)
	streamB := prf.NewStream(key)

	batch := []any{
		tree.PlaintextContent{Element: []byte("1")},
		tree.PlaintextContent{Element: []byte("2")},
		tree.PlaintextContent{Element: []byte("3")},
	}
	changedA, _, err := treeA.Insert(batch, streamA)
	require.NoError(t, err)
	changedB, _, err := treeB.Insert(batch, streamB)
	require.NoError(t, err)

	require.Equal(t, changedA, changedB)
	require.Equal(t, treeA.Buckets, treeB.Buckets)
}
