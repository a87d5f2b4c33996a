// Package tree implements the history-independent bucketed oblivious tree
// with stash (spec.md §4.2), grounded on
// original_source/upsi/crypto_tree.h/.cc. The tree is content-agnostic: it
// operates on an opaque Entry carrying the hash used for addressing plus
// opaque serialized content, per the "polymorphism over bucket content type"
// design note (spec.md §9).
package tree

import (
	"math/bits"
	"sort"

	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/internal/prf"
)

// DefaultNodeSize and DefaultStashSize match spec.md §4.2's defaults.
const (
	DefaultNodeSize  = 4
	DefaultStashSize = 4
)

// Entry is one opaque occupant of a bucket: its addressing hash plus
// arbitrary content (a plaintext element/payload, or an encrypted one).
// Content is cloned shallowly since Go slices/structs passed by value here
// are never mutated in place by the tree.
type Entry struct {
	Hash    [prf.HashSize]byte
	Content any
}

// Tree is the array-indexed complete binary tree: index 0 is the stash,
// index 1 is the root, children of i are 2i and 2i+1.
type Tree struct {
	NodeSize  int
	StashSize int
	Depth     int
	Buckets   [][]Entry // Buckets[0] is the stash
}

// New constructs an empty tree at depth 0 (one root bucket plus the stash).
func New(nodeSize, stashSize int) *Tree {
	if nodeSize <= 0 {
		nodeSize = DefaultNodeSize
	}
	if stashSize <= 0 {
		stashSize = nodeSize
	}
	t := &Tree{NodeSize: nodeSize, StashSize: stashSize, Depth: 0}
	t.Buckets = make([][]Entry, 2) // index 0 stash, index 1 root
	return t
}

// capacity returns the declared capacity of bucket index idx.
func (t *Tree) capacity(idx int) int {
	if idx == 0 {
		return t.StashSize
	}
	return t.NodeSize
}

// leafIndex computes the probe/insertion leaf for a hash at the tree's
// current depth by walking the low-order bits from the root, one bit per
// level (original_source/upsi/crypto_tree.cc::computeIndex).
func leafIndex(hash [prf.HashSize]byte, depth int) int {
	index := 1
	for level := 0; level < depth; level++ {
		byteIdx := level / 8
		bitIdx := uint(level % 8)
		bit := 0
		if byteIdx < len(hash) {
			bit = int((hash[byteIdx] >> bitIdx) & 1)
		}
		index = index*2 + bit
	}
	return index
}

// pathIndices returns, in leaf-to-stash order, every ancestor bucket index
// for leaf ℓ (ℓ itself, its parent, ..., the root at index 1, then the
// stash at index 0).
func pathIndices(leaf int) []int {
	out := []int{}
	for idx := leaf; idx >= 1; idx /= 2 {
		out = append(out, idx)
	}
	out = append(out, 0)
	return out
}

// grow increases the tree's depth by one, doubling the bucket vector with
// empty buckets below the current leaves. Existing entries are left in place:
// their bucket index becomes an ancestor (not necessarily the leaf) of their
// recomputed leaf at the new depth, which still satisfies the address
// invariant.
func (t *Tree) grow() {
	t.Depth++
	newSize := 1 << uint(t.Depth+1)
	for len(t.Buckets) < newSize {
		t.Buckets = append(t.Buckets, nil)
	}
}

func (t *Tree) actualSize() int {
	n := 0
	for _, b := range t.Buckets {
		n += len(b)
	}
	return n
}

// lcaSteps returns how many levels up from the leaf the given entry leaf and
// the target leaf share a common ancestor: 0 if they are the same leaf,
// otherwise the bit-length of their XOR difference.
func lcaSteps(entryLeaf, targetLeaf int) int {
	x := entryLeaf ^ targetLeaf
	if x == 0 {
		return 0
	}
	return bits.Len(uint(x))
}

// Insert adds batch to the tree one element at a time, deriving each entry's
// insertion hash from stream (see insertionHash), redistributing every entry read off
// the touched path, and returning the set of bucket indices that changed
// across the whole batch (spec.md §4.2 step 4).
func (t *Tree) Insert(batch []any, stream *prf.Stream) (changed []int, hashesOut [][prf.HashSize]byte, err error) {
	changedSet := map[int]bool{}

	for _, content := range batch {
		// Step 1: grow until the whole tree can accept one more entry.
		for t.actualSize()+1 >= (1 << uint(t.Depth+1)) {
			t.grow()
		}

		h := insertionHash(content, stream)
		hashesOut = append(hashesOut, h)
		leaf := leafIndex(h, t.Depth)

		touched := pathIndices(leaf)
		var pool []Entry
		for _, idx := range touched {
			pool = append(pool, t.Buckets[idx]...)
			t.Buckets[idx] = nil
			changedSet[idx] = true
		}
		pool = append(pool, Entry{Hash: h, Content: content})

		if placeErr := t.redistribute(pool, leaf, changedSet); placeErr != nil {
			return nil, nil, placeErr
		}
	}

	for idx := range changedSet {
		changed = append(changed, idx)
	}
	sort.Ints(changed)
	return changed, hashesOut, nil
}

// insertionHash derives the per-entry leaf-selection hash. For a real
// element it is the same element-keyed PRF the peer uses to probe
// (spec.md "PRF-bound across peers so both sides compute the same leaf
// without communication"), so a shared element lands at the same leaf in
// both parties' trees and is reachable by Path without coordination.
// Content with no element to key on (none in this package) falls back to
// a fresh stream draw.
func insertionHash(content any, stream *prf.Stream) [prf.HashSize]byte {
	if pc, ok := content.(PlaintextContent); ok {
		return stream.ElementHash(pc.Element)
	}
	return stream.Next()
}

// redistribute places every entry in pool as close to its own leaf's lowest
// common ancestor with targetLeaf as capacity allows, falling back to the
// stash (original_source/upsi/crypto_tree.cc::insert, spec.md §4.2 step 3).
func (t *Tree) redistribute(pool []Entry, targetLeaf int, changedSet map[int]bool) error {
	type scored struct {
		e     Entry
		steps int
	}
	scoredPool := make([]scored, len(pool))
	for i, e := range pool {
		entryLeaf := leafIndex(e.Hash, t.Depth)
		scoredPool[i] = scored{e: e, steps: lcaSteps(entryLeaf, targetLeaf)}
	}
	sort.SliceStable(scoredPool, func(i, j int) bool { return scoredPool[i].steps < scoredPool[j].steps })

	for _, s := range scoredPool {
		placed := false
		for step := s.steps; step <= t.Depth; step++ {
			idx := targetLeaf >> uint(step)
			if len(t.Buckets[idx]) < t.capacity(idx) {
				t.Buckets[idx] = append(t.Buckets[idx], s.e)
				changedSet[idx] = true
				placed = true
				break
			}
		}
		if !placed {
			if len(t.Buckets[0]) >= t.capacity(0) {
				return errs.New(errs.Invariant, "tree: stash overflow during redistribution")
			}
			t.Buckets[0] = append(t.Buckets[0], s.e)
			changedSet[0] = true
		}
	}
	return nil
}

// Path returns the entries of the d+2 buckets on the probe path for element
// (spec.md §4.2 "path"), concatenated in root-to-leaf order: the stash, the
// root, then each bucket down to the leaf.
func (t *Tree) Path(elementHash [prf.HashSize]byte) []Entry {
	leaf := leafIndex(elementHash, t.Depth)
	indices := pathIndices(leaf) // leaf..stash
	// spec.md defines root-to-leaf order: stash, root, ..., leaf.
	out := make([]Entry, 0, len(indices)*t.NodeSize)
	for i := len(indices) - 1; i >= 0; i-- {
		out = append(out, t.Buckets[indices[i]]...)
	}
	return out
}

// PathBucketIndices exposes the bucket indices touched by Path, in the same
// root-to-leaf order, for callers that need to pair candidates with their
// originating bucket (e.g. re-encryption padding).
func (t *Tree) PathBucketIndices(elementHash [prf.HashSize]byte) []int {
	leaf := leafIndex(elementHash, t.Depth)
	indices := pathIndices(leaf)
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = indices[len(indices)-1-i]
	}
	return out
}

// ReplaceNodes applies a peer-sent delta: each bucket is assigned verbatim to
// the index the sender gave it. The mirror first grows until every received
// index fits; the sender's last insert always rewrites a leaf at its current
// depth, so this keeps both trees at the same depth (spec.md §4.2
// "replace_nodes"). hashes and newEntryCount do not affect the result.
func (t *Tree) ReplaceNodes(hashes [][prf.HashSize]byte, buckets map[int][]Entry, newEntryCount int) error {
	// Growth follows the received indices rather than the mirror's own entry
	// count, which includes the sender's pad entries.
	for idx := range buckets {
		for idx >= len(t.Buckets) {
			t.grow()
		}
	}
	for idx, entries := range buckets {
		if idx < 0 || idx >= len(t.Buckets) {
			return errs.Newf(errs.InvalidArgument, "tree: replace_nodes bucket index %d out of range", idx)
		}
		if len(entries) > t.capacity(idx) {
			return errs.Newf(errs.Invariant, "tree: replace_nodes bucket %d exceeds capacity", idx)
		}
		t.Buckets[idx] = entries
	}
	return nil
}

// CheckInvariants verifies the capacity and address invariants over every
// bucket (spec.md §4.2 "Invariant checks performed").
func (t *Tree) CheckInvariants() error {
	for idx, bucket := range t.Buckets {
		if len(bucket) > t.capacity(idx) {
			return errs.Newf(errs.Invariant, "tree: bucket %d holds %d entries, capacity %d", idx, len(bucket), t.capacity(idx))
		}
		if idx == 0 {
			continue // stash is exempt from the address invariant
		}
		for _, e := range bucket {
			entryLeaf := leafIndex(e.Hash, t.Depth)
			if !isAncestor(idx, entryLeaf) {
				return errs.Newf(errs.Invariant, "tree: entry at bucket %d is not an ancestor of its leaf %d", idx, entryLeaf)
			}
		}
	}
	return nil
}

func isAncestor(bucketIdx, leaf int) bool {
	for idx := leaf; idx >= 1; idx /= 2 {
		if idx == bucketIdx {
			return true
		}
	}
	return false
}
