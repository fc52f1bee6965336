// Package critbit implements an ordered map from uint64 keys to values,
// backed by a crit-bit (PATRICIA) trie. Internal nodes branch on the most
// significant bit at which the keys of their two subtrees differ, so lookups,
// inserts and removals cost O(depth) while the minimum and maximum keys are
// available in O(1) through cached handles.
//
// Nodes live in two arenas addressed by a single uint64 handle namespace:
// internal node indices count up from zero, leaf indices are encoded as
// MaxUint64 minus the index. Every leaf handle is therefore above
// PartitionIndex and every internal handle below it, so one comparison tells
// the two apart. PartitionIndex itself is the nil sentinel.
package critbit

import (
	"fmt"
	"math/bits"
)

// PartitionIndex splits the handle namespace: leaf handles are strictly
// above it, internal node handles strictly below. No valid handle ever
// equals it, which makes it the nil sentinel for parents, the root and
// the min/max caches.
const PartitionIndex uint64 = 1 << 63

const maxU64 = ^uint64(0)

type internalNode struct {
	// mask has exactly one bit set: the highest bit at which keys in the
	// left and right subtrees differ. Keys with that bit clear live on the
	// left, keys with it set on the right.
	mask   uint64
	left   uint64
	right  uint64
	parent uint64
}

type leaf[V any] struct {
	key    uint64
	value  V
	parent uint64
}

// Tree is a crit-bit trie over uint64 keys. The zero value is not usable;
// call New.
type Tree[V any] struct {
	root          uint64
	internalNodes map[uint64]*internalNode
	leaves        map[uint64]*leaf[V]
	minLeaf       uint64
	maxLeaf       uint64

	// Arena indices are never reused; handles stay unique for the lifetime
	// of the tree.
	nextInternalNodeIndex uint64
	nextLeafIndex         uint64
}

// New returns an empty tree.
func New[V any]() *Tree[V] {
	return &Tree[V]{
		root:          PartitionIndex,
		internalNodes: make(map[uint64]*internalNode),
		leaves:        make(map[uint64]*leaf[V]),
		minLeaf:       PartitionIndex,
		maxLeaf:       PartitionIndex,
	}
}

// IsLeafHandle reports whether h references a leaf rather than an internal
// node.
func IsLeafHandle(h uint64) bool { return h > PartitionIndex }

func leafHandle(index uint64) uint64 { return maxU64 - index }

// Empty reports whether the tree holds no leaves.
func (t *Tree[V]) Empty() bool { return t.root == PartitionIndex }

// Size returns the number of leaves.
func (t *Tree[V]) Size() int { return len(t.leaves) }

// descend walks from the root to the leaf the trie associates with key,
// branching on each internal node's mask bit. The result is the closest leaf
// in trie order, which is the exact leaf when the key is present. Must not
// be called on an empty tree.
func (t *Tree[V]) descend(key uint64) uint64 {
	ref := t.root
	for !IsLeafHandle(ref) {
		n := t.internalNodes[ref]
		if key&n.mask != 0 {
			ref = n.right
		} else {
			ref = n.left
		}
	}
	return ref
}

// Insert adds key with value and returns the new leaf's handle. Inserting a
// key that is already present is a caller bug and panics.
func (t *Tree[V]) Insert(key uint64, value V) uint64 {
	if t.nextLeafIndex >= PartitionIndex || t.nextInternalNodeIndex >= PartitionIndex {
		panic("critbit: arena index space exhausted")
	}

	newHandle := leafHandle(t.nextLeafIndex)
	newLeaf := &leaf[V]{key: key, value: value, parent: PartitionIndex}

	if t.Empty() {
		t.leaves[newHandle] = newLeaf
		t.nextLeafIndex++
		t.root = newHandle
		t.minLeaf = newHandle
		t.maxLeaf = newHandle
		return newHandle
	}

	closest := t.leaves[t.descend(key)]
	if closest.key == key {
		panic(fmt.Sprintf("critbit: duplicate key %d", key))
	}

	// The new internal node branches on the highest bit at which the new
	// key differs from its closest neighbour.
	newMask := uint64(1) << (63 - uint(bits.LeadingZeros64(closest.key^key)))

	// Masks strictly decrease on the way down, so the splice point is the
	// first position whose mask is below newMask (or a leaf).
	ref := t.root
	parentRef := PartitionIndex
	for !IsLeafHandle(ref) && t.internalNodes[ref].mask > newMask {
		parentRef = ref
		if key&t.internalNodes[ref].mask != 0 {
			ref = t.internalNodes[ref].right
		} else {
			ref = t.internalNodes[ref].left
		}
	}

	nodeRef := t.nextInternalNodeIndex
	node := &internalNode{mask: newMask, parent: parentRef}
	if key&newMask != 0 {
		node.left, node.right = ref, newHandle
	} else {
		node.left, node.right = newHandle, ref
	}

	t.setParent(ref, nodeRef)
	newLeaf.parent = nodeRef
	t.leaves[newHandle] = newLeaf
	t.internalNodes[nodeRef] = node
	t.nextLeafIndex++
	t.nextInternalNodeIndex++

	if parentRef == PartitionIndex {
		t.root = nodeRef
	} else {
		p := t.internalNodes[parentRef]
		if key&p.mask != 0 {
			p.right = nodeRef
		} else {
			p.left = nodeRef
		}
	}

	if key < t.leaves[t.minLeaf].key {
		t.minLeaf = newHandle
	}
	if key > t.leaves[t.maxLeaf].key {
		t.maxLeaf = newHandle
	}
	return newHandle
}

// Find returns the handle of the leaf holding key.
func (t *Tree[V]) Find(key uint64) (uint64, bool) {
	if t.Empty() {
		return PartitionIndex, false
	}
	h := t.descend(key)
	if t.leaves[h].key != key {
		return PartitionIndex, false
	}
	return h, true
}

// FindClosestKey returns the key of the leaf reached by the trie descent for
// key: the exact key when present, otherwise the neighbour sharing the
// longest bit prefix along the descent path. Returns 0 on an empty tree.
func (t *Tree[V]) FindClosestKey(key uint64) uint64 {
	if t.Empty() {
		return 0
	}
	return t.leaves[t.descend(key)].key
}

// Leaf returns the key and value stored at handle h. The handle must be
// valid.
func (t *Tree[V]) Leaf(h uint64) (uint64, V) {
	l, ok := t.leaves[h]
	if !ok {
		panic(fmt.Sprintf("critbit: invalid leaf handle %d", h))
	}
	return l.key, l.value
}

// Remove deletes the leaf at handle h and returns its value. The leaf's
// parent is spliced out by promoting the sibling subtree into its place.
// Removing an unknown handle is a caller bug and panics.
func (t *Tree[V]) Remove(h uint64) V {
	l, ok := t.leaves[h]
	if !ok {
		panic(fmt.Sprintf("critbit: remove of invalid leaf handle %d", h))
	}

	// Recompute the cached extremes incrementally before unlinking.
	if h == t.minLeaf {
		t.minLeaf = t.nextLeafHandle(h)
	}
	if h == t.maxLeaf {
		t.maxLeaf = t.previousLeafHandle(h)
	}

	parentRef := l.parent
	if parentRef == PartitionIndex {
		// h was the sole leaf.
		t.root = PartitionIndex
	} else {
		p := t.internalNodes[parentRef]
		sibling := p.left
		if sibling == h {
			sibling = p.right
		}
		grand := p.parent
		t.setParent(sibling, grand)
		if grand == PartitionIndex {
			t.root = sibling
		} else {
			g := t.internalNodes[grand]
			if g.left == parentRef {
				g.left = sibling
			} else {
				g.right = sibling
			}
		}
		delete(t.internalNodes, parentRef)
	}
	delete(t.leaves, h)
	return l.value
}

// MinLeaf returns the handle of the leaf with the smallest key.
func (t *Tree[V]) MinLeaf() (uint64, bool) {
	return t.minLeaf, t.minLeaf != PartitionIndex
}

// MaxLeaf returns the handle of the leaf with the largest key.
func (t *Tree[V]) MaxLeaf() (uint64, bool) {
	return t.maxLeaf, t.maxLeaf != PartitionIndex
}

// MinKey returns the smallest key present.
func (t *Tree[V]) MinKey() (uint64, bool) {
	if t.minLeaf == PartitionIndex {
		return 0, false
	}
	return t.leaves[t.minLeaf].key, true
}

// MaxKey returns the largest key present.
func (t *Tree[V]) MaxKey() (uint64, bool) {
	if t.maxLeaf == PartitionIndex {
		return 0, false
	}
	return t.leaves[t.maxLeaf].key, true
}

// NextLeaf returns the handle of the leaf with the smallest key strictly
// greater than key. The key must be present; the second result is false at
// the upper boundary.
func (t *Tree[V]) NextLeaf(key uint64) (uint64, bool) {
	h, ok := t.Find(key)
	if !ok {
		panic(fmt.Sprintf("critbit: next leaf of absent key %d", key))
	}
	n := t.nextLeafHandle(h)
	return n, n != PartitionIndex
}

// PreviousLeaf returns the handle of the leaf with the largest key strictly
// smaller than key. The key must be present; the second result is false at
// the lower boundary.
func (t *Tree[V]) PreviousLeaf(key uint64) (uint64, bool) {
	h, ok := t.Find(key)
	if !ok {
		panic(fmt.Sprintf("critbit: previous leaf of absent key %d", key))
	}
	p := t.previousLeafHandle(h)
	return p, p != PartitionIndex
}

// nextLeafHandle walks up from h until the current subtree hangs off a left
// edge, then descends to the leftmost leaf of the sibling subtree.
func (t *Tree[V]) nextLeafHandle(h uint64) uint64 {
	ref := h
	parent := t.parentOf(ref)
	for parent != PartitionIndex && t.internalNodes[parent].right == ref {
		ref = parent
		parent = t.internalNodes[parent].parent
	}
	if parent == PartitionIndex {
		return PartitionIndex
	}
	return t.leftmost(t.internalNodes[parent].right)
}

// previousLeafHandle is the mirror image of nextLeafHandle.
func (t *Tree[V]) previousLeafHandle(h uint64) uint64 {
	ref := h
	parent := t.parentOf(ref)
	for parent != PartitionIndex && t.internalNodes[parent].left == ref {
		ref = parent
		parent = t.internalNodes[parent].parent
	}
	if parent == PartitionIndex {
		return PartitionIndex
	}
	return t.rightmost(t.internalNodes[parent].left)
}

func (t *Tree[V]) leftmost(ref uint64) uint64 {
	for !IsLeafHandle(ref) {
		ref = t.internalNodes[ref].left
	}
	return ref
}

func (t *Tree[V]) rightmost(ref uint64) uint64 {
	for !IsLeafHandle(ref) {
		ref = t.internalNodes[ref].right
	}
	return ref
}

func (t *Tree[V]) parentOf(ref uint64) uint64 {
	if IsLeafHandle(ref) {
		return t.leaves[ref].parent
	}
	return t.internalNodes[ref].parent
}

func (t *Tree[V]) setParent(ref, parent uint64) {
	if IsLeafHandle(ref) {
		t.leaves[ref].parent = parent
	} else {
		t.internalNodes[ref].parent = parent
	}
}
