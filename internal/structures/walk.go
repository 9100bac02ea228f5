package structures

import (
	"fmt"

	"github.com/kdurai/pstbtree/internal/core"
)

// walk descends the whole tree and checks invariants P1-P5 (§8) after a
// mutation. It is a test/debugging aid, not part of the public API.
func (t *Tree) walk() error {
	if !t.hasRoot {
		return nil
	}
	defer t.pool.Reset()
	_, err := t.walkNode(t.root, true)
	return err
}

// walkNode checks node nodeRef and its subtree, returning the leaf depth
// seen beneath it (0 for a leaf itself) so callers can confirm P3 (all
// leaves share depth).
func (t *Tree) walkNode(nodeRef uint64, isRoot bool) (int, error) {
	idx, err := t.hooks.ReadNodeIntoBuffer(nodeRef)
	if err != nil {
		return 0, err
	}
	node := core.NewNode(t.pool.Buffer(idx), t.geo)
	cEnt := node.CEnt()
	entSize := node.EntrySize()

	for i := 1; i < cEnt; i++ {
		if node.KeyAt(i-1) >= node.KeyAt(i) {
			t.pool.Release(idx)
			return 0, fmt.Errorf("P1 violated at node %d: key[%d]=%d >= key[%d]=%d", nodeRef, i-1, node.KeyAt(i-1), i, node.KeyAt(i))
		}
	}

	if !isRoot {
		recMax := node.RecMax()
		minEnts := t.minEntsFor(node.IsLeaf())
		if cEnt < minEnts || cEnt > recMax {
			t.pool.Release(idx)
			return 0, fmt.Errorf("P4 violated at node %d: cEnt=%d outside [%d,%d]", nodeRef, cEnt, minEnts, recMax)
		}
	}

	used := cEnt * entSize
	for i := used; i < t.geo.NodeEntriesSize; i++ {
		if node.Buf[i] != 0 {
			t.pool.Release(idx)
			return 0, fmt.Errorf("P5 violated at node %d: byte %d non-zero beyond cEnt*entSize", nodeRef, i)
		}
	}

	if node.IsLeaf() {
		t.pool.Release(idx)
		return 0, nil
	}

	childRefs := make([]uint64, cEnt)
	separators := make([]uint64, cEnt)
	for i := 0; i < cEnt; i++ {
		childRefs[i] = t.hooks.ChildRefOf(node.ChildRefBytes(i))
		separators[i] = node.KeyAt(i)
	}
	t.pool.Release(idx)

	leafDepth := -1
	for i, childRef := range childRefs {
		childMinKey, err := t.minKeyOf(childRef)
		if err != nil {
			return 0, err
		}
		if childMinKey != separators[i] {
			return 0, fmt.Errorf("P2 violated at node %d slot %d: separator=%d child min key=%d", nodeRef, i, separators[i], childMinKey)
		}

		d, err := t.walkNode(childRef, false)
		if err != nil {
			return 0, err
		}
		if leafDepth == -1 {
			leafDepth = d
		} else if d != leafDepth {
			return 0, fmt.Errorf("P3 violated: leaves at depth %d and %d", leafDepth, d)
		}
	}

	return leafDepth + 1, nil
}

// minKeyOf returns the first key of the subtree rooted at nodeRef.
func (t *Tree) minKeyOf(nodeRef uint64) (uint64, error) {
	idx, err := t.hooks.ReadNodeIntoBuffer(nodeRef)
	if err != nil {
		return 0, err
	}
	defer t.pool.Release(idx)

	node := core.NewNode(t.pool.Buffer(idx), t.geo)
	if node.CEnt() == 0 {
		return 0, fmt.Errorf("empty node %d has no min key", nodeRef)
	}
	if node.IsLeaf() {
		return node.KeyAt(0), nil
	}
	childRef := t.hooks.ChildRefOf(node.ChildRefBytes(0))
	return t.minKeyOf(childRef)
}
