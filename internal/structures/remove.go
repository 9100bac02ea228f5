package structures

import (
	"errors"

	"github.com/kdurai/pstbtree/internal/core"
	"github.com/kdurai/pstbtree/internal/utils"
)

// removeResult mirrors insertResult: an explicit return tuple instead of
// a shared mutable out-parameter (§9 design notes).
type removeResult struct {
	status      Status
	firstChange []byte
}

// Remove deletes key, repairing any underflow along the path and
// collapsing the root when it is left with a single child (§4.8).
func (t *Tree) Remove(key uint64) (Status, error) {
	if !t.hasRoot {
		return StatusSuccess, ErrTreeNotInitialised
	}
	defer t.pool.Reset()

	rootIdx, err := t.hooks.ReadNodeIntoBuffer(t.root)
	if err != nil {
		return StatusSuccess, utils.WrapError("reading root", err)
	}
	rootNode := core.NewNode(t.pool.Buffer(rootIdx), t.geo)
	empty := rootNode.CEnt() == 0
	t.pool.Release(rootIdx)
	if empty {
		return StatusNotPresent, nil
	}

	res, err := t.recRemove(t.root, key)
	if err != nil {
		return StatusSuccess, err
	}
	if res.status == StatusNotPresent {
		return StatusNotPresent, nil
	}

	if err := t.collapseRootIfSingleChild(); err != nil {
		return StatusSuccess, err
	}
	return StatusSuccess, nil
}

// collapseRootIfSingleChild implements §4.8 step 3: when the root is
// internal and left with exactly one child, that child becomes the new
// root and the old root is freed.
func (t *Tree) collapseRootIfSingleChild() error {
	idx, err := t.hooks.ReadNodeIntoBuffer(t.root)
	if err != nil {
		return utils.WrapError("reading root for collapse check", err)
	}
	node := core.NewNode(t.pool.Buffer(idx), t.geo)

	if node.IsLeaf() || node.CEnt() != 1 {
		t.pool.Release(idx)
		return nil
	}

	childRef := t.hooks.ChildRefOf(node.ChildRefBytes(0))
	oldRoot := t.root
	t.pool.Release(idx)

	if err := t.hooks.DelNodeAllocation(oldRoot); err != nil {
		return utils.WrapError("freeing collapsed root", err)
	}
	t.root = childRef
	return nil
}

// recRemove is the recursive delete core (§4.8).
func (t *Tree) recRemove(nodeRef uint64, key uint64) (removeResult, error) {
	idx, err := t.hooks.ReadNodeIntoBuffer(nodeRef)
	if err != nil {
		return removeResult{}, utils.WrapError("reading node", err)
	}
	defer t.pool.Release(idx)

	node := core.NewNode(t.pool.Buffer(idx), t.geo)
	found, pos := core.FindInNode(node, key)

	if node.IsLeaf() {
		if !found {
			return removeResult{status: StatusNotPresent}, nil
		}

		node.ShiftLeft(pos)
		node.SetCEnt(node.CEnt() - 1)
		node.ZeroBucketTail()
		if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
			return removeResult{}, utils.WrapError("writing leaf", err)
		}

		res := removeResult{status: StatusSuccess}
		if pos == 0 && node.CEnt() > 0 {
			res.firstChange = t.hooks.MakeInternalEntry(node.KeyAt(0), nodeRef)
		}
		return res, nil
	}

	childSlot := childSlotFor(found, pos)
	childRef := t.hooks.ChildRefOf(node.ChildRefBytes(childSlot))

	childResult, err := t.recRemove(childRef, key)
	if err != nil {
		return removeResult{}, err
	}
	if childResult.status == StatusNotPresent {
		return childResult, nil
	}

	result := removeResult{status: StatusSuccess}

	if childResult.firstChange != nil {
		node.PutEntry(childSlot, childResult.firstChange)
		if childSlot == 0 {
			newFirstKey := utils.KeyAt(childResult.firstChange, 0, t.geo.KeySize)
			result.firstChange = t.hooks.MakeInternalEntry(newFirstKey, nodeRef)
		}
	}

	childIdx, err := t.hooks.ReadNodeIntoBuffer(childRef)
	if err != nil {
		return removeResult{}, utils.WrapError("reading child for underflow check", err)
	}
	childNode := core.NewNode(t.pool.Buffer(childIdx), t.geo)
	childCEnt := childNode.CEnt()
	childIsLeaf := childNode.IsLeaf()
	t.pool.Release(childIdx)

	minEnts := t.minEntsFor(childIsLeaf)
	if childCEnt <= minEnts {
		restoreChange, err := t.restore(node, nodeRef, childSlot, childRef, childIsLeaf)
		if err != nil {
			return removeResult{}, err
		}
		if restoreChange != nil {
			result.firstChange = restoreChange
		}
	}

	if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
		return removeResult{}, utils.WrapError("writing internal node", err)
	}
	return result, nil
}

func (t *Tree) minEntsFor(isLeaf bool) int {
	if isLeaf {
		return (t.geo.RecLeafMaxEntries + 1) / 2
	}
	return (t.geo.RecMaxEntries + 1) / 2
}

// restore repairs the underflowed child at parentNode's slot childSlot,
// preferring a borrow from a surplus sibling over a merge (§4.9). It
// returns a fresh firstChange entry only when the repair altered the
// subtree's own leftmost key. Only borrowFromLeftSibling can report one,
// and only for childSlot == 0; since a left sibling is tried only when
// childSlot > 0, restore currently always returns nil here.
func (t *Tree) restore(parentNode core.Node, parentRef uint64, childSlot int, childRef uint64, childIsLeaf bool) ([]byte, error) {
	cEnt := parentNode.CEnt()
	minEnts := t.minEntsFor(childIsLeaf)

	// Selection rule (§4.9): last slot tries only the left sibling,
	// first slot tries only the right, otherwise left then right.
	tryLeft := childSlot > 0
	tryRight := childSlot < cEnt-1

	if tryLeft {
		leftRef := t.hooks.ChildRefOf(parentNode.ChildRefBytes(childSlot - 1))
		leftIdx, err := t.hooks.ReadNodeIntoBuffer(leftRef)
		if err != nil {
			return nil, utils.WrapError("reading left sibling", err)
		}
		leftNode := core.NewNode(t.pool.Buffer(leftIdx), t.geo)
		hasSurplus := leftNode.CEnt() > minEnts
		t.pool.Release(leftIdx)

		if hasSurplus {
			return t.borrowFromLeftSibling(parentNode, parentRef, childSlot, leftRef, childRef)
		}
		if !tryRight {
			return nil, t.mergeSiblings(parentNode, leftRef, childRef, childSlot)
		}
	}

	if tryRight {
		rightRef := t.hooks.ChildRefOf(parentNode.ChildRefBytes(childSlot + 1))
		rightIdx, err := t.hooks.ReadNodeIntoBuffer(rightRef)
		if err != nil {
			return nil, utils.WrapError("reading right sibling", err)
		}
		rightNode := core.NewNode(t.pool.Buffer(rightIdx), t.geo)
		hasSurplus := rightNode.CEnt() > minEnts
		t.pool.Release(rightIdx)

		if hasSurplus {
			return nil, t.borrowFromRightSibling(parentNode, childSlot, childRef, rightRef)
		}
		if tryLeft {
			leftRef := t.hooks.ChildRefOf(parentNode.ChildRefBytes(childSlot - 1))
			return nil, t.mergeSiblings(parentNode, leftRef, childRef, childSlot)
		}
		return nil, t.mergeSiblings(parentNode, childRef, rightRef, childSlot+1)
	}

	return nil, utils.WrapError("restore", errors.New("no sibling available for underflow repair"))
}

// borrowFromLeftSibling is spec.md's "Borrow-right": the left sibling's
// last entry moves to the child's slot 0. The parent's separator for
// the child is rebuilt; when the child sits at slot 0 that rebuild must
// itself propagate upward as a firstChange.
func (t *Tree) borrowFromLeftSibling(parentNode core.Node, parentRef uint64, childSlot int, leftRef, childRef uint64) ([]byte, error) {
	leftIdx, err := t.hooks.ReadNodeIntoBuffer(leftRef)
	if err != nil {
		return nil, utils.WrapError("reading left sibling for borrow", err)
	}
	defer t.pool.Release(leftIdx)
	leftNode := core.NewNode(t.pool.Buffer(leftIdx), t.geo)

	childIdx, err := t.hooks.ReadNodeIntoBuffer(childRef)
	if err != nil {
		return nil, utils.WrapError("reading child for borrow", err)
	}
	defer t.pool.Release(childIdx)
	childNode := core.NewNode(t.pool.Buffer(childIdx), t.geo)

	lastSlot := leftNode.CEnt() - 1
	moved := leftNode.EntryAtCopy(lastSlot)
	blank := make([]byte, leftNode.EntrySize())
	leftNode.PutEntry(lastSlot, blank)
	leftNode.SetCEnt(lastSlot)

	childNode.ShiftRight(0)
	childNode.PutEntry(0, moved)
	childNode.SetCEnt(childNode.CEnt() + 1)
	childNode.ZeroBucketTail()

	if err := t.hooks.WriteNodeFromBuffer(leftIdx, leftRef); err != nil {
		return nil, utils.WrapError("writing left sibling after borrow", err)
	}
	if err := t.hooks.WriteNodeFromBuffer(childIdx, childRef); err != nil {
		return nil, utils.WrapError("writing child after borrow", err)
	}

	newChildFirstKey := childNode.KeyAt(0)
	parentNode.PutEntry(childSlot, t.hooks.MakeInternalEntry(newChildFirstKey, childRef))

	if childSlot == 0 {
		return t.hooks.MakeInternalEntry(newChildFirstKey, parentRef), nil
	}
	return nil, nil
}

// borrowFromRightSibling is spec.md's "Borrow-left": the right sibling's
// first entry moves to the end of the child. Only the right sibling's
// own first key changes, so the parent's separator for the *right*
// sibling (never at slot 0) is rebuilt; no firstChange can result.
func (t *Tree) borrowFromRightSibling(parentNode core.Node, childSlot int, childRef, rightRef uint64) error {
	childIdx, err := t.hooks.ReadNodeIntoBuffer(childRef)
	if err != nil {
		return utils.WrapError("reading child for borrow", err)
	}
	defer t.pool.Release(childIdx)
	childNode := core.NewNode(t.pool.Buffer(childIdx), t.geo)

	rightIdx, err := t.hooks.ReadNodeIntoBuffer(rightRef)
	if err != nil {
		return utils.WrapError("reading right sibling for borrow", err)
	}
	defer t.pool.Release(rightIdx)
	rightNode := core.NewNode(t.pool.Buffer(rightIdx), t.geo)

	moved := rightNode.EntryAtCopy(0)
	rightNode.ShiftLeft(0)
	rightNode.SetCEnt(rightNode.CEnt() - 1)
	rightNode.ZeroBucketTail()

	childNode.PutEntry(childNode.CEnt(), moved)
	childNode.SetCEnt(childNode.CEnt() + 1)

	if err := t.hooks.WriteNodeFromBuffer(childIdx, childRef); err != nil {
		return utils.WrapError("writing child after borrow", err)
	}
	if err := t.hooks.WriteNodeFromBuffer(rightIdx, rightRef); err != nil {
		return utils.WrapError("writing right sibling after borrow", err)
	}

	newRightFirstKey := rightNode.KeyAt(0)
	parentNode.PutEntry(childSlot+1, t.hooks.MakeInternalEntry(newRightFirstKey, rightRef))
	return nil
}

// mergeSiblings concatenates removedRef's entries onto the end of
// survivingRef, frees removedRef, and deletes the parent's entry for it
// (§4.9 Merge). The surviving node's own first key is never touched, so
// no firstChange can result from a merge.
func (t *Tree) mergeSiblings(parentNode core.Node, survivingRef uint64, removedRef uint64, removedSlot int) error {
	survIdx, err := t.hooks.ReadNodeIntoBuffer(survivingRef)
	if err != nil {
		return utils.WrapError("reading surviving sibling for merge", err)
	}
	defer t.pool.Release(survIdx)
	survNode := core.NewNode(t.pool.Buffer(survIdx), t.geo)

	remIdx, err := t.hooks.ReadNodeIntoBuffer(removedRef)
	if err != nil {
		return utils.WrapError("reading removed sibling for merge", err)
	}
	defer t.pool.Release(remIdx)
	remNode := core.NewNode(t.pool.Buffer(remIdx), t.geo)

	base := survNode.CEnt()
	for i := 0; i < remNode.CEnt(); i++ {
		survNode.PutEntry(base+i, remNode.EntryAtCopy(i))
	}
	survNode.SetCEnt(base + remNode.CEnt())
	survNode.ZeroBucketTail()

	if err := t.hooks.WriteNodeFromBuffer(survIdx, survivingRef); err != nil {
		return utils.WrapError("writing merged sibling", err)
	}
	if err := t.hooks.DelNodeAllocation(removedRef); err != nil {
		return utils.WrapError("freeing merged sibling", err)
	}

	parentNode.ShiftLeft(removedSlot)
	parentNode.SetCEnt(parentNode.CEnt() - 1)
	parentNode.ZeroBucketTail()

	return nil
}
