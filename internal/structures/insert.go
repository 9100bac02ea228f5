package structures

import (
	"github.com/kdurai/pstbtree/internal/core"
	"github.com/kdurai/pstbtree/internal/utils"
)

// insertResult is the explicit return tuple pushDown reports upward, in
// place of the source's shared mutable out-parameters (§9 design notes):
// status, the split's promoted entry (valid iff status is overflow), and
// the regenerated first-entry separator when this subtree's leftmost key
// changed.
type insertResult struct {
	status      Status
	promoted    []byte
	firstChange []byte
}

// Insert validates entry, descends via pushDown, and resolves a root
// split by synthesising a new root one level above the old one.
func (t *Tree) Insert(entry []byte) (Status, error) {
	if len(entry) != t.geo.LeafEntrySize {
		return StatusSuccess, ErrBadEntrySize
	}
	if !t.hasRoot {
		return StatusSuccess, ErrTreeNotInitialised
	}
	defer t.pool.Reset()

	key := utils.KeyAt(entry, 0, t.geo.KeySize)
	res, err := t.pushDown(t.root, key, entry)
	if err != nil {
		return StatusSuccess, err
	}
	if res.status == statusOverflow {
		if err := t.growRoot(res.promoted); err != nil {
			return StatusSuccess, err
		}
		return StatusSuccess, nil
	}
	return res.status, nil
}

// growRoot synthesises a new root with exactly two internal entries: the
// old root's first key pointing at the old root, and the split-promoted
// key pointing at the new sibling (§4.6 step 4).
func (t *Tree) growRoot(promoted []byte) error {
	oldRootRef := t.root

	oldIdx, err := t.hooks.ReadNodeIntoBuffer(oldRootRef)
	if err != nil {
		return utils.WrapError("reading old root for growth", err)
	}
	oldRoot := core.NewNode(t.pool.Buffer(oldIdx), t.geo)
	oldFirstKey := oldRoot.KeyAt(0)
	oldLevel := oldRoot.CLevel()
	t.pool.Release(oldIdx)

	newIdx, err := t.pool.Acquire()
	if err != nil {
		return err
	}
	defer t.pool.Release(newIdx)

	newRoot := core.NewNode(t.pool.Buffer(newIdx), t.geo)
	newRoot.Reset()
	newRoot.SetCLevel(oldLevel + 1)
	newRoot.SetCEntMax(t.geo.RecMaxEntries)
	newRoot.SetCbEntMax(t.geo.InternalEntrySize)

	newRoot.PutEntry(0, t.hooks.MakeInternalEntry(oldFirstKey, oldRootRef))
	newRoot.PutEntry(1, promoted)
	newRoot.SetCEnt(2)
	newRoot.ZeroBucketTail()

	newRef, err := t.hooks.AllocateNode()
	if err != nil {
		return utils.WrapError("allocating new root", err)
	}
	if err := t.hooks.WriteNodeFromBuffer(newIdx, newRef); err != nil {
		return utils.WrapError("writing new root", err)
	}

	t.root = newRef
	return nil
}

// pushDown is the recursive insert core (§4.6).
func (t *Tree) pushDown(nodeRef uint64, key uint64, entry []byte) (insertResult, error) {
	idx, err := t.hooks.ReadNodeIntoBuffer(nodeRef)
	if err != nil {
		return insertResult{}, utils.WrapError("reading node", err)
	}
	defer t.pool.Release(idx)

	node := core.NewNode(t.pool.Buffer(idx), t.geo)
	found, pos := core.FindInNode(node, key)

	if node.IsLeaf() {
		return t.pushDownLeaf(idx, nodeRef, node, key, entry, found, pos)
	}
	return t.pushDownInternal(idx, nodeRef, node, key, entry, found, pos)
}

func (t *Tree) pushDownLeaf(idx int, nodeRef uint64, node core.Node, key uint64, entry []byte, found bool, pos int) (insertResult, error) {
	if found {
		return insertResult{status: StatusDuplicate}, nil
	}

	if node.CEnt() < t.geo.RecLeafMaxEntries {
		node.ShiftRight(pos)
		node.PutEntry(pos, entry)
		node.SetCEnt(node.CEnt() + 1)
		node.ZeroBucketTail()

		if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
			return insertResult{}, utils.WrapError("writing leaf", err)
		}

		res := insertResult{status: StatusSuccess}
		if pos == 0 {
			res.firstChange = t.hooks.MakeInternalEntry(key, nodeRef)
		}
		return res, nil
	}

	promoted, firstChangeValid, err := t.splitNode(idx, pos, entry)
	if err != nil {
		return insertResult{}, err
	}
	if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
		return insertResult{}, utils.WrapError("writing split leaf", err)
	}

	res := insertResult{status: statusOverflow, promoted: promoted}
	if firstChangeValid {
		res.firstChange = t.hooks.MakeInternalEntry(key, nodeRef)
	}
	return res, nil
}

func (t *Tree) pushDownInternal(idx int, nodeRef uint64, node core.Node, key uint64, entry []byte, found bool, pos int) (insertResult, error) {
	childSlot := childSlotFor(found, pos)
	childRef := t.hooks.ChildRefOf(node.ChildRefBytes(childSlot))

	childResult, err := t.pushDown(childRef, key, entry)
	if err != nil {
		return insertResult{}, err
	}
	if childResult.status == StatusDuplicate {
		return childResult, nil
	}

	result := insertResult{status: StatusSuccess}

	if childResult.firstChange != nil {
		node.PutEntry(childSlot, childResult.firstChange)
		if childSlot == 0 {
			newFirstKey := utils.KeyAt(childResult.firstChange, 0, t.geo.KeySize)
			result.firstChange = t.hooks.MakeInternalEntry(newFirstKey, nodeRef)
		}
	}

	if childResult.status != statusOverflow {
		if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
			return insertResult{}, utils.WrapError("writing internal node", err)
		}
		return result, nil
	}

	promotedKey := utils.KeyAt(childResult.promoted, 0, t.geo.KeySize)
	_, insPos := core.FindInNode(node, promotedKey)

	if node.CEnt() < t.geo.RecMaxEntries {
		node.ShiftRight(insPos)
		node.PutEntry(insPos, childResult.promoted)
		node.SetCEnt(node.CEnt() + 1)
		node.ZeroBucketTail()

		if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
			return insertResult{}, utils.WrapError("writing internal node", err)
		}
		return result, nil
	}

	promoted2, firstChangeValid2, err := t.splitNode(idx, insPos, childResult.promoted)
	if err != nil {
		return insertResult{}, err
	}
	if err := t.hooks.WriteNodeFromBuffer(idx, nodeRef); err != nil {
		return insertResult{}, utils.WrapError("writing split internal node", err)
	}

	result.status = statusOverflow
	result.promoted = promoted2
	if firstChangeValid2 {
		result.firstChange = t.hooks.MakeInternalEntry(promotedKey, nodeRef)
	}
	return result, nil
}

// splitNode applies §4.7 to the full node held in buffer leftIdx: the
// recMax existing entries plus newEntry (landing at pos) are split so
// the left node (which keeps nodeRef's identity) retains the first
// floor(recMax/2)+1 of them and a freshly allocated right sibling gets
// the rest. Both of spec.md's Case A (pos <= mid) and Case B (pos > mid)
// reduce to the same split point once expressed over the merged
// recMax+1 sequence; see DESIGN.md.
func (t *Tree) splitNode(leftIdx int, pos int, newEntry []byte) (promoted []byte, firstChangeValid bool, err error) {
	left := core.NewNode(t.pool.Buffer(leftIdx), t.geo)
	recMax := left.RecMax()
	mid := recMax / 2
	entSize := left.EntrySize()

	combined := make([][]byte, 0, recMax+1)
	for i := 0; i < pos; i++ {
		combined = append(combined, left.EntryAtCopy(i))
	}
	combined = append(combined, newEntry)
	for i := pos; i < recMax; i++ {
		combined = append(combined, left.EntryAtCopy(i))
	}

	leftCount := mid + 1
	rightCount := len(combined) - leftCount

	rightIdx, err := t.pool.Acquire()
	if err != nil {
		return nil, false, err
	}
	defer t.pool.Release(rightIdx)

	right := core.NewNode(t.pool.Buffer(rightIdx), t.geo)
	right.Reset()
	right.SetCLevel(left.CLevel())
	right.SetCEntMax(left.CEntMax())
	right.SetCbEntMax(entSize)

	for i := 0; i < leftCount; i++ {
		left.PutEntry(i, combined[i])
	}
	left.SetCEnt(leftCount)
	left.ZeroBucketTail()

	for i := 0; i < rightCount; i++ {
		right.PutEntry(i, combined[leftCount+i])
	}
	right.SetCEnt(rightCount)
	right.ZeroBucketTail()

	rightRef, err := t.hooks.AllocateNode()
	if err != nil {
		return nil, false, utils.WrapError("allocating split sibling", err)
	}
	if err := t.hooks.WriteNodeFromBuffer(rightIdx, rightRef); err != nil {
		return nil, false, utils.WrapError("writing split sibling", err)
	}

	rightFirstKey := right.KeyAt(0)
	promoted = t.hooks.MakeInternalEntry(rightFirstKey, rightRef)
	firstChangeValid = pos == 0

	return promoted, firstChangeValid, nil
}
