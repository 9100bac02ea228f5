package pstbtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdurai/pstbtree/internal/core"
)

// loadNode reads nodeRef into a buffer via dialect/pool and returns an
// independent copy of it as a core.Node, releasing the buffer immediately
// so these integration tests never hold buffers across assertions.
func loadNode(t *testing.T, pool *Pool, dialect *FileDialect, nodeRef uint64) core.Node {
	t.Helper()
	idx, err := dialect.ReadNodeIntoBuffer(nodeRef)
	require.NoError(t, err)
	defer pool.Release(idx)

	buf := make([]byte, dialect.geo.NodeSize)
	copy(buf, pool.Buffer(idx))
	return core.NewNode(buf, dialect.geo)
}

// S1: Empty search.
func TestScenario_S1_EmptySearch(t *testing.T) {
	_, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	_, found, err := bt.Search(0x10)
	require.NoError(t, err)
	assert.False(t, found)
}

// S2: Single-key round trip.
func TestScenario_S2_SingleKeyRoundTrip(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	entry := leafEntry(dialect.geo, 0x10, 0x99)
	status, err := bt.Insert(entry)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	value, found, err := bt.Search(0x10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry[dialect.geo.KeySize:], value)
}

// S3: Fill a leaf then split. With recLeafMaxEntries=4, mid=2, the 5th
// insert (key 0x50) lands at tentative position 4, which is Case B of
// §4.7 (pos > mid): the left half keeps mid+1=3 entries and the right
// half receives the rest plus the new entry. This is the split point
// both §4.7's formula and original_source/BTree.py's splitNode compute;
// see DESIGN.md for why it differs from this scenario's descriptive
// prose in spec.md §8.
func TestScenario_S3_FillLeafThenSplit(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	for _, k := range []uint64{0x10, 0x20, 0x30, 0x40, 0x50} {
		status, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, status)
	}

	rootRef, ok := bt.Root()
	require.True(t, ok)

	root := loadNode(t, dialect.pool, dialect, rootRef)
	require.False(t, root.IsLeaf())
	require.Equal(t, 1, root.CLevel())
	require.Equal(t, 2, root.CEnt())
	assert.Equal(t, uint64(0x10), root.KeyAt(0))
	assert.Equal(t, uint64(0x40), root.KeyAt(1))

	leftRef := dialect.ChildRefOf(root.ChildRefBytes(0))
	rightRef := dialect.ChildRefOf(root.ChildRefBytes(1))

	left := loadNode(t, dialect.pool, dialect, leftRef)
	require.True(t, left.IsLeaf())
	require.Equal(t, 3, left.CEnt())
	assert.Equal(t, uint64(0x10), left.KeyAt(0))
	assert.Equal(t, uint64(0x20), left.KeyAt(1))
	assert.Equal(t, uint64(0x30), left.KeyAt(2))

	right := loadNode(t, dialect.pool, dialect, rightRef)
	require.True(t, right.IsLeaf())
	require.Equal(t, 2, right.CEnt())
	assert.Equal(t, uint64(0x40), right.KeyAt(0))
	assert.Equal(t, uint64(0x50), right.KeyAt(1))
}

// S4: First-key propagation. Starting from S3's split, inserting 0x05
// lands at slot 0 of the (unsplit-again, still 3-entry) left leaf,
// forcing the root's first separator to update.
func TestScenario_S4_FirstKeyPropagation(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	for _, k := range []uint64{0x10, 0x20, 0x30, 0x40, 0x50} {
		_, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
	}

	status, err := bt.Insert(leafEntry(dialect.geo, 0x05, 0x05))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	rootRef, ok := bt.Root()
	require.True(t, ok)
	root := loadNode(t, dialect.pool, dialect, rootRef)
	assert.Equal(t, uint64(0x05), root.KeyAt(0))

	leftRef := dialect.ChildRefOf(root.ChildRefBytes(0))
	left := loadNode(t, dialect.pool, dialect, leftRef)
	require.Equal(t, 4, left.CEnt())
	assert.Equal(t, []uint64{0x05, 0x10, 0x20, 0x30},
		[]uint64{left.KeyAt(0), left.KeyAt(1), left.KeyAt(2), left.KeyAt(3)})
}

// S5: Duplicate.
func TestScenario_S5_Duplicate(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	entry := leafEntry(dialect.geo, 0x10, 0x99)
	_, err = bt.Insert(entry)
	require.NoError(t, err)

	status, err := bt.Insert(leafEntry(dialect.geo, 0x10, 0x01))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, status)

	value, found, err := bt.Search(0x10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry[dialect.geo.KeySize:], value)
}

// S6: Delete with borrow, then with merge, then root collapse.
func TestScenario_S6_DeleteBorrowThenMerge(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	for _, k := range []uint64{0x10, 0x20, 0x30, 0x40, 0x50} {
		_, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
	}

	status, err := bt.Remove(0x40)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	status, err = bt.Remove(0x50)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	requireInvariants(t, dialect, bt)

	status, err = bt.Remove(0x30)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	status, err = bt.Remove(0x20)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	requireInvariants(t, dialect, bt)

	rootRef, ok := bt.Root()
	require.True(t, ok)
	root := loadNode(t, dialect.pool, dialect, rootRef)
	require.True(t, root.IsLeaf())
	require.Equal(t, 1, root.CEnt())
	assert.Equal(t, uint64(0x10), root.KeyAt(0))
}

// requireInvariants walks the whole tree checking P1-P5 directly off the
// store, independent of internal/structures.walk (which is unexported and
// exercised separately by that package's own tests).
func requireInvariants(t *testing.T, dialect *FileDialect, bt *BTree) {
	t.Helper()
	rootRef, ok := bt.Root()
	require.True(t, ok)
	depth, err := walkCheck(t, dialect, rootRef, true, (dialect.geo.RecMaxEntries+1)/2, (dialect.geo.RecLeafMaxEntries+1)/2)
	require.NoError(t, err)
	_ = depth
}

func walkCheck(t *testing.T, dialect *FileDialect, nodeRef uint64, isRoot bool, minInternal, minLeaf int) (int, error) {
	t.Helper()
	node := loadNode(t, dialect.pool, dialect, nodeRef)
	cEnt := node.CEnt()

	for i := 1; i < cEnt; i++ {
		require.Less(t, node.KeyAt(i-1), node.KeyAt(i), "P1: keys must be strictly ascending")
	}

	if !isRoot {
		minEnts := minLeaf
		recMax := node.Geo.RecLeafMaxEntries
		if !node.IsLeaf() {
			minEnts = minInternal
			recMax = node.Geo.RecMaxEntries
		}
		require.GreaterOrEqual(t, cEnt, minEnts, "P4: non-root fill floor")
		require.LessOrEqual(t, cEnt, recMax, "P4: non-root fill ceiling")
	}

	entSize := node.EntrySize()
	used := cEnt * entSize
	for i := used; i < node.Geo.NodeEntriesSize; i++ {
		require.Zero(t, node.Buf[i], "P5: bucket tail must be zero-padded")
	}

	if node.IsLeaf() {
		return 0, nil
	}

	leafDepth := -1
	for i := 0; i < cEnt; i++ {
		childRef := dialect.ChildRefOf(node.ChildRefBytes(i))
		child := loadNode(t, dialect.pool, dialect, childRef)
		require.Equal(t, node.KeyAt(i), child.KeyAt(0), "P2: separator must equal child min key")

		d, err := walkCheck(t, dialect, childRef, false, minInternal, minLeaf)
		if err != nil {
			return 0, err
		}
		if leafDepth == -1 {
			leafDepth = d
		} else {
			require.Equal(t, leafDepth, d, "P3: all leaves share depth")
		}
	}
	return leafDepth + 1, nil
}

// L1/L2: insert-then-search and duplicate rejection.
func TestLaw_L1L2_InsertSearchDuplicate(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	entry := leafEntry(dialect.geo, 0x77, 0x42)
	status, err := bt.Insert(entry)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	value, found, err := bt.Search(0x77)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry[dialect.geo.KeySize:], value)

	status, err = bt.Insert(leafEntry(dialect.geo, 0x77, 0xFF))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, status)

	value, found, err = bt.Search(0x77)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry[dialect.geo.KeySize:], value, "duplicate insert must not overwrite")
}

// L3: remove then search is absent.
func TestLaw_L3_RemoveThenAbsent(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	_, err = bt.Insert(leafEntry(dialect.geo, 0x21, 0x01))
	require.NoError(t, err)

	status, err := bt.Remove(0x21)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	_, found, err := bt.Search(0x21)
	require.NoError(t, err)
	assert.False(t, found)
}

// L4: inserting any permutation of a key set yields a sorted in-order
// traversal, checked here via Search over the whole set plus a full
// invariant walk (P1 implies sortedness within every node; P2+P3 extend
// that to the whole tree).
func TestLaw_L4_PermutationInvariantInOrder(t *testing.T) {
	base := []uint64{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90, 0xA0}

	for trial := 0; trial < 5; trial++ {
		dialect, bt := newFileDialectFixture(t)
		_, err := bt.CreateEmpty()
		require.NoError(t, err)

		perm := append([]uint64(nil), base...)
		rand.New(rand.NewSource(int64(trial))).Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		for _, k := range perm {
			status, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
			require.NoError(t, err)
			require.Equal(t, StatusSuccess, status)
		}

		requireInvariants(t, dialect, bt)

		for _, k := range base {
			_, found, err := bt.Search(k)
			require.NoError(t, err)
			require.True(t, found, "key %x must be present", k)
		}
	}
}

// L5: inserting then removing a whole key set in any order leaves a
// single empty leaf as root (I6).
func TestLaw_L5_InsertThenRemoveAllCollapses(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	keys := []uint64{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70}
	for _, k := range keys {
		_, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
	}

	removeOrder := []uint64{0x40, 0x10, 0x70, 0x20, 0x60, 0x30, 0x50}
	for _, k := range removeOrder {
		status, err := bt.Remove(k)
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, status)
	}

	rootRef, ok := bt.Root()
	require.True(t, ok)
	root := loadNode(t, dialect.pool, dialect, rootRef)
	assert.True(t, root.IsLeaf())
	assert.Equal(t, 0, root.CEnt())
}

// L6: remove of an absent key returns NOTPRESENT and changes nothing.
func TestLaw_L6_RemoveAbsentKeyNoop(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	_, err = bt.Insert(leafEntry(dialect.geo, 0x10, 0x01))
	require.NoError(t, err)

	status, err := bt.Remove(0x99)
	require.NoError(t, err)
	assert.Equal(t, StatusNotPresent, status)

	value, found, err := bt.Search(0x10)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, byte(0x01), value[0])
}

// B1: inserting the (k+1)-th entry into a full leaf triggers exactly one
// split, and the parent gains exactly one entry.
func TestBoundary_B1_SplitGrowsParentByOne(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	for _, k := range []uint64{0x10, 0x20, 0x30, 0x40} {
		_, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
	}

	rootRef, ok := bt.Root()
	require.True(t, ok)
	root := loadNode(t, dialect.pool, dialect, rootRef)
	require.True(t, root.IsLeaf(), "tree still a single leaf below capacity")
	require.Equal(t, 4, root.CEnt())

	status, err := bt.Insert(leafEntry(dialect.geo, 0x50, 0x50))
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	rootRef, ok = bt.Root()
	require.True(t, ok)
	root = loadNode(t, dialect.pool, dialect, rootRef)
	require.False(t, root.IsLeaf(), "split must have produced a new internal root")
	assert.Equal(t, 2, root.CEnt(), "parent gains exactly one entry from one split")
}

// B2: removing an entry that takes a non-root node below the minimum
// fill triggers exactly one borrow-or-merge, restoring the invariant.
func TestBoundary_B2_UnderflowTriggersRestore(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	for _, k := range []uint64{0x10, 0x20, 0x30, 0x40, 0x50} {
		_, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
	}

	status, err := bt.Remove(0x40)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	requireInvariants(t, dialect, bt)
}

// B3: root collapse replaces the root with its sole remaining child.
func TestBoundary_B3_RootCollapse(t *testing.T) {
	dialect, bt := newFileDialectFixture(t)
	_, err := bt.CreateEmpty()
	require.NoError(t, err)

	for _, k := range []uint64{0x10, 0x20, 0x30, 0x40, 0x50} {
		_, err := bt.Insert(leafEntry(dialect.geo, k, byte(k)))
		require.NoError(t, err)
	}

	rootRef, ok := bt.Root()
	require.True(t, ok)
	root := loadNode(t, dialect.pool, dialect, rootRef)
	require.False(t, root.IsLeaf())
	oldRootRef := rootRef

	for _, k := range []uint64{0x30, 0x40, 0x50} {
		status, err := bt.Remove(k)
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, status)
	}

	newRootRef, ok := bt.Root()
	require.True(t, ok)
	assert.NotEqual(t, oldRootRef, newRootRef, "root collapse must replace the root reference")

	newRoot := loadNode(t, dialect.pool, dialect, newRootRef)
	assert.True(t, newRoot.IsLeaf())
}
