package structures

import (
	"testing"

	"github.com/kdurai/pstbtree/internal/core"
	pkgtesting "github.com/kdurai/pstbtree/internal/testing"
	"github.com/kdurai/pstbtree/internal/utils"
)

// testDialect is a minimal Hooks implementation over a MockStore, used to
// exercise the engine without any file or CRC concerns (those live in the
// concrete dialect at the module root).
type testDialect struct {
	pool  *utils.Pool
	store *pkgtesting.MockStore
	geo   core.Geometry
}

func newTestDialect(t *testing.T) (*testDialect, *Tree) {
	t.Helper()
	geo, err := core.NewGeometry(64, 60, 60, 8, 12, 4)
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	store := pkgtesting.NewMockStore(64, uint64(geo.NodeSize))
	pool := utils.NewPool(store, 32, geo.NodeSize)
	d := &testDialect{pool: pool, store: store, geo: geo}
	tree := NewTree(pool, geo, d, nil)
	return d, tree
}

func (d *testDialect) ReadNodeIntoBuffer(nodeRef uint64) (int, error) {
	idx, err := d.pool.Acquire()
	if err != nil {
		return 0, err
	}
	if err := d.pool.Load(idx, int64(nodeRef), d.geo.NodeSize); err != nil {
		d.pool.Release(idx)
		return 0, err
	}
	return idx, nil
}

func (d *testDialect) WriteNodeFromBuffer(bufferIndex int, nodeRef uint64) error {
	return d.pool.Flush(bufferIndex, int64(nodeRef), d.geo.NodeSize)
}

func (d *testDialect) AllocateNode() (uint64, error) {
	return d.store.Allocate()
}

func (d *testDialect) DelNodeAllocation(nodeRef uint64) error {
	return d.store.Free(nodeRef)
}

// MakeInternalEntry lays out key (KeySize bytes) followed by the child
// reference (InternalEntrySize-KeySize bytes), both little-endian.
func (d *testDialect) MakeInternalEntry(key uint64, childRef uint64) []byte {
	out := make([]byte, d.geo.InternalEntrySize)
	utils.PutKey(out, key, d.geo.KeySize)
	utils.PutKey(out[d.geo.KeySize:], childRef, d.geo.InternalEntrySize-d.geo.KeySize)
	return out
}

func (d *testDialect) ChildRefOf(entryBytes []byte) uint64 {
	return utils.KeyAt(entryBytes, 0, len(entryBytes))
}

// leafEntry builds a LeafEntrySize-byte entry: key then an arbitrary
// payload filling the remaining bytes.
func leafEntry(geo core.Geometry, key uint64, fill byte) []byte {
	out := make([]byte, geo.LeafEntrySize)
	utils.PutKey(out, key, geo.KeySize)
	for i := geo.KeySize; i < len(out); i++ {
		out[i] = fill
	}
	return out
}
