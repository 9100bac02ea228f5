package pstbtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/kdurai/pstbtree/internal/core"
	"github.com/kdurai/pstbtree/internal/utils"
	"github.com/kdurai/pstbtree/internal/writer"
)

// RootSlotSize is the number of header bytes this dialect reserves at the
// front of the Backing Store to persist the root reference (§6: "the root
// reference must be persisted by the embedder, typically in a fixed file
// header slot"). internal/writer.FileStore callers should start their
// allocator at an offset of at least RootSlotSize.
const RootSlotSize = 8

// FileDialect is a concrete implementation of the six §6 hooks over an
// internal/writer.BackingStore, the companion to
// original_source/BTreeDriver.py's OwnBTree: a runnable dialect rather than
// an abstract algorithm. Internal entries are laid out as KeySize bytes of
// little-endian key followed by a little-endian child offset filling the
// rest of the entry.
//
// Each flushed node additionally carries a CRC32 trailer in the page's
// reserved tail region (spec.md §3's "(tail)" row), computed over the
// entry bucket and metadata header, mirroring the teacher's
// crc32.ChecksumIEEE-on-every-page habit in btreev2_write.go. Geometries
// whose reserved tail (NodeSize-NodeMetaData-4 bytes) is shorter than 4
// bytes simply carry no trailer; the region is a reservation for dialects
// that want it, not a requirement of the core.
type FileDialect struct {
	store writer.BackingStore
	pool  *utils.Pool
	geo   core.Geometry
}

// NewFileDialect wires store and pool together under geo. pool must have
// been constructed over the same store (or an equivalent utils.Store
// view of it).
func NewFileDialect(store writer.BackingStore, pool *utils.Pool, geo core.Geometry) *FileDialect {
	return &FileDialect{store: store, pool: pool, geo: geo}
}

// trailerSize returns the number of bytes available for a page trailer
// beyond the metadata header, 0 if there is no room for one.
func (d *FileDialect) trailerSize() int {
	n := d.geo.NodeSize - d.geo.NodeMetaData - 4
	if n < 4 {
		return 0
	}
	return n
}

// ReadNodeIntoBuffer implements structures.Hooks.
func (d *FileDialect) ReadNodeIntoBuffer(nodeRef uint64) (int, error) {
	idx, err := d.pool.Acquire()
	if err != nil {
		return 0, err
	}
	if err := d.pool.Load(idx, int64(nodeRef), d.geo.NodeSize); err != nil {
		d.pool.Release(idx)
		return 0, err
	}
	if d.trailerSize() >= 4 {
		buf := d.pool.Buffer(idx)
		checked := d.geo.NodeMetaData + 4
		want := binary.LittleEndian.Uint32(buf[checked : checked+4])
		got := crc32.ChecksumIEEE(buf[:checked])
		if want != got {
			d.pool.Release(idx)
			return 0, fmt.Errorf("node %d: page trailer CRC mismatch (want %08x, got %08x)", nodeRef, want, got)
		}
	}
	return idx, nil
}

// WriteNodeFromBuffer implements structures.Hooks.
func (d *FileDialect) WriteNodeFromBuffer(bufferIndex int, nodeRef uint64) error {
	if d.trailerSize() >= 4 {
		buf := d.pool.Buffer(bufferIndex)
		checked := d.geo.NodeMetaData + 4
		crc := crc32.ChecksumIEEE(buf[:checked])
		binary.LittleEndian.PutUint32(buf[checked:checked+4], crc)
	}
	return d.pool.Flush(bufferIndex, int64(nodeRef), d.geo.NodeSize)
}

// AllocateNode implements structures.Hooks.
func (d *FileDialect) AllocateNode() (uint64, error) {
	return d.store.Allocate()
}

// DelNodeAllocation implements structures.Hooks.
func (d *FileDialect) DelNodeAllocation(nodeRef uint64) error {
	return d.store.Free(nodeRef)
}

// MakeInternalEntry implements structures.Hooks: key (KeySize bytes,
// little-endian) followed by an (InternalEntrySize-KeySize)-byte
// little-endian child offset.
func (d *FileDialect) MakeInternalEntry(key uint64, childRef uint64) []byte {
	out := make([]byte, d.geo.InternalEntrySize)
	utils.PutKey(out, key, d.geo.KeySize)
	utils.PutKey(out[d.geo.KeySize:], childRef, d.geo.InternalEntrySize-d.geo.KeySize)
	return out
}

// ChildRefOf implements structures.Hooks. Inverse of MakeInternalEntry on
// the reference field.
func (d *FileDialect) ChildRefOf(entryBytes []byte) uint64 {
	return utils.KeyAt(entryBytes, 0, len(entryBytes))
}

// LoadRoot reads the persisted root reference from the store's reserved
// header slot (§6). ok is false when the slot holds zero, i.e. no tree
// has been created yet (including a brand-new, still-empty backing
// store, whose short read past end-of-file is not itself an error here).
func (d *FileDialect) LoadRoot() (ref uint64, ok bool, err error) {
	var hdr [RootSlotSize]byte
	if _, err := d.store.ReadAt(hdr[:], 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, false, fmt.Errorf("reading root slot: %w", err)
	}
	ref = binary.LittleEndian.Uint64(hdr[:])
	return ref, ref != 0, nil
}

// PersistRoot writes ref into the store's reserved header slot.
func (d *FileDialect) PersistRoot(ref uint64) error {
	var hdr [RootSlotSize]byte
	binary.LittleEndian.PutUint64(hdr[:], ref)
	_, err := d.store.WriteAt(hdr[:], 0)
	if err != nil {
		return fmt.Errorf("writing root slot: %w", err)
	}
	return nil
}

var _ Hooks = (*FileDialect)(nil)
