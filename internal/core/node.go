// Package core defines the node-page layout: the six geometry constants,
// the derived fill thresholds, and the accessors that read and mutate a
// node buffer in place.
package core

import (
	"fmt"

	"github.com/kdurai/pstbtree/internal/utils"
)

// Geometry carries the six fixed page-layout constants of one tree plus
// the thresholds derived from them. It is validated once at construction
// and never mutated afterward.
type Geometry struct {
	NodeSize          int
	NodeEntriesSize   int
	NodeMetaData      int
	InternalEntrySize int
	LeafEntrySize     int
	KeySize           int

	// Derived.
	NodeBucketSize    int
	RecMaxEntries     int
	RecLeafMaxEntries int
}

// NewGeometry validates the six raw constants and returns a Geometry with
// the derived fields filled in.
func NewGeometry(nodeSize, nodeEntriesSize, nodeMetaData, internalEntrySize, leafEntrySize, keySize int) (Geometry, error) {
	g := Geometry{
		NodeSize:          nodeSize,
		NodeEntriesSize:   nodeEntriesSize,
		NodeMetaData:      nodeMetaData,
		InternalEntrySize: internalEntrySize,
		LeafEntrySize:     leafEntrySize,
		KeySize:           keySize,
	}
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	g.NodeBucketSize = (nodeEntriesSize * 9) / 10
	g.RecMaxEntries = g.NodeBucketSize / internalEntrySize
	g.RecLeafMaxEntries = g.NodeBucketSize / leafEntrySize
	return g, nil
}

// Validate checks the raw constants for internal consistency.
func (g Geometry) Validate() error {
	if g.NodeSize <= 0 || g.NodeEntriesSize <= 0 || g.KeySize <= 0 {
		return utils.WrapError("validating geometry", fmt.Errorf("non-positive dimension"))
	}
	if g.InternalEntrySize <= g.KeySize || g.LeafEntrySize <= g.KeySize {
		return utils.WrapError("validating geometry", fmt.Errorf("entry size must exceed key size"))
	}
	if g.NodeMetaData+4 > g.NodeSize {
		return utils.WrapError("validating geometry", fmt.Errorf("metadata header does not fit in node"))
	}
	if g.NodeEntriesSize > g.NodeMetaData {
		return utils.WrapError("validating geometry", fmt.Errorf("entry bucket overlaps metadata header"))
	}
	return nil
}

// Metadata header field offsets, relative to NodeMetaData.
const (
	offCEnt     = 0
	offCEntMax  = 1
	offCbEntMax = 2
	offCLevel   = 3
)

// Node is a view over a page-sized byte buffer, interpreting it according
// to a Geometry. It does not own the buffer; it is a thin accessor.
type Node struct {
	Buf []byte
	Geo Geometry
}

// NewNode wraps buf (at least Geo.NodeSize bytes) as a Node view.
func NewNode(buf []byte, geo Geometry) Node {
	return Node{Buf: buf, Geo: geo}
}

// CEnt returns the current entry count.
func (n Node) CEnt() int {
	return int(n.Buf[n.Geo.NodeMetaData+offCEnt])
}

// SetCEnt sets the current entry count.
func (n Node) SetCEnt(v int) {
	n.Buf[n.Geo.NodeMetaData+offCEnt] = byte(v)
}

// CEntMax returns the informational max-entries field.
func (n Node) CEntMax() int {
	return int(n.Buf[n.Geo.NodeMetaData+offCEntMax])
}

// SetCEntMax sets the informational max-entries field.
func (n Node) SetCEntMax(v int) {
	n.Buf[n.Geo.NodeMetaData+offCEntMax] = byte(v)
}

// CbEntMax returns the per-entry byte size recorded in this node.
func (n Node) CbEntMax() int {
	return int(n.Buf[n.Geo.NodeMetaData+offCbEntMax])
}

// SetCbEntMax sets the per-entry byte size recorded in this node.
func (n Node) SetCbEntMax(v int) {
	n.Buf[n.Geo.NodeMetaData+offCbEntMax] = byte(v)
}

// CLevel returns the node's height above the leaves (0 == leaf).
func (n Node) CLevel() int {
	return int(n.Buf[n.Geo.NodeMetaData+offCLevel])
}

// SetCLevel sets the node's height above the leaves.
func (n Node) SetCLevel(v int) {
	n.Buf[n.Geo.NodeMetaData+offCLevel] = byte(v)
}

// IsLeaf reports whether this node is at level 0.
func (n Node) IsLeaf() bool {
	return n.CLevel() == 0
}

// EntrySize returns LeafEntrySize or InternalEntrySize depending on level.
func (n Node) EntrySize() int {
	if n.IsLeaf() {
		return n.Geo.LeafEntrySize
	}
	return n.Geo.InternalEntrySize
}

// RecMax returns RecLeafMaxEntries or RecMaxEntries depending on level.
func (n Node) RecMax() int {
	if n.IsLeaf() {
		return n.Geo.RecLeafMaxEntries
	}
	return n.Geo.RecMaxEntries
}

// EntryAt returns the entSize-byte slice for the entry at slot i. The
// returned slice aliases the node buffer.
func (n Node) EntryAt(i int) []byte {
	entSize := n.EntrySize()
	start := i * entSize
	return n.Buf[start : start+entSize]
}

// KeyAt returns the key of the entry at slot i.
func (n Node) KeyAt(i int) uint64 {
	return utils.KeyAt(n.EntryAt(i), 0, n.Geo.KeySize)
}

// ChildRefBytes returns the raw reference bytes following the key in the
// internal entry at slot i. Dialects interpret these bytes via their own hooks.
func (n Node) ChildRefBytes(i int) []byte {
	e := n.EntryAt(i)
	return e[n.Geo.KeySize:]
}

// ValueBytes returns the opaque payload bytes following the key in a
// leaf entry at slot i.
func (n Node) ValueBytes(i int) []byte {
	e := n.EntryAt(i)
	return e[n.Geo.KeySize:]
}

// PutEntry copies entryBytes (exactly EntrySize() bytes) into slot i.
func (n Node) PutEntry(i int, entryBytes []byte) {
	copy(n.EntryAt(i), entryBytes)
}

// EntryAtCopy returns a freestanding copy of the entry at slot i, safe to
// retain past the node buffer's next mutation or release.
func (n Node) EntryAtCopy(i int) []byte {
	e := n.EntryAt(i)
	out := make([]byte, len(e))
	copy(out, e)
	return out
}

// ShiftRight opens a gap at slot `at` by moving entries [at, cEnt) one
// slot to the right, zeroing slot `at` for the caller to fill.
// cEnt is not updated; the caller does that.
func (n Node) ShiftRight(at int) {
	cEnt := n.CEnt()
	for i := cEnt - 1; i >= at; i-- {
		copy(n.EntryAt(i+1), n.EntryAt(i))
	}
	zero(n.EntryAt(at))
}

// ShiftLeft closes the gap at slot `at` by moving entries (at, cEnt) one
// slot to the left and zeroing the vacated tail slot. cEnt is not
// updated; the caller does that.
func (n Node) ShiftLeft(at int) {
	cEnt := n.CEnt()
	for i := at; i < cEnt-1; i++ {
		copy(n.EntryAt(i), n.EntryAt(i+1))
	}
	zero(n.EntryAt(cEnt - 1))
}

// ZeroBucketTail zeroes the bucket bytes beyond cEnt*entSize, restoring
// I5 (left-justified, zero-padded bucket).
func (n Node) ZeroBucketTail() {
	entSize := n.EntrySize()
	used := n.CEnt() * entSize
	for i := used; i < n.Geo.NodeEntriesSize; i++ {
		n.Buf[i] = 0
	}
}

// Reset zeroes the whole buffer and initialises it as an empty leaf.
func (n Node) Reset() {
	for i := range n.Buf {
		n.Buf[i] = 0
	}
	n.SetCLevel(0)
	n.SetCEnt(0)
	n.SetCEntMax(n.Geo.RecLeafMaxEntries)
	n.SetCbEntMax(n.Geo.LeafEntrySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// FindInNode performs a binary search over the cEnt keys of n for
// target, returning (found, position) per §4.3: when not found, position
// is the first slot whose key is strictly greater than target (cEnt if
// target exceeds every key).
func FindInNode(n Node, target uint64) (found bool, position int) {
	lo, hi := 0, n.CEnt()
	for lo < hi {
		mid := (lo + hi) / 2
		k := n.KeyAt(mid)
		switch {
		case k == target:
			return true, mid
		case k < target:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false, lo
}
