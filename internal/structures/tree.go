// Package structures implements the B-tree engine proper: create,
// search, insert (with split propagation and first-entry fix-up), and
// remove (with underflow repair via sibling borrow or merge). It is
// parameterised over a node geometry and a small set of dialect hooks;
// it never touches a file directly.
package structures

import (
	"errors"

	"github.com/kdurai/pstbtree/internal/core"
	"github.com/kdurai/pstbtree/internal/utils"
)

// Status is a normal-path result code, not an error.
type Status int

const (
	StatusSuccess Status = iota
	StatusDuplicate
	StatusNotPresent
	// statusOverflow never escapes the package: it is the internal
	// signal that a split's promoted entry must be absorbed by the
	// caller, consumed entirely within pushDown/Insert.
	statusOverflow
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusDuplicate:
		return "DUPLICATE"
	case StatusNotPresent:
		return "NOTPRESENT"
	case statusOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors, per the error kinds of the public contract.
// ErrBadEntrySize and ErrTreeNotInitialised are returned bare;
// ErrPoolExhausted may arrive bare or wrapped in a utils.EngineError;
// ErrAllocFailed is joined into CreateEmpty's allocation error only.
// ErrBackingStoreError is not attached to I/O failures: those surface as
// the store's own error, wrapped with context. errors.Is matches each
// sentinel through any wrapping.
var (
	ErrBadEntrySize      = errors.New("entry length does not match LeafEntrySize")
	ErrPoolExhausted     = utils.ErrPoolExhausted
	ErrOverSize          = utils.ErrOverSize
	ErrBackingStoreError = errors.New("backing store I/O error")
	ErrTreeNotInitialised = errors.New("tree has no root reference")
	ErrAllocFailed       = errors.New("node allocation failed")
)

// Hooks is the capability set an embedder supplies to specialise the
// engine to a concrete on-disk node dialect (§6 of the node-page
// contract). It is a plain interface, not a base class: no dispatch
// happens outside these six calls.
type Hooks interface {
	// ReadNodeIntoBuffer acquires a pool buffer, copies NodeSize bytes
	// from offset nodeRef into it, and returns the buffer index.
	ReadNodeIntoBuffer(nodeRef uint64) (int, error)
	// WriteNodeFromBuffer copies NodeSize bytes from the buffer to
	// offset nodeRef, including any dialect-specific trailer.
	WriteNodeFromBuffer(bufferIndex int, nodeRef uint64) error
	// AllocateNode reserves a fresh NodeSize-byte region and returns
	// its offset.
	AllocateNode() (uint64, error)
	// DelNodeAllocation marks the region at nodeRef free.
	DelNodeAllocation(nodeRef uint64) error
	// MakeInternalEntry produces an InternalEntrySize-byte entry for
	// (key, childRef).
	MakeInternalEntry(key uint64, childRef uint64) []byte
	// ChildRefOf decodes the child reference from the reference bytes
	// of an internal entry, i.e. the bytes after the key as returned by
	// core.Node.ChildRefBytes. The engine never passes the whole entry.
	ChildRefOf(entryBytes []byte) uint64
}

// Tree is the B-tree engine: it owns the root reference and drives the
// buffer pool through the dialect hooks. It is not safe for concurrent
// use — at most one top-level operation may be in flight (see §5).
type Tree struct {
	pool    *utils.Pool
	geo     core.Geometry
	hooks   Hooks
	root    uint64
	hasRoot bool
}

// NewTree constructs an engine instance. If rootRef is non-nil the tree
// is considered already initialised at that root; otherwise CreateEmpty
// must be called before Search/Insert/Remove.
func NewTree(pool *utils.Pool, geo core.Geometry, hooks Hooks, rootRef *uint64) *Tree {
	t := &Tree{pool: pool, geo: geo, hooks: hooks}
	if rootRef != nil {
		t.root = *rootRef
		t.hasRoot = true
	}
	return t
}

// Root returns the current root reference and whether the tree has one.
func (t *Tree) Root() (uint64, bool) {
	return t.root, t.hasRoot
}

// CreateEmpty allocates one empty leaf and records it as the root.
func (t *Tree) CreateEmpty() (uint64, error) {
	idx, err := t.pool.Acquire()
	if err != nil {
		return 0, err
	}
	defer t.pool.Release(idx)

	node := core.NewNode(t.pool.Buffer(idx), t.geo)
	node.Reset()
	node.SetCEntMax(t.geo.RecLeafMaxEntries)
	node.SetCbEntMax(t.geo.LeafEntrySize)

	ref, err := t.hooks.AllocateNode()
	if err != nil {
		return 0, utils.WrapError("allocating root", errors.Join(ErrAllocFailed, err))
	}
	if err := t.hooks.WriteNodeFromBuffer(idx, ref); err != nil {
		return 0, utils.WrapError("writing root", err)
	}

	t.root = ref
	t.hasRoot = true
	return ref, nil
}

// Search performs a recursive descent lookup for key, returning the
// leaf's opaque value bytes, or (nil, false) when absent.
func (t *Tree) Search(key uint64) ([]byte, bool, error) {
	if !t.hasRoot {
		return nil, false, ErrTreeNotInitialised
	}
	defer t.pool.Reset()
	return t.search(t.root, key)
}

func (t *Tree) search(nodeRef uint64, key uint64) ([]byte, bool, error) {
	idx, err := t.hooks.ReadNodeIntoBuffer(nodeRef)
	if err != nil {
		return nil, false, utils.WrapError("reading node", err)
	}

	node := core.NewNode(t.pool.Buffer(idx), t.geo)
	found, pos := core.FindInNode(node, key)

	if node.IsLeaf() {
		defer t.pool.Release(idx)
		if !found {
			return nil, false, nil
		}
		return node.EntryAtCopy(pos)[t.geo.KeySize:], true, nil
	}

	childSlot := childSlotFor(found, pos)
	childRef := t.hooks.ChildRefOf(node.ChildRefBytes(childSlot))
	t.pool.Release(idx)

	return t.search(childRef, key)
}

// childSlotFor implements the standard B-tree predecessor-slot descent
// rule used identically by search, insert, and remove (§4.5/§4.6/§4.8).
func childSlotFor(found bool, pos int) int {
	switch {
	case found:
		return pos
	case pos > 0:
		return pos - 1
	default:
		return 0
	}
}
