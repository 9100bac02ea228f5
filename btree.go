// Package pstbtree is the public surface of the disk-backed B-tree engine:
// a thin wrapper over internal/structures.Tree that re-exports the status
// codes, sentinel errors, and the Hooks dialect contract an embedder must
// satisfy, plus the construction entry point named in the engine's public
// API (§6).
package pstbtree

import (
	"github.com/kdurai/pstbtree/internal/core"
	"github.com/kdurai/pstbtree/internal/structures"
	"github.com/kdurai/pstbtree/internal/utils"
)

// Status is a normal-path result code, not an error.
type Status = structures.Status

// Normal-path result codes (§6, §7).
const (
	StatusSuccess    = structures.StatusSuccess
	StatusDuplicate  = structures.StatusDuplicate
	StatusNotPresent = structures.StatusNotPresent
)

// Sentinel errors (§7).
var (
	ErrBadEntrySize       = structures.ErrBadEntrySize
	ErrPoolExhausted      = structures.ErrPoolExhausted
	ErrOverSize           = structures.ErrOverSize
	ErrBackingStoreError  = structures.ErrBackingStoreError
	ErrTreeNotInitialised = structures.ErrTreeNotInitialised
	ErrAllocFailed        = structures.ErrAllocFailed
)

// Geometry carries the six page-layout constants of §3, plus the derived
// fill thresholds.
type Geometry = core.Geometry

// NewGeometry validates the six raw constants and returns a Geometry with
// the derived fields filled in.
func NewGeometry(nodeSize, nodeEntriesSize, nodeMetaData, internalEntrySize, leafEntrySize, keySize int) (Geometry, error) {
	return core.NewGeometry(nodeSize, nodeEntriesSize, nodeMetaData, internalEntrySize, leafEntrySize, keySize)
}

// Hooks is the capability set an embedder supplies to specialise the
// engine to a concrete on-disk node dialect (§6). See dialect.go's
// FileDialect for a runnable implementation.
type Hooks = structures.Hooks

// Pool is the fixed-cardinality buffer-pool arena (§4.1, §2).
type Pool = utils.Pool

// NewPool creates a pool of sections buffers, each bufferSize bytes.
func NewPool(store utils.Store, sections, bufferSize int) *Pool {
	return utils.NewPool(store, sections, bufferSize)
}

// BTree is the engine's public handle: construct with NewBTree, then call
// CreateEmpty/Search/Insert/Remove. It is not safe for concurrent use
// (§5) — at most one top-level operation may be in flight.
type BTree struct {
	tree *structures.Tree
}

// NewBTree constructs a B-tree engine over pool, specialised to geo and
// hooks. If rootRef is non-nil the tree is considered already initialised
// at that root (a reopened tree); otherwise call CreateEmpty first.
func NewBTree(pool *Pool, geo Geometry, hooks Hooks, rootRef *uint64) *BTree {
	return &BTree{tree: structures.NewTree(pool, geo, hooks, rootRef)}
}

// Root returns the current root reference and whether the tree has one.
func (b *BTree) Root() (uint64, bool) {
	return b.tree.Root()
}

// CreateEmpty allocates one empty leaf and records it as the root,
// returning the new root reference.
func (b *BTree) CreateEmpty() (uint64, error) {
	return b.tree.CreateEmpty()
}

// Search returns the opaque leaf-value bytes for key, or (nil, false) when
// absent.
func (b *BTree) Search(key uint64) ([]byte, bool, error) {
	return b.tree.Search(key)
}

// Insert validates and inserts a fully-formed leaf entry. DUPLICATE is
// returned (not an error) when key already exists; values are never
// overwritten.
func (b *BTree) Insert(entry []byte) (Status, error) {
	return b.tree.Insert(entry)
}

// Remove deletes key, repairing any underflow and collapsing the root
// when left with a single child.
func (b *BTree) Remove(key uint64) (Status, error) {
	return b.tree.Remove(key)
}
