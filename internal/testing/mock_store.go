// Package testing provides an in-memory BackingStore double so the tree
// engine's tests never touch a real file.
package testing

import (
	"errors"
)

// MockStore is an in-memory BackingStore: a growable byte slice plus a
// fixed-size-region allocator with a free list, mirroring
// internal/writer.FileStore's contract without any OS file underneath.
type MockStore struct {
	data      []byte
	blockSize uint64
	next      uint64
	live      map[uint64]bool
	free      []uint64
}

// NewMockStore creates an empty store handing out regions of blockSize
// bytes, starting allocation at initialOffset.
func NewMockStore(initialOffset, blockSize uint64) *MockStore {
	return &MockStore{
		data:      make([]byte, initialOffset),
		blockSize: blockSize,
		next:      initialOffset,
		live:      make(map[uint64]bool),
	}
}

// ReadAt implements io.ReaderAt.
func (m *MockStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, errors.New("offset beyond EOF")
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, errors.New("short read")
	}
	return n, nil
}

// WriteAt implements io.WriterAt, growing the backing slice as needed.
func (m *MockStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	n := copy(m.data[off:end], p)
	return n, nil
}

// Allocate reserves a fresh blockSize-byte region, reusing a freed one
// before growing the store.
func (m *MockStore) Allocate() (uint64, error) {
	if n := len(m.free); n > 0 {
		addr := m.free[n-1]
		m.free = m.free[:n-1]
		m.live[addr] = true
		return addr, nil
	}

	addr := m.next
	m.next += m.blockSize
	if need := int64(m.next); need > int64(len(m.data)) {
		grown := make([]byte, need)
		copy(grown, m.data)
		m.data = grown
	}
	m.live[addr] = true
	return addr, nil
}

// Free marks offset as no longer holding a live node.
func (m *MockStore) Free(offset uint64) error {
	if !m.live[offset] {
		return errors.New("freeing offset that is not live")
	}
	delete(m.live, offset)
	m.free = append(m.free, offset)
	return nil
}

// IsLive reports whether offset currently names an allocated region.
func (m *MockStore) IsLive(offset uint64) bool {
	return m.live[offset]
}

// Len returns the current size of the backing slice.
func (m *MockStore) Len() int {
	return len(m.data)
}
