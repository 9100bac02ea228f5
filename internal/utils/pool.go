// Package utils provides ambient helpers shared by the B-tree engine:
// error wrapping, the page buffer pool, and the little-endian key codec.
package utils

import (
	"errors"
	"sync"
)

// ErrPoolExhausted is returned by Acquire when no buffer is free.
var ErrPoolExhausted = errors.New("buffer pool exhausted")

// ErrOverSize is returned by Load when the requested length exceeds the
// buffer size.
var ErrOverSize = errors.New("read length exceeds buffer size")

// Pool is a fixed-cardinality arena of page-sized byte buffers plus a free
// list, backed by a Store for Load/Flush. It is not a cache: there is no
// identity mapping between a buffer index and any node reference, and no
// dirty tracking — the engine is responsible for explicit flushes.
//
// A Pool is owned by exactly one B-tree at a time (see spec §5); the
// mutex below only guards the free-list bookkeeping itself, it is not a
// concurrency feature.
type Pool struct {
	mu      sync.Mutex
	store   Store
	buffers [][]byte
	free    []int
}

// Store is the minimal seekable byte-stream contract the pool needs from
// the Backing Store: read N bytes at offset O, write N bytes at offset O.
type Store interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// NewPool creates a pool of sections buffers, each bufferSize bytes, all
// initially free.
func NewPool(store Store, sections, bufferSize int) *Pool {
	buffers := make([][]byte, sections)
	free := make([]int, sections)
	for i := range buffers {
		buffers[i] = make([]byte, bufferSize)
		free[i] = i
	}
	return &Pool{
		store:   store,
		buffers: buffers,
		free:    free,
	}
}

// Sections reports the pool's fixed buffer count.
func (p *Pool) Sections() int {
	return len(p.buffers)
}

// BufferSize reports the size in bytes of each buffer.
func (p *Pool) BufferSize() int {
	if len(p.buffers) == 0 {
		return 0
	}
	return len(p.buffers[0])
}

// Acquire hands out a free buffer index. No ordering guarantee is made on
// which free buffer is returned.
func (p *Pool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, ErrPoolExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return idx, nil
}

// Release returns a buffer to the free list. Double-release is caller
// error and not detected (matches spec §4.1's idempotency note).
func (p *Pool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, index)
}

// Reset marks every buffer free. Called at the end of every top-level
// B-tree operation so no buffer can leak across calls.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = p.free[:0]
	for i := range p.buffers {
		p.free = append(p.free, i)
	}
}

// Buffer returns the raw backing bytes for index. The slice is owned by
// the pool; callers must not retain it past Release.
func (p *Pool) Buffer(index int) []byte {
	return p.buffers[index]
}

// Load overwrites the first length bytes of buffer index with bytes read
// from the Store at offset.
func (p *Pool) Load(index int, offset int64, length int) error {
	buf := p.buffers[index]
	if length > len(buf) {
		return ErrOverSize
	}
	_, err := p.store.ReadAt(buf[:length], offset)
	return err
}

// Flush writes the first length bytes of buffer index to the Store at
// offset.
func (p *Pool) Flush(index int, offset int64, length int) error {
	buf := p.buffers[index]
	if length > len(buf) {
		return ErrOverSize
	}
	_, err := p.store.WriteAt(buf[:length], offset)
	return err
}
