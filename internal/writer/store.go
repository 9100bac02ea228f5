package writer

import (
	"fmt"
	"io"
	"os"
)

// BackingStore is the seekable byte-addressable collaborator the B-tree
// engine reads node pages from and writes them to. A node reference is
// an opaque offset into this store.
type BackingStore interface {
	io.ReaderAt
	io.WriterAt
	// Allocate reserves a fresh node-size region and returns its offset.
	Allocate() (uint64, error)
	// Free marks the region at offset as no longer holding a live node.
	Free(offset uint64) error
}

// CreateMode specifies FileStore's creation behavior.
type CreateMode int

const (
	// ModeTruncate creates a new file, truncating if it exists.
	ModeTruncate CreateMode = iota
	// ModeExclusive creates a new file, failing if it exists.
	ModeExclusive
	// ModeOpenExisting opens a file that must already exist.
	ModeOpenExisting
)

// FileStore is the default on-disk BackingStore: an *os.File paired with
// an Allocator of node-sized regions.
type FileStore struct {
	file      *os.File
	allocator *Allocator
}

// NewFileStore opens or creates filename per mode. nodeSize is the fixed
// region size handed out by Allocate; initialOffset is where allocation
// begins (after any reserved header region, e.g. a root-reference slot).
// With ModeOpenExisting allocation begins at the larger of initialOffset
// and the current file size, so regions already in the file are not
// handed out again; regions freed in an earlier session are not reused.
func NewFileStore(filename string, mode CreateMode, initialOffset, nodeSize uint64) (*FileStore, error) {
	var f *os.File
	var err error

	switch mode {
	case ModeTruncate:
		f, err = os.Create(filename)
	case ModeExclusive:
		f, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	case ModeOpenExisting:
		f, err = os.OpenFile(filename, os.O_RDWR, 0o666)
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("opening backing store: %w", err)
	}
	if mode == ModeOpenExisting {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("opening backing store: %w", err)
		}
		if size := uint64(info.Size()); size > initialOffset {
			initialOffset = size
		}
	}

	return &FileStore{
		file:      f,
		allocator: NewAllocator(initialOffset, nodeSize),
	}, nil
}

// ReadAt implements io.ReaderAt.
func (s *FileStore) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (s *FileStore) WriteAt(p []byte, off int64) (int, error) {
	return s.file.WriteAt(p, off)
}

// Allocate reserves a fresh node-size region, reusing freed space first.
func (s *FileStore) Allocate() (uint64, error) {
	return s.allocator.Allocate()
}

// Free marks the region at offset as free for reuse.
func (s *FileStore) Free(offset uint64) error {
	return s.allocator.Free(offset)
}

// Allocator exposes the underlying Allocator, for tests and diagnostics.
func (s *FileStore) Allocator() *Allocator {
	return s.allocator
}

// Flush commits all writes to the underlying device.
func (s *FileStore) Flush() error {
	return s.file.Sync()
}

// Close closes the underlying file. Flush first if durability matters.
func (s *FileStore) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var (
	_ io.ReaderAt  = (*FileStore)(nil)
	_ io.WriterAt  = (*FileStore)(nil)
	_ BackingStore = (*FileStore)(nil)
)
