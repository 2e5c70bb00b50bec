package ipc

import (
	"fmt"
	"sync"

	"github.com/axeberg/axebergos/runtime/object"
)

// SharedMemory is a fixed-size byte region shared by every handle holder.
type SharedMemory struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

// NewSharedMemory allocates a zeroed segment of size bytes.
func NewSharedMemory(size int) *SharedMemory {
	return &SharedMemory{data: make([]byte, size)}
}

func (s *SharedMemory) Kind() object.Kind { return KindSharedMemory }

// Size returns the segment length.
func (s *SharedMemory) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *SharedMemory) check(off, n int) error {
	if s.closed {
		return ErrClosed
	}
	if off < 0 || n < 0 || off+n > len(s.data) {
		return fmt.Errorf("%w: [%d,%d) of %d", ErrOutOfRange, off, off+n, len(s.data))
	}
	return nil
}

// ReadAt copies len(buf) bytes starting at off.
func (s *SharedMemory) ReadAt(buf []byte, off int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(off, len(buf)); err != nil {
		return 0, err
	}
	return copy(buf, s.data[off:]), nil
}

// WriteAt copies buf into the segment at off.
func (s *SharedMemory) WriteAt(buf []byte, off int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(off, len(buf)); err != nil {
		return 0, err
	}
	return copy(s.data[off:], buf), nil
}

// Finalize releases the region.
func (s *SharedMemory) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
}
