package ipc

import (
	"io"
	"sync"

	"github.com/axeberg/axebergos/runtime/object"
)

// DefaultPipeCapacity is the buffer size of pipes created with capacity 0.
const DefaultPipeCapacity = 4096

type pipe struct {
	mu           sync.Mutex
	data         []byte
	capacity     int
	readerClosed bool
	writerClosed bool
	readers      waitList
	writers      waitList
}

// PipeReader is the read end of a pipe.
type PipeReader struct {
	p *pipe
}

// PipeWriter is the write end of a pipe.
type PipeWriter struct {
	p *pipe
}

// NewPipe creates a pipe holding up to capacity bytes.
func NewPipe(capacity int) (*PipeReader, *PipeWriter) {
	if capacity <= 0 {
		capacity = DefaultPipeCapacity
	}
	p := &pipe{capacity: capacity}
	return &PipeReader{p: p}, &PipeWriter{p: p}
}

func (r *PipeReader) Kind() object.Kind { return KindPipeReader }

func (w *PipeWriter) Kind() object.Kind { return KindPipeWriter }

// Read copies buffered bytes into buf. An empty pipe with a live writer
// registers waker and returns ErrWouldBlock; once the writer is gone it
// returns io.EOF.
func (r *PipeReader) Read(buf []byte, waker Waker) (int, error) {
	p := r.p
	p.mu.Lock()
	if p.readerClosed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if len(p.data) == 0 {
		if p.writerClosed {
			p.mu.Unlock()
			return 0, io.EOF
		}
		p.readers.add(waker)
		p.mu.Unlock()
		return 0, ErrWouldBlock
	}
	n := copy(buf, p.data)
	p.data = p.data[n:]
	writers := p.writers.take()
	p.mu.Unlock()

	writers.wakeAll()
	return n, nil
}

// Buffered returns the number of unread bytes.
func (r *PipeReader) Buffered() int {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return len(r.p.data)
}

// Finalize closes the read end; pending and later writes fail with
// ErrBrokenPipe.
func (r *PipeReader) Finalize() {
	p := r.p
	p.mu.Lock()
	p.readerClosed = true
	p.data = nil
	writers := p.writers.take()
	p.mu.Unlock()
	writers.wakeAll()
}

// Write appends as much of buf as fits and returns the count. A full pipe
// registers waker and returns ErrWouldBlock.
func (w *PipeWriter) Write(buf []byte, waker Waker) (int, error) {
	p := w.p
	p.mu.Lock()
	if p.writerClosed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.readerClosed {
		p.mu.Unlock()
		return 0, ErrBrokenPipe
	}
	if len(buf) == 0 {
		p.mu.Unlock()
		return 0, nil
	}
	free := p.capacity - len(p.data)
	if free == 0 {
		p.writers.add(waker)
		p.mu.Unlock()
		return 0, ErrWouldBlock
	}
	n := min(free, len(buf))
	p.data = append(p.data, buf[:n]...)
	readers := p.readers.take()
	p.mu.Unlock()

	readers.wakeAll()
	return n, nil
}

// Finalize closes the write end; readers drain what is buffered then see
// io.EOF.
func (w *PipeWriter) Finalize() {
	p := w.p
	p.mu.Lock()
	p.writerClosed = true
	readers := p.readers.take()
	p.mu.Unlock()
	readers.wakeAll()
}
