package ipc

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axeberg/axebergos/runtime/object"
)

type countingWaker struct {
	wakes int
}

func (w *countingWaker) Wake() { w.wakes++ }

func TestPipe_ReadWrite(t *testing.T) {
	r, w := NewPipe(4)
	reader := &countingWaker{}
	writer := &countingWaker{}
	buf := make([]byte, 8)

	_, err := r.Read(buf, reader)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 0, reader.wakes)

	n, err := w.Write([]byte("hello"), writer)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, reader.wakes)

	_, err = w.Write([]byte("o"), writer)
	assert.ErrorIs(t, err, ErrWouldBlock)

	n, err = r.Read(buf, reader)
	require.NoError(t, err)
	assert.Equal(t, "hell", string(buf[:n]))
	assert.Equal(t, 1, writer.wakes)
	assert.Equal(t, 0, r.Buffered())
}

func TestPipe_EOFAndBrokenPipe(t *testing.T) {
	testCases := []struct {
		description string
		run         func(t *testing.T, r *PipeReader, w *PipeWriter)
	}{
		{
			description: "reader drains then sees EOF",
			run: func(t *testing.T, r *PipeReader, w *PipeWriter) {
				_, err := w.Write([]byte("ab"), nil)
				require.NoError(t, err)
				waiter := &countingWaker{}
				w.Finalize()
				buf := make([]byte, 1)
				n, err := r.Read(buf, waiter)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
				_, err = r.Read(buf, waiter)
				require.NoError(t, err)
				_, err = r.Read(buf, waiter)
				assert.ErrorIs(t, err, io.EOF)
				assert.Equal(t, 0, waiter.wakes)
			},
		},
		{
			description: "blocked reader woken by writer close",
			run: func(t *testing.T, r *PipeReader, w *PipeWriter) {
				waiter := &countingWaker{}
				_, err := r.Read(make([]byte, 1), waiter)
				require.ErrorIs(t, err, ErrWouldBlock)
				w.Finalize()
				assert.Equal(t, 1, waiter.wakes)
				_, err = r.Read(make([]byte, 1), waiter)
				assert.ErrorIs(t, err, io.EOF)
			},
		},
		{
			description: "write without reader",
			run: func(t *testing.T, r *PipeReader, w *PipeWriter) {
				r.Finalize()
				_, err := w.Write([]byte("x"), nil)
				assert.ErrorIs(t, err, ErrBrokenPipe)
			},
		},
		{
			description: "blocked writer woken by reader close",
			run: func(t *testing.T, r *PipeReader, w *PipeWriter) {
				waiter := &countingWaker{}
				_, err := w.Write([]byte("abcd"), waiter)
				require.NoError(t, err)
				_, err = w.Write([]byte("e"), waiter)
				require.ErrorIs(t, err, ErrWouldBlock)
				r.Finalize()
				assert.Equal(t, 1, waiter.wakes)
				_, err = w.Write([]byte("e"), waiter)
				assert.ErrorIs(t, err, ErrBrokenPipe)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			r, w := NewPipe(4)
			testCase.run(t, r, w)
		})
	}
}

func TestPipe_ObjectTable(t *testing.T) {
	table := object.New()
	r, w := NewPipe(0)
	hr, err := table.Insert(r)
	require.NoError(t, err)
	hw, err := table.Insert(w)
	require.NoError(t, err)

	dup, err := table.Dup(hw)
	require.NoError(t, err)
	require.NoError(t, table.Release(hw))
	_, err = r.Read(make([]byte, 1), nil)
	assert.ErrorIs(t, err, ErrWouldBlock, "writer still referenced through the alias")

	require.NoError(t, table.Release(dup))
	_, err = r.Read(make([]byte, 1), nil)
	assert.ErrorIs(t, err, io.EOF)

	reader, ok := object.As[*PipeReader](table, hr)
	require.True(t, ok)
	assert.Same(t, r, reader)
}

func TestMessageQueue(t *testing.T) {
	q := NewMessageQueue(2)
	sender := &countingWaker{}
	receiver := &countingWaker{}

	_, err := q.Receive(receiver)
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, q.Send(Message{Sender: 1, Body: []byte("a")}, sender))
	assert.Equal(t, 1, receiver.wakes)
	require.NoError(t, q.Send(Message{Sender: 1, Body: []byte("b")}, sender))
	assert.ErrorIs(t, q.Send(Message{Sender: 1, Body: []byte("c")}, sender), ErrWouldBlock)
	assert.Equal(t, 2, q.Len())

	msg, err := q.Receive(receiver)
	require.NoError(t, err)
	assert.Equal(t, "a", string(msg.Body))
	assert.Equal(t, 1, sender.wakes)

	q.Finalize()
	assert.ErrorIs(t, q.Send(Message{}, sender), ErrClosed)
	_, err = q.Receive(receiver)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, q.Len())
}

func TestSharedMemory(t *testing.T) {
	shm := NewSharedMemory(8)
	assert.Equal(t, 8, shm.Size())

	n, err := shm.WriteAt([]byte("abc"), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 3)
	_, err = shm.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))

	_, err = shm.WriteAt([]byte("abcd"), 5)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = shm.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	shm.Finalize()
	_, err = shm.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}
