// Package buffer implements the growable byte buffer used for connection I/O.
//
// A Buffer keeps two cursors over one contiguous slice:
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readPos     <=     writePos    <=     len(buf)
//
// Bytes are appended at writePos and consumed from readPos. When the writable
// region is too small the buffer first reclaims the prependable region by
// shifting the readable bytes down to offset 0, and only reallocates when that
// is still not enough. The buffer never shrinks.
//
// Thread safety:
// A Buffer is not safe for concurrent use. Each connection owns its buffers
// exclusively and only one task touches a connection at a time.
package buffer

import (
	"errors"
	"fmt"
)

// DefaultSize is the initial capacity used by New when size <= 0.
const DefaultSize = 1024

// ErrShortBuffer is returned when more bytes are retrieved than are readable.
var ErrShortBuffer = errors.New("buffer: retrieve exceeds readable bytes")

// Buffer is a contiguous byte store with independent read and write cursors.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New creates a Buffer with the given initial capacity.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int {
	return b.writePos - b.readPos
}

// WritableBytes returns the number of bytes that can be appended without growing.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writePos
}

// PrependableBytes returns the number of already-consumed bytes in front of
// the readable region.
func (b *Buffer) PrependableBytes() int {
	return b.readPos
}

// Peek returns the readable region without consuming it.
//
// The returned slice aliases the buffer and is only valid until the next
// mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readPos:b.writePos]
}

// Retrieve consumes n readable bytes.
func (b *Buffer) Retrieve(n int) error {
	if n < 0 || n > b.ReadableBytes() {
		return fmt.Errorf("%w: want %d, have %d", ErrShortBuffer, n, b.ReadableBytes())
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.RetrieveAll()
	}
	return nil
}

// RetrieveAll discards all readable bytes and resets both cursors.
func (b *Buffer) RetrieveAll() {
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllString returns the readable bytes as a string and resets the buffer.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies p into the writable region, growing the buffer if needed.
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	b.writePos += copy(b.buf[b.writePos:], p)
}

// AppendString is Append for strings.
func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	b.writePos += copy(b.buf[b.writePos:], s)
}

// EnsureWritable guarantees at least n writable bytes.
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// HasWritten advances the write cursor after bytes were copied into the
// slice returned by WritableSlice.
func (b *Buffer) HasWritten(n int) {
	if n < 0 || n > b.WritableBytes() {
		panic(fmt.Sprintf("buffer: HasWritten(%d) with %d writable bytes", n, b.WritableBytes()))
	}
	b.writePos += n
}

// WritableSlice returns the writable region.
func (b *Buffer) WritableSlice() []byte {
	return b.buf[b.writePos:]
}

// Cap returns the current capacity of the underlying storage.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
		return
	}

	readable := b.ReadableBytes()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}
