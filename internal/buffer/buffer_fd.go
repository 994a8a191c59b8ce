//go:build linux

package buffer

import (
	"sync"

	"golang.org/x/sys/unix"
)

// scratchSize is the size of the overflow area handed to readv alongside the
// writable region.
const scratchSize = 64 * 1024

var scratchPool = sync.Pool{
	New: func() any {
		b := make([]byte, scratchSize)
		return &b
	},
}

// ReadFd reads from fd with a single readv into the writable region plus a
// 64 KiB scratch area. Bytes that land in the scratch area are appended so a
// single call can read more than the current writable capacity.
//
// Returns the number of bytes read. A return of (0, nil) means end of stream.
// OS errors are returned unchanged; unix.EAGAIN means no data was available.
func (b *Buffer) ReadFd(fd int) (int, error) {
	scratch := scratchPool.Get().(*[]byte)
	defer scratchPool.Put(scratch)

	writable := b.WritableBytes()
	n, err := unix.Readv(fd, [][]byte{b.buf[b.writePos:], *scratch})
	if err != nil {
		return 0, err
	}

	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.buf)
		b.Append((*scratch)[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region to fd and consumes what was written.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.RetrieveAll()
	}
	return n, nil
}
