//go:build linux

package http

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyhellcat/TinyWebServer/internal/buffer"
	"github.com/lyhellcat/TinyWebServer/internal/logger"
	httpproto "github.com/lyhellcat/TinyWebServer/internal/protocol/http"
	"golang.org/x/sys/unix"
)

// HTTPConnection is one accepted client socket and its request cycle.
//
// Ownership:
// The connection's buffers, request and response are touched only by the
// goroutine holding mu. A worker holds it for the whole task, including the
// re-arm at the end, and the idle timer only closes a connection it can
// TryLock. One-shot registration means no second task is ever queued while
// one is running.
type HTTPConnection struct {
	mu sync.Mutex

	// id distinguishes connections that reuse the same fd value
	id   uint64
	fd   int
	addr string

	closed        bool
	edgeTriggered bool

	// writeChunkThreshold bounds how much a level-triggered Write leaves
	// for the next writable event
	writeChunkThreshold int

	docRoot  string
	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer

	// iov[0] is the header region of writeBuf, iov[1] the unsent part of
	// the mapped file
	iov [2][]byte

	request  *httpproto.Request
	response *httpproto.Response

	// requestStart is when bytes of the request currently being parsed
	// were first seen
	requestStart time.Time

	// armed is set just before the socket is armed in the reactor and
	// cleared by every delivered event. An event that finds it clear means
	// a second task was dispatched before the first re-armed.
	armed atomic.Bool

	log *logger.Logger
}

type connOptions struct {
	docRoot             string
	edgeTriggered       bool
	writeChunkThreshold int
	credentials         httpproto.CredentialChecker
	log                 *logger.Logger
}

func newHTTPConnection(id uint64, fd int, addr string, opts connOptions) *HTTPConnection {
	return &HTTPConnection{
		id:                  id,
		fd:                  fd,
		addr:                addr,
		edgeTriggered:       opts.edgeTriggered,
		writeChunkThreshold: opts.writeChunkThreshold,
		docRoot:             opts.docRoot,
		readBuf:             buffer.New(buffer.DefaultSize),
		writeBuf:            buffer.New(buffer.DefaultSize),
		request:             httpproto.NewRequest(opts.credentials, opts.log),
		response:            httpproto.NewResponse(opts.log),
		log:                 opts.log,
	}
}

// Fd returns the socket descriptor.
func (c *HTTPConnection) Fd() int { return c.fd }

// Addr returns the peer address.
func (c *HTTPConnection) Addr() string { return c.addr }

// ID returns the connection id.
func (c *HTTPConnection) ID() uint64 { return c.id }

// Read drains the socket into the read buffer. Level-triggered connections
// read once; edge-triggered ones read until the socket would block.
//
// Returns io.EOF when the peer closed its side. unix.EAGAIN is returned when
// no more bytes are available and is not fatal.
func (c *HTTPConnection) Read() (int, error) {
	total := 0
	for {
		n, err := c.readBuf.ReadFd(c.fd)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
		if !c.edgeTriggered {
			return total, nil
		}
	}
}

// Process advances the parser over buffered bytes and, once a request is
// complete or malformed, renders its response into the write buffer.
//
// Returns true when a response is ready to write and false when more bytes
// are needed.
func (c *HTTPConnection) Process(ctx context.Context) bool {
	if c.request.State() == httpproto.StateFinished {
		c.request.Init()
	}
	if c.readBuf.ReadableBytes() == 0 {
		return false
	}
	if c.requestStart.IsZero() {
		c.requestStart = time.Now()
	}

	done, err := c.request.Parse(ctx, c.readBuf)
	switch {
	case err != nil:
		c.log.Debug("HTTP bad request from %s: %v", c.addr, err)
		c.response.Init(c.docRoot, c.request.Path, false, httpproto.StatusBadRequest)
		// Nothing after a malformed request line can be trusted.
		c.readBuf.RetrieveAll()
	case !done:
		return false
	default:
		c.response.Init(c.docRoot, c.request.Path, c.request.IsKeepAlive(), httpproto.StatusOK)
	}

	c.response.MakeResponse(c.writeBuf)
	c.iov[0] = c.writeBuf.Peek()
	c.iov[1] = c.response.File()

	c.log.Debug("HTTP %s %s -> %d (%s, file=%d bytes)",
		c.request.Method, c.response.Path(), c.response.Code(), c.addr, c.response.FileLen())
	return true
}

// Write sends the pending header and file regions with writev.
//
// Edge-triggered connections write until done or the socket would block.
// Level-triggered connections stop once at most writeChunkThreshold bytes
// remain and resume on the next writable event.
func (c *HTTPConnection) Write() (int, error) {
	total := 0
	for c.ToWriteBytes() > 0 {
		n, err := unix.Writev(c.fd, c.iov[:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, unix.EAGAIN
		}
		total += n
		c.advance(n)

		if !c.edgeTriggered && c.ToWriteBytes() <= c.writeChunkThreshold {
			break
		}
	}
	return total, nil
}

// advance consumes n written bytes from the iov regions.
func (c *HTTPConnection) advance(n int) {
	if head := len(c.iov[0]); n >= head {
		c.iov[1] = c.iov[1][n-head:]
		c.iov[0] = nil
		c.writeBuf.RetrieveAll()
		return
	}
	c.iov[0] = c.iov[0][n:]
	_ = c.writeBuf.Retrieve(n)
}

// ToWriteBytes returns the number of response bytes not yet sent.
func (c *HTTPConnection) ToWriteBytes() int {
	return len(c.iov[0]) + len(c.iov[1])
}

// IsKeepAlive reports whether the current response keeps the connection open.
func (c *HTTPConnection) IsKeepAlive() bool {
	return c.response.KeepAlive()
}

// finishRequest returns the method, status and elapsed time of the response
// just queued, and resets the request clock.
func (c *HTTPConnection) finishRequest() (string, int, time.Duration) {
	elapsed := time.Since(c.requestStart)
	c.requestStart = time.Time{}
	return c.request.Method, c.response.Code(), elapsed
}

// Close releases the mapping and closes the socket. Safe to call repeatedly.
func (c *HTTPConnection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.response.UnmapFile()
	c.iov = [2][]byte{}
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	return unix.Close(c.fd)
}

// Closed reports whether Close has run.
func (c *HTTPConnection) Closed() bool {
	return c.closed
}
