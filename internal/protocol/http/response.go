package http

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lyhellcat/TinyWebServer/internal/buffer"
	"github.com/lyhellcat/TinyWebServer/internal/logger"
)

const (
	// serverName appears in synthesized error bodies.
	serverName = "TinyWebServer"

	keepAliveHeader = "Connection: keep-alive\r\nkeep-alive: max=6, timeout=120\r\n"
	closeHeader     = "Connection: close\r\n"
)

// Response builds the status line and headers for one request and owns the
// memory mapping of the file being served.
//
// The mapping is released exactly once: by the next Init on the same
// Response, or by UnmapFile when the connection closes.
type Response struct {
	code      int
	keepAlive bool
	path      string
	docRoot   string
	file      mappedFile
	size      int64
	log       *logger.Logger
}

// NewResponse returns an empty Response.
func NewResponse(log *logger.Logger) *Response {
	if log == nil {
		log = logger.Default()
	}
	return &Response{code: StatusUnset, log: log}
}

// Init prepares the Response for a new request, releasing any previous mapping.
//
// code is StatusUnset (or StatusOK) for a normally parsed request, in which
// case the final status is derived from the file. An error code is kept and
// answered with its canned page.
func (r *Response) Init(docRoot, path string, keepAlive bool, code int) {
	r.UnmapFile()
	r.code = code
	r.keepAlive = keepAlive
	r.path = path
	r.docRoot = docRoot
	r.size = 0
}

// MakeResponse appends the status line, headers and, when the file cannot be
// mapped, an inline error body to buf. The file body itself is exposed by File.
func (r *Response) MakeResponse(buf *buffer.Buffer) {
	if r.code == StatusUnset || r.code == StatusOK {
		info, err := os.Stat(r.docRoot + r.path)
		switch {
		case err != nil || info.IsDir():
			r.code = StatusNotFound
		case info.Mode().Perm()&0o004 == 0:
			r.code = StatusForbidden
		default:
			r.code = StatusOK
		}
	}

	if page, ok := errorPages[r.code]; ok {
		r.path = page
	}

	r.addStatusLine(buf)
	r.addHeaders(buf)
	r.addContent(buf)
}

func (r *Response) addStatusLine(buf *buffer.Buffer) {
	text, ok := StatusText(r.code)
	if !ok {
		r.code = StatusBadRequest
		text, _ = StatusText(r.code)
	}
	buf.AppendString("HTTP/1.1 " + strconv.Itoa(r.code) + " " + text + "\r\n")
}

func (r *Response) addHeaders(buf *buffer.Buffer) {
	if r.keepAlive {
		buf.AppendString(keepAliveHeader)
	} else {
		buf.AppendString(closeHeader)
	}
	buf.AppendString("Content-type: " + ContentType(r.path) + "\r\n")
}

func (r *Response) addContent(buf *buffer.Buffer) {
	f, err := os.Open(r.docRoot + r.path)
	if err != nil {
		r.ErrorContent(buf, "File NotFound!")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		r.ErrorContent(buf, "File NotFound!")
		return
	}

	r.size = info.Size()
	if r.size == 0 {
		buf.AppendString("Content-length: 0\r\n\r\n")
		return
	}

	mapped, err := mapFile(f, int(r.size))
	if err != nil {
		r.log.Warn("HTTP failed to map %s: %v", r.docRoot+r.path, err)
		r.size = 0
		r.ErrorContent(buf, "File NotFound!")
		return
	}
	r.file = mapped
	buf.AppendString("Content-length: " + strconv.FormatInt(r.size, 10) + "\r\n\r\n")
}

// ErrorContent appends a Content-length header and a small HTML page
// describing the current status.
func (r *Response) ErrorContent(buf *buffer.Buffer, message string) {
	text, ok := StatusText(r.code)
	if !ok {
		text = "Bad Request"
	}
	body := fmt.Sprintf("<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>%s</em></body></html>",
		r.code, text, message, serverName)

	buf.AppendString("Content-length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	buf.AppendString(body)
}

// File returns the mapped body, or nil when the body was inlined.
func (r *Response) File() []byte {
	return r.file.Bytes()
}

// FileLen returns the length of the mapped body.
func (r *Response) FileLen() int {
	return len(r.file.Bytes())
}

// UnmapFile releases the mapping, if any. Safe to call repeatedly.
func (r *Response) UnmapFile() {
	if err := r.file.Release(); err != nil {
		r.log.Warn("HTTP %v", err)
	}
}

// Code returns the final status code once MakeResponse has run.
func (r *Response) Code() int {
	return r.code
}

// Path returns the path actually served.
func (r *Response) Path() string {
	return r.path
}

// KeepAlive reports whether the connection stays open after this response.
func (r *Response) KeepAlive() bool {
	return r.keepAlive
}
