package http

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/lyhellcat/TinyWebServer/internal/buffer"
	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDocRoot creates a document root with the canned pages and returns its path.
func newDocRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "index.html", "<h1>hello</h1>", 0o644)
	writeFile(t, dir, "400.html", "bad", 0o644)
	writeFile(t, dir, "403.html", "forbidden", 0o644)
	writeFile(t, dir, "404.html", "missing", 0o644)
	writeFile(t, dir, "secret.html", "top secret", 0o600)
	writeFile(t, dir, "empty.txt", "", 0o644)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "images"), 0o755))

	return dir
}

func writeFile(t *testing.T, dir, name, content string, perm os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	// WriteFile is subject to umask.
	require.NoError(t, os.Chmod(path, perm))
}

func build(t *testing.T, docRoot, path string, keepAlive bool, code int) (*Response, string) {
	t.Helper()
	r := NewResponse(logger.Nop())
	t.Cleanup(r.UnmapFile)

	r.Init(docRoot, path, keepAlive, code)
	buf := buffer.New(0)
	r.MakeResponse(buf)
	return r, buf.RetrieveAllString()
}

// ============================================================================
// Status Resolution
// ============================================================================

func TestResponseOK(t *testing.T) {
	root := newDocRoot(t)
	r, head := build(t, root, "/index.html", false, StatusUnset)

	assert.Equal(t, StatusOK, r.Code())
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, head, "Connection: close\r\n")
	assert.Contains(t, head, "Content-type: text/html\r\n")
	assert.True(t, strings.HasSuffix(head, "Content-length: 14\r\n\r\n"))
	assert.Equal(t, "<h1>hello</h1>", string(r.File()))
	assert.Equal(t, 14, r.FileLen())
}

func TestResponseKeepAliveHeaders(t *testing.T) {
	root := newDocRoot(t)
	r, head := build(t, root, "/index.html", true, StatusOK)

	assert.True(t, r.KeepAlive())
	assert.Contains(t, head, "Connection: keep-alive\r\n")
	assert.Contains(t, head, "keep-alive: max=6, timeout=120\r\n")
	assert.NotContains(t, head, "Connection: close")
}

func TestResponseNotFound(t *testing.T) {
	root := newDocRoot(t)

	for _, path := range []string{"/nothing.html", "/images"} {
		t.Run(path, func(t *testing.T) {
			r, head := build(t, root, path, false, StatusUnset)
			assert.Equal(t, StatusNotFound, r.Code())
			assert.Equal(t, "/404.html", r.Path())
			assert.True(t, strings.HasPrefix(head, "HTTP/1.1 404 Not Found\r\n"))
			assert.Equal(t, "missing", string(r.File()))
		})
	}
}

func TestResponseForbidden(t *testing.T) {
	root := newDocRoot(t)
	r, head := build(t, root, "/secret.html", false, StatusUnset)

	assert.Equal(t, StatusForbidden, r.Code())
	assert.Equal(t, "/403.html", r.Path())
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 403 Forbidden\r\n"))
	assert.Equal(t, "forbidden", string(r.File()))
}

func TestResponseBadRequestKeepsCode(t *testing.T) {
	root := newDocRoot(t)
	r, head := build(t, root, "/index.html", false, StatusBadRequest)

	assert.Equal(t, StatusBadRequest, r.Code())
	assert.Equal(t, "/400.html", r.Path())
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 400 Bad Request\r\n"))
	assert.Equal(t, "bad", string(r.File()))
}

func TestResponseUnknownCodeFallsBackTo400(t *testing.T) {
	root := newDocRoot(t)
	r, head := build(t, root, "/index.html", false, 418)

	assert.Equal(t, StatusBadRequest, r.Code())
	assert.True(t, strings.HasPrefix(head, "HTTP/1.1 400 Bad Request\r\n"))
}

// ============================================================================
// Body
// ============================================================================

func TestResponseMissingErrorPageInlinesBody(t *testing.T) {
	root := t.TempDir()
	r, head := build(t, root, "/nothing.html", false, StatusUnset)

	assert.Equal(t, StatusNotFound, r.Code())
	assert.Nil(t, r.File())
	assert.Contains(t, head, "404 : Not Found\n<p>File NotFound!</p>")
	assert.Contains(t, head, "<em>TinyWebServer</em>")

	_, body, found := strings.Cut(head, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, head, "Content-length: "+strconv.Itoa(len(body))+"\r\n")
}

func TestResponseEmptyFile(t *testing.T) {
	root := newDocRoot(t)
	r, head := build(t, root, "/empty.txt", false, StatusUnset)

	assert.Equal(t, StatusOK, r.Code())
	assert.Contains(t, head, "Content-type: text/plain\r\n")
	assert.True(t, strings.HasSuffix(head, "Content-length: 0\r\n\r\n"))
	assert.Nil(t, r.File())
	assert.Zero(t, r.FileLen())
}

func TestErrorContent(t *testing.T) {
	r := NewResponse(logger.Nop())
	r.Init("", "/x", false, StatusForbidden)

	buf := buffer.New(0)
	r.ErrorContent(buf, "nope")

	want := "<html><title>Error</title><body bgcolor=\"ffffff\">403 : Forbidden\n<p>nope</p><hr><em>TinyWebServer</em></body></html>"
	assert.Equal(t, "Content-length: "+strconv.Itoa(len(want))+"\r\n\r\n"+want, buf.RetrieveAllString())
}

// ============================================================================
// Mapping Lifecycle
// ============================================================================

func TestUnmapFileIdempotent(t *testing.T) {
	root := newDocRoot(t)
	r, _ := build(t, root, "/index.html", false, StatusUnset)
	require.NotNil(t, r.File())

	r.UnmapFile()
	assert.Nil(t, r.File())
	assert.NotPanics(t, r.UnmapFile)
}

func TestInitReleasesPreviousMapping(t *testing.T) {
	root := newDocRoot(t)
	r, _ := build(t, root, "/index.html", true, StatusUnset)
	require.NotNil(t, r.File())

	r.Init(root, "/404.html", true, StatusUnset)
	assert.Nil(t, r.File())
	assert.Equal(t, StatusUnset, r.Code())

	buf := buffer.New(0)
	r.MakeResponse(buf)
	assert.Equal(t, "missing", string(r.File()))
}

// ============================================================================
// MIME Table
// ============================================================================

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"/index.html":   "text/html",
		"/a/b.css":      "text/css",
		"/app.js":       "text/javascript",
		"/img.jpg":      "image/jpeg",
		"/img.jpeg":     "image/jpeg",
		"/img.png":      "image/png",
		"/doc.pdf":      "application/pdf",
		"/archive.gz":   "application/x-gzip",
		"/noext":        "text/plain",
		"/weird.foo":    "text/plain",
		"/v.1/readme":   "text/plain",
		"/page.xhtml":   "application/xhtml+xml",
		"/movie.avi":    "video/x-msvideo",
		"/archive.tar":  "application/x-tar",
		"/sound.au":     "audio/basic",
		"/notes.txt":    "text/plain",
		"/legacy.word":  "application/nsword",
		"/clip.mpg":     "video/mpeg",
		"/feed.xml":     "text/xml",
		"/letter.rtf":   "application/rtf",
		"/anim.gif":     "image/gif",
		"/stream.mpeg":  "video/mpeg",
		"/trailingdot.": "text/plain",
	}
	for path, want := range tests {
		assert.Equal(t, want, ContentType(path), path)
	}
}

func TestStatusText(t *testing.T) {
	text, ok := StatusText(StatusNotFound)
	assert.True(t, ok)
	assert.Equal(t, "Not Found", text)

	_, ok = StatusText(StatusUnset)
	assert.False(t, ok)
}
