// Package http implements the HTTP/1.1 subset served by the reactor adapter:
// an incremental request parser that consumes a connection's read buffer, and
// a response builder that serves static files from a document root through a
// read-only memory mapping.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/lyhellcat/TinyWebServer/internal/buffer"
	"github.com/lyhellcat/TinyWebServer/internal/logger"
)

// ErrBadRequest is returned by Parse when the request line is malformed.
var ErrBadRequest = errors.New("http: malformed request line")

// ParseState is the position of the parser within one request.
type ParseState int

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateFinished
)

func (s ParseState) String() string {
	switch s {
	case StateRequestLine:
		return "REQUEST_LINE"
	case StateHeaders:
		return "HEADERS"
	case StateBody:
		return "BODY"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// CredentialChecker answers login and registration attempts submitted through
// the form routes.
type CredentialChecker interface {
	VerifyLogin(ctx context.Context, username, password string) (bool, error)
	RegisterUser(ctx context.Context, username, password string) (bool, error)
}

const formContentType = "application/x-www-form-urlencoded"

var (
	crlf = []byte("\r\n")

	requestLinePattern = regexp.MustCompile(`^([^ ]*) ([^ ]*) HTTP/([^ ]*)$`)
	headerPattern      = regexp.MustCompile(`^([^ :]*): ?(.*)$`)

	// defaultPages are bare paths served as their .html page.
	defaultPages = map[string]struct{}{
		"/index":    {},
		"/register": {},
		"/login":    {},
		"/welcome":  {},
		"/video":    {},
		"/picture":  {},
	}
)

type credentialAction int

const (
	actionRegister credentialAction = iota
	actionLogin
)

// credentialRoutes maps form targets to the check they trigger.
var credentialRoutes = map[string]credentialAction{
	"/register.html": actionRegister,
	"/login.html":    actionLogin,
}

const (
	pageWelcome = "/welcome.html"
	pageError   = "/error.html"
)

// Request is one parsed HTTP request.
//
// The parser is incremental: Parse consumes whatever complete lines are in
// the buffer and keeps its state between calls, so a request split across
// several reads ends up identical to one delivered in a single read.
type Request struct {
	Method  string
	Path    string
	Version string
	Body    string
	Headers map[string]string
	Form    map[string]string

	state       ParseState
	credentials CredentialChecker
	log         *logger.Logger
}

// NewRequest creates a Request ready to parse. credentials may be nil, in
// which case every login and registration fails.
func NewRequest(credentials CredentialChecker, log *logger.Logger) *Request {
	if log == nil {
		log = logger.Default()
	}
	r := &Request{credentials: credentials, log: log}
	r.Init()
	return r
}

// Init resets the request for the next message on the connection.
func (r *Request) Init() {
	r.Method, r.Path, r.Version, r.Body = "", "", "", ""
	r.Headers = make(map[string]string)
	r.Form = make(map[string]string)
	r.state = StateRequestLine
}

// State returns the current parse state.
func (r *Request) State() ParseState {
	return r.state
}

// Parse consumes bytes from buf.
//
// Returns:
//   - (true, nil) when the request is complete
//   - (false, nil) when more bytes are needed; already consumed lines are kept
//   - (false, ErrBadRequest) when the request line does not match
func (r *Request) Parse(ctx context.Context, buf *buffer.Buffer) (bool, error) {
	for r.state != StateFinished {
		switch r.state {
		case StateRequestLine, StateHeaders:
			line, ok := nextLine(buf)
			if !ok {
				return false, nil
			}
			if r.state == StateRequestLine {
				// Empty lines before a request line are ignored (RFC 7230 3.5).
				if line == "" {
					continue
				}
				if err := r.parseRequestLine(line); err != nil {
					return false, err
				}
				r.normalizePath()
				r.state = StateHeaders
				continue
			}
			r.parseHeader(line, buf)

		case StateBody:
			if !r.parseBody(buf) {
				return false, nil
			}
			r.parseForm(ctx)
			r.state = StateFinished
		}
	}

	r.log.Debug("HTTP request parsed: method=%s path=%s version=%s", r.Method, r.Path, r.Version)
	return true, nil
}

// nextLine consumes and returns one CRLF-terminated line without the CRLF.
func nextLine(buf *buffer.Buffer) (string, bool) {
	data := buf.Peek()
	idx := bytes.Index(data, crlf)
	if idx < 0 {
		return "", false
	}
	line := string(data[:idx])
	_ = buf.Retrieve(idx + len(crlf))
	return line, true
}

func (r *Request) parseRequestLine(line string) error {
	m := requestLinePattern.FindStringSubmatch(line)
	if m == nil {
		r.log.Debug("HTTP bad request line: %q", line)
		return fmt.Errorf("%w: %q", ErrBadRequest, line)
	}
	r.Method, r.Path, r.Version = m[1], m[2], m[3]
	return nil
}

func (r *Request) normalizePath() {
	if r.Path == "/" {
		r.Path = "/index.html"
		return
	}
	if _, ok := defaultPages[r.Path]; ok {
		r.Path += ".html"
	}
}

// parseHeader stores one header, or ends the header block when the line is
// not a header (normally the empty separator line).
func (r *Request) parseHeader(line string, buf *buffer.Buffer) {
	if m := headerPattern.FindStringSubmatch(line); m != nil {
		r.Headers[m[1]] = m[2]
		return
	}

	if r.Method == "GET" || (r.contentLength() <= 0 && buf.ReadableBytes() == 0) {
		r.state = StateFinished
		return
	}
	r.state = StateBody
}

// parseBody takes the body, which is a single line: everything up to the
// next CRLF, or every buffered byte when no CRLF has arrived. A positive
// Content-Length caps the body; bytes past it stay buffered for the next
// request. It only reports false while no body byte is buffered at all.
func (r *Request) parseBody(buf *buffer.Buffer) bool {
	data := buf.Peek()
	if len(data) == 0 {
		return false
	}

	limit := len(data)
	if n := r.contentLength(); n > 0 && n < limit {
		limit = n
	}

	if idx := bytes.Index(data[:limit], crlf); idx >= 0 {
		r.Body = string(data[:idx])
		_ = buf.Retrieve(idx + len(crlf))
		return true
	}
	// A Content-Length that ends between CR and LF
	if limit < len(data) && data[limit-1] == '\r' && data[limit] == '\n' {
		r.Body = string(data[:limit-1])
		_ = buf.Retrieve(limit + 1)
		return true
	}
	r.Body = string(data[:limit])
	_ = buf.Retrieve(limit)
	return true
}

func (r *Request) contentLength() int {
	v, ok := r.Headers["Content-Length"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

func (r *Request) parseForm(ctx context.Context) {
	if r.Method != "POST" || r.Headers["Content-Type"] != formContentType {
		return
	}
	r.parseURLEncoded()

	action, ok := credentialRoutes[r.Path]
	if !ok {
		return
	}
	if r.checkCredentials(ctx, action) {
		r.Path = pageWelcome
	} else {
		r.Path = pageError
	}
}

// parseURLEncoded splits the body on '&' and each pair on its first '='.
func (r *Request) parseURLEncoded() {
	if r.Body == "" {
		return
	}
	for _, pair := range strings.Split(r.Body, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		r.Form[unescape(key)] = unescape(value)
	}
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// checkCredentials fails closed: empty fields, a missing store and store
// errors all count as failure.
func (r *Request) checkCredentials(ctx context.Context, action credentialAction) bool {
	username, password := r.Form["username"], r.Form["password"]
	if username == "" || password == "" || r.credentials == nil {
		return false
	}

	var ok bool
	var err error
	switch action {
	case actionLogin:
		ok, err = r.credentials.VerifyLogin(ctx, username, password)
	case actionRegister:
		ok, err = r.credentials.RegisterUser(ctx, username, password)
	}
	if err != nil {
		r.log.Error("Credential check failed for user %q: %v", username, err)
		return false
	}
	r.log.Debug("Credential check for user %q (login=%v): %v", username, action == actionLogin, ok)
	return ok
}

// FormValue returns a decoded form field, or "" if absent.
func (r *Request) FormValue(key string) string {
	return r.Form[key]
}

// IsKeepAlive reports whether the client asked to reuse the connection.
func (r *Request) IsKeepAlive() bool {
	return r.Headers["Connection"] == "keep-alive" && r.Version == "1.1"
}
