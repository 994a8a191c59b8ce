//go:build linux

package http

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/lyhellcat/TinyWebServer/internal/reactor"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	indexBody   = "<html>index</html>"
	welcomeBody = "<html>welcome</html>"
	errorBody   = "<html>error</html>"
	notFound    = "<html>404</html>"
	badRequest  = "<html>400</html>"
)

func findFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func newDocRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":   indexBody,
		"welcome.html": welcomeBody,
		"error.html":   errorBody,
		"404.html":     notFound,
		"400.html":     badRequest,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o644))
	}
	return root
}

type testServer struct {
	adapter *HTTPAdapter
	addr    string
	errc    chan error
}

func startServer(t *testing.T, mutate func(*HTTPConfig)) *testServer {
	t.Helper()

	cfg := HTTPConfig{
		Enabled:      true,
		Port:         findFreePort(t),
		TriggerMode:  TriggerBothEdge,
		Workers:      4,
		DocumentRoot: newDocRoot(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	a := New(cfg, nil, logger.Nop())
	store, err := memory.New(memory.Config{Users: map[string]string{"alice": "secret"}, BcryptCost: 4})
	require.NoError(t, err)
	a.SetCredentials(store)

	ts := &testServer{adapter: a, errc: make(chan error, 1)}
	go func() { ts.errc <- a.Serve(context.Background()) }()

	select {
	case <-a.Ready():
	case err := <-ts.errc:
		t.Fatalf("Serve failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	ts.addr = fmt.Sprintf("127.0.0.1:%d", a.Port())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, a.Stop(ctx))
		select {
		case err := <-ts.errc:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("Serve did not return")
		}
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", ts.addr, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readResponse(t *testing.T, r *bufio.Reader) (*nethttp.Response, string) {
	t.Helper()
	resp, err := nethttp.ReadResponse(r, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func expectEOF(t *testing.T, r io.Reader) {
	t.Helper()
	rest, err := io.ReadAll(r)
	require.NoError(t, err, "connection should be closed by the server")
	assert.Empty(t, rest)
}

func get(path string, keepAlive bool) string {
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	return "GET " + path + " HTTP/1.1\r\nHost: localhost\r\nConnection: " + conn + "\r\n\r\n"
}

func post(path, form string) string {
	return fmt.Sprintf("POST %s HTTP/1.1\r\nHost: localhost\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\nContent-Length: %d\r\n\r\n%s",
		path, len(form), form)
}

func TestServeIndexWithKeepAlive(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	for i := 0; i < 3; i++ {
		_, err := io.WriteString(conn, get("/", true))
		require.NoError(t, err)

		resp, body := readResponse(t, r)
		assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
		assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))
		assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
		assert.Equal(t, indexBody, body)
	}
}

func TestPipelinedRequests(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	_, err := io.WriteString(conn, get("/welcome", true)+get("/", false))
	require.NoError(t, err)

	_, body := readResponse(t, r)
	assert.Equal(t, welcomeBody, body)
	_, body = readResponse(t, r)
	assert.Equal(t, indexBody, body)
	expectEOF(t, r)
}

func TestNotFoundClosesConnection(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	_, err := io.WriteString(conn, get("/missing.html", false))
	require.NoError(t, err)

	resp, body := readResponse(t, r)
	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "close", resp.Header.Get("Connection"))
	assert.Equal(t, notFound, body)
	expectEOF(t, r)
}

func TestMalformedRequestGets400(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	_, err := io.WriteString(conn, "NONSENSE\r\n\r\n")
	require.NoError(t, err)

	resp, body := readResponse(t, r)
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, badRequest, body)
	expectEOF(t, r)
}

func TestLoginRoutes(t *testing.T) {
	tests := []struct {
		name string
		path string
		form string
		want string
	}{
		{"valid login", "/login", "username=alice&password=secret", welcomeBody},
		{"wrong password", "/login", "username=alice&password=wrong", errorBody},
		{"unknown user", "/login", "username=bob&password=secret", errorBody},
		{"register new user", "/register", "username=carol&password=pw", welcomeBody},
		{"register existing user", "/register", "username=alice&password=x", errorBody},
	}

	ts := startServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := ts.dial(t)
			r := bufio.NewReader(conn)

			_, err := io.WriteString(conn, post(tt.path, tt.form))
			require.NoError(t, err)

			resp, body := readResponse(t, r)
			assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestLoginBodyShorterThanContentLength(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	_, err := io.WriteString(conn, "POST /login HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: 27\r\n\r\nusername=a&password=wrong")
	require.NoError(t, err)

	resp, body := readResponse(t, r)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, errorBody, body)
	expectEOF(t, r)
}

func TestRequestSplitAcrossWrites(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	req := post("/login", "username=alice&password=secret")
	for _, part := range []string{req[:7], req[7:30], req[30:]} {
		_, err := io.WriteString(conn, part)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	_, body := readResponse(t, r)
	assert.Equal(t, welcomeBody, body)
}

func TestTriggerModes(t *testing.T) {
	big := strings.Repeat("0123456789abcdef", 64*1024)

	for mode := TriggerLevel; mode <= TriggerBothEdge; mode++ {
		t.Run(fmt.Sprintf("mode %d", mode), func(t *testing.T) {
			ts := startServer(t, func(c *HTTPConfig) {
				c.TriggerMode = mode
				require.NoError(t, os.WriteFile(filepath.Join(c.DocumentRoot, "big.txt"), []byte(big), 0o644))
			})
			conn := ts.dial(t)
			r := bufio.NewReader(conn)

			_, err := io.WriteString(conn, get("/big.txt", true)+get("/", false))
			require.NoError(t, err)

			resp, body := readResponse(t, r)
			assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
			assert.Equal(t, len(big), len(body))
			assert.True(t, body == big)

			_, body = readResponse(t, r)
			assert.Equal(t, indexBody, body)
			expectEOF(t, r)
		})
	}
}

func TestIdleConnectionEvicted(t *testing.T) {
	ts := startServer(t, func(c *HTTPConfig) {
		c.IdleTimeout = 200 * time.Millisecond
	})
	conn := ts.dial(t)

	start := time.Now()
	expectEOF(t, conn)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	require.Eventually(t, func() bool {
		return ts.adapter.GetActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestActivityPostponesEviction(t *testing.T) {
	ts := startServer(t, func(c *HTTPConfig) {
		c.IdleTimeout = 300 * time.Millisecond
	})
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		_, err := io.WriteString(conn, get("/", true))
		require.NoError(t, err)
		_, body := readResponse(t, r)
		assert.Equal(t, indexBody, body)
	}
	expectEOF(t, r)
}

func TestCapacityLimitRejects(t *testing.T) {
	ts := startServer(t, func(c *HTTPConfig) {
		c.MaxConnections = 1
	})

	first := ts.dial(t)
	require.Eventually(t, func() bool {
		return ts.adapter.GetActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	second := ts.dial(t)
	msg, err := io.ReadAll(second)
	require.NoError(t, err)
	assert.Equal(t, busyMessage, string(msg))

	// The admitted connection keeps working.
	r := bufio.NewReader(first)
	_, err = io.WriteString(first, get("/", false))
	require.NoError(t, err)
	_, body := readResponse(t, r)
	assert.Equal(t, indexBody, body)
}

func TestConcurrentClientsNeverOverlap(t *testing.T) {
	ts := startServer(t, func(c *HTTPConfig) {
		c.Workers = 8
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", ts.addr, 2*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = conn.Close() }()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
			r := bufio.NewReader(conn)
			for j := 0; j < 10; j++ {
				if _, err := io.WriteString(conn, get("/", true)); !assert.NoError(t, err) {
					return
				}
				resp, err := nethttp.ReadResponse(r, nil)
				if !assert.NoError(t, err) {
					return
				}
				body, _ := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				assert.Equal(t, indexBody, string(body))
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, ts.adapter.overlappingTasks.Load())
}

func TestKeepAliveConnectionIsRearmedBetweenRequests(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	r := bufio.NewReader(conn)

	for i := 0; i < 3; i++ {
		_, err := io.WriteString(conn, get("/", true))
		require.NoError(t, err)
		_, body := readResponse(t, r)
		assert.Equal(t, indexBody, body)

		// Once the response is out the socket waits armed for the next request.
		require.Eventually(t, func() bool {
			armed := false
			ts.adapter.conns.Range(func(_ int, c *HTTPConnection) bool {
				armed = c.armed.Load()
				return false
			})
			return armed
		}, 2*time.Second, 5*time.Millisecond)
	}
	assert.Zero(t, ts.adapter.overlappingTasks.Load())
}

func TestStopClosesOpenConnections(t *testing.T) {
	ts := startServer(t, nil)
	conn := ts.dial(t)
	require.Eventually(t, func() bool {
		return ts.adapter.GetActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ts.adapter.Stop(context.Background()))
	expectEOF(t, conn)
	assert.Zero(t, ts.adapter.GetActiveConnections())
}

func TestStopBeforeServe(t *testing.T) {
	a := New(HTTPConfig{DocumentRoot: t.TempDir()}, nil, logger.Nop())
	assert.NoError(t, a.Stop(context.Background()))
	assert.NoError(t, a.Stop(context.Background()))
}

func TestServeFailsWhenPortInUse(t *testing.T) {
	ts := startServer(t, nil)

	other := New(HTTPConfig{Port: ts.adapter.Port(), DocumentRoot: t.TempDir()}, nil, logger.Nop())
	err := other.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener")
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := HTTPConfig{DocumentRoot: "/srv/www/../www/"}
	cfg.applyDefaults()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMaxConnections, cfg.MaxConnections)
	assert.Equal(t, DefaultMaxEvents, cfg.MaxEvents)
	assert.Equal(t, DefaultWriteChunkThreshold, cfg.WriteChunkThreshold)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, "/srv/www", cfg.DocumentRoot)
	assert.Zero(t, cfg.IdleTimeout)
	require.NoError(t, cfg.validate())

	bad := []HTTPConfig{
		{Port: 80, DocumentRoot: "/srv"},
		{Port: 70000, DocumentRoot: "/srv"},
		{Port: 8080, TriggerMode: 4, DocumentRoot: "/srv"},
		{Port: 8080, IdleTimeout: -time.Second, DocumentRoot: "/srv"},
		{Port: 8080},
	}
	for _, c := range bad {
		assert.Error(t, c.validate(), "%+v", c)
	}

	assert.Panics(t, func() { New(HTTPConfig{Port: 80, DocumentRoot: "/srv"}, nil, nil) })
}

func TestEventMasks(t *testing.T) {
	tests := []struct {
		mode     int
		listenET bool
		connET   bool
	}{
		{TriggerLevel, false, false},
		{TriggerConnEdge, false, true},
		{TriggerListenEdge, true, false},
		{TriggerBothEdge, true, true},
	}
	for _, tt := range tests {
		cfg := HTTPConfig{TriggerMode: tt.mode}
		listen, conn := cfg.eventMasks()

		assert.Equal(t, tt.listenET, listen.Has(reactor.EventET), "mode %d listen", tt.mode)
		assert.Equal(t, tt.connET, conn.Has(reactor.EventET), "mode %d conn", tt.mode)
		assert.True(t, listen.Has(reactor.EventRDHup))
		assert.False(t, listen.Has(reactor.EventOneShot))
		assert.True(t, conn.Has(reactor.EventOneShot))
		assert.True(t, conn.Has(reactor.EventRDHup))
	}
}
