//go:build linux

// Package http implements the epoll-driven HTTP/1.1 static file adapter.
//
// One reactor goroutine polls the listening socket and every client socket.
// Accepts happen inline on that goroutine; reads, parsing, response building
// and writes run as tasks on a fixed worker pool. An indexed min-heap of idle
// deadlines drives the epoll_wait timeout, so the same goroutine evicts idle
// connections without a separate timer goroutine.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyhellcat/TinyWebServer/internal/logger"
	httpproto "github.com/lyhellcat/TinyWebServer/internal/protocol/http"
	"github.com/lyhellcat/TinyWebServer/internal/ratelimiter"
	"github.com/lyhellcat/TinyWebServer/internal/reactor"
	"github.com/lyhellcat/TinyWebServer/internal/timer"
	"github.com/lyhellcat/TinyWebServer/internal/workerpool"
	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"
)

// eventMasks returns the interest bits for the listening socket and for
// client sockets.
func (c *HTTPConfig) eventMasks() (listen, conn reactor.Event) {
	listen = reactor.EventRDHup
	conn = reactor.EventOneShot | reactor.EventRDHup
	switch c.TriggerMode {
	case TriggerConnEdge:
		conn |= reactor.EventET
	case TriggerListenEdge:
		listen |= reactor.EventET
	case TriggerBothEdge:
		listen |= reactor.EventET
		conn |= reactor.EventET
	}
	return listen, conn
}

// HTTPAdapter implements adapter.Adapter for the static HTTP server.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. The reactor is woken and the loop exits
//  3. The listening socket is closed
//  4. The worker pool stops; running tasks finish, queued ones are dropped
//  5. Every remaining connection is closed and the reactor released
//
// Thread safety:
// All exported methods are safe for concurrent use.
type HTTPAdapter struct {
	config  HTTPConfig
	metrics metrics.HTTPMetrics
	log     *logger.Logger

	credentials credential.Store

	listenEvent reactor.Event
	connEvent   reactor.Event

	// reactorMu guards the reactor field against Stop racing Serve
	reactorMu sync.Mutex
	reactor   *reactor.Reactor
	timer     *timer.Heap
	pool      *workerpool.Pool
	limiter   *ratelimiter.RateLimiter

	// listenFd is -1 until Serve binds the socket
	listenFd int

	// conns maps fd to the connection that currently owns it
	conns     *xsync.MapOf[int, *HTTPConnection]
	connCount atomic.Int32
	nextID    atomic.Uint64

	// ctx is cancelled when shutdown starts; tasks pass it to the parser
	ctx    context.Context
	cancel context.CancelFunc

	boundPort    atomic.Int32
	ready        chan struct{}
	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}

	// overlappingTasks counts events delivered for a connection that had
	// not been re-armed since its previous event
	overlappingTasks atomic.Int64
}

// New creates a new HTTPAdapter with the specified configuration.
//
// Parameters:
//   - config: Adapter configuration; zero values get defaults
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//   - log: Logger used by the adapter and its connections (nil for the default)
//
// Panics if config validation fails.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics, log *logger.Logger) *HTTPAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}
	if log == nil {
		log = logger.Default()
	}

	listenEvent, connEvent := config.eventMasks()
	ctx, cancel := context.WithCancel(context.Background())

	s := &HTTPAdapter{
		config:      config,
		metrics:     httpMetrics,
		log:         log,
		listenEvent: listenEvent,
		connEvent:   connEvent,
		timer:       timer.New(),
		limiter:     ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		listenFd:    -1,
		conns:       xsync.NewMapOf[int, *HTTPConnection](),
		ctx:         ctx,
		cancel:      cancel,
		ready:       make(chan struct{}),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.pool = workerpool.New(config.Workers, workerpool.WithPanicHandler(func(r any) {
		s.log.Error("HTTP worker panic: %v", r)
	}))
	return s
}

// SetCredentials injects the store used by the login and registration routes.
func (s *HTTPAdapter) SetCredentials(store credential.Store) {
	s.credentials = store
	s.log.Debug("HTTP credential store configured")
}

// Serve binds the listening socket and runs the reactor loop until ctx is
// cancelled or Stop is called.
//
// Returns an error if the socket, epoll instance or loop fail. Setup failures
// are returned before any connection is accepted.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	defer close(s.done)

	r, err := reactor.New(s.config.MaxEvents)
	if err != nil {
		return fmt.Errorf("failed to create HTTP reactor: %w", err)
	}
	s.reactorMu.Lock()
	s.reactor = r
	s.reactorMu.Unlock()

	fd, err := listenTCP(s.config.Port, s.config.Linger)
	if err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", s.config.Port, err)
	}
	if err := r.Add(fd, s.listenEvent|reactor.EventIn); err != nil {
		_ = unix.Close(fd)
		_ = r.Close()
		return fmt.Errorf("failed to register HTTP listener: %w", err)
	}
	s.listenFd = fd
	if port, err := boundPort(fd); err == nil {
		s.boundPort.Store(int32(port))
	}

	s.pool.Start()
	close(s.ready)

	s.log.Info("HTTP server listening on port %d (root %s)", s.Port(), s.config.DocumentRoot)
	s.log.Info("HTTP config: trigger_mode=%d listen=%v conn=%v workers=%d idle_timeout=%v linger=%v max_connections=%d",
		s.config.TriggerMode, s.listenEvent, s.connEvent, s.pool.Workers(), s.config.IdleTimeout,
		s.config.Linger, s.config.MaxConnections)

	go func() {
		select {
		case <-ctx.Done():
			s.log.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	loopErr := s.eventLoop()
	s.teardown()
	return loopErr
}

// eventLoop is the reactor goroutine.
func (s *HTTPAdapter) eventLoop() error {
	for {
		select {
		case <-s.shutdown:
			return nil
		default:
		}

		timeoutMs := -1
		if s.config.IdleTimeout > 0 {
			if d, ok := s.timer.NextTick(); ok {
				timeoutMs = int((d + time.Millisecond - 1) / time.Millisecond)
			}
		}

		n, err := s.reactor.Wait(timeoutMs)
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			return fmt.Errorf("HTTP reactor wait failed: %w", err)
		}

		for i := 0; i < n; i++ {
			fd, events := s.reactor.EventFd(i), s.reactor.EventMask(i)
			if fd == s.listenFd {
				s.acceptConnections()
				continue
			}
			s.dispatch(fd, events)
		}
		s.metrics.SetQueuedTasks(s.pool.Queued())
	}
}

// acceptConnections accepts pending clients. An edge-triggered listener is
// drained until accept would block.
func (s *HTTPAdapter) acceptConnections() {
	for {
		fd, sa, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				s.log.Warn("HTTP accept failed: %v", err)
			}
			return
		}

		addr := peerString(sa)
		switch {
		case int(s.connCount.Load()) >= s.config.MaxConnections:
			s.reject(fd, addr, metrics.RejectReasonCapacity)
		case !s.limiter.Allow():
			s.reject(fd, addr, metrics.RejectReasonRateLimit)
		default:
			s.addClient(fd, addr)
		}

		if !s.listenEvent.Has(reactor.EventET) {
			return
		}
	}
}

func (s *HTTPAdapter) reject(fd int, addr, reason string) {
	s.log.Warn("HTTP refusing connection from %s: %s (active: %d)", addr, reason, s.connCount.Load())
	s.metrics.RecordConnectionRejected(reason)
	if err := rejectConn(fd); err != nil {
		s.log.Debug("HTTP error refusing %s: %v", addr, err)
	}
}

// addClient registers a new connection in the table, the timer heap and the
// reactor, in that order.
func (s *HTTPAdapter) addClient(fd int, addr string) {
	c := newHTTPConnection(s.nextID.Add(1), fd, addr, connOptions{
		docRoot:             s.config.DocumentRoot,
		edgeTriggered:       s.connEvent.Has(reactor.EventET),
		writeChunkThreshold: s.config.WriteChunkThreshold,
		credentials:         s.credentials,
		log:                 s.log,
	})

	s.conns.Store(fd, c)
	if s.config.IdleTimeout > 0 {
		s.timer.Add(fd, s.config.IdleTimeout, s.idleCallback(fd, c.id))
	}
	c.armed.Store(true)
	if err := s.reactor.Add(fd, s.connEvent|reactor.EventIn); err != nil {
		s.log.Warn("HTTP failed to register %s: %v", addr, err)
		c.mu.Lock()
		s.closeConn(c, metrics.CloseReasonError)
		c.mu.Unlock()
		return
	}

	count := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(count)
	s.log.Info("HTTP client[%d](%s) in (active: %d)", fd, addr, count)
}

// dispatch handles one readiness event for a client socket.
func (s *HTTPAdapter) dispatch(fd int, events reactor.Event) {
	c, ok := s.conns.Load(fd)
	if !ok {
		s.log.Debug("HTTP event %v for unknown fd %d", events, fd)
		return
	}
	if !c.armed.Swap(false) {
		s.overlappingTasks.Add(1)
		s.log.Error("HTTP event %v on client[%d] before re-arm", events, fd)
	}

	switch {
	case events.Has(reactor.EventRDHup | reactor.EventHup | reactor.EventErr):
		c.mu.Lock()
		s.closeConn(c, metrics.CloseReasonPeer)
		c.mu.Unlock()

	case events.Has(reactor.EventIn):
		s.extendIdle(fd)
		s.submit(c, s.onRead)

	case events.Has(reactor.EventOut):
		s.extendIdle(fd)
		s.submit(c, s.onWrite)

	default:
		s.log.Error("HTTP unexpected event %v on fd %d", events, fd)
	}
}

func (s *HTTPAdapter) extendIdle(fd int) {
	if s.config.IdleTimeout > 0 {
		s.timer.Adjust(fd, s.config.IdleTimeout)
	}
}

// submit queues step for c. The task re-resolves the connection by fd and
// id, so a connection closed and replaced in the meantime is skipped.
func (s *HTTPAdapter) submit(c *HTTPConnection, step func(*HTTPConnection)) {
	fd, id := c.fd, c.id
	err := s.pool.Submit(func() {
		c, ok := s.lookup(fd, id)
		if !ok {
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("HTTP task panic on client[%d](%s): %v", fd, c.addr, r)
				s.closeConn(c, metrics.CloseReasonError)
			}
		}()

		if c.closed {
			return
		}
		step(c)
	})
	if err != nil {
		s.log.Debug("HTTP dropping task for client[%d]: %v", fd, err)
	}
}

// lookup returns the live connection for fd if it is still the one with id.
func (s *HTTPAdapter) lookup(fd int, id uint64) (*HTTPConnection, bool) {
	c, ok := s.conns.Load(fd)
	if !ok || c.id != id {
		return nil, false
	}
	return c, true
}

// onRead runs on a worker with c.mu held.
func (s *HTTPAdapter) onRead(c *HTTPConnection) {
	_, err := c.Read()
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		reason := metrics.CloseReasonError
		if errors.Is(err, io.EOF) {
			reason = metrics.CloseReasonPeer
		} else {
			s.log.Debug("HTTP read from client[%d] failed: %v", c.fd, err)
		}
		s.closeConn(c, reason)
		return
	}
	s.onProcess(c)
}

// onProcess runs on a worker with c.mu held and re-arms the socket for
// whatever comes next.
func (s *HTTPAdapter) onProcess(c *HTTPConnection) {
	next := reactor.EventIn
	if c.Process(s.ctx) {
		method, code, elapsed := c.finishRequest()
		s.metrics.RecordRequest(method, code, elapsed)
		next = reactor.EventOut
	}
	s.rearm(c, next)
}

// onWrite runs on a worker with c.mu held.
func (s *HTTPAdapter) onWrite(c *HTTPConnection) {
	n, err := c.Write()
	if n > 0 {
		s.metrics.RecordBytesSent(int64(n))
	}

	if c.ToWriteBytes() == 0 {
		if c.IsKeepAlive() {
			s.onProcess(c)
			return
		}
		s.closeConn(c, metrics.CloseReasonDone)
		return
	}

	if err == nil || errors.Is(err, unix.EAGAIN) {
		s.rearm(c, reactor.EventOut)
		return
	}
	s.log.Debug("HTTP write to client[%d] failed: %v", c.fd, err)
	s.closeConn(c, metrics.CloseReasonError)
}

// rearm runs with c.mu held, so the socket cannot be closed and its fd
// reused in between.
func (s *HTTPAdapter) rearm(c *HTTPConnection, events reactor.Event) {
	c.armed.Store(true)
	if err := s.reactor.Modify(c.fd, s.connEvent|events); err != nil {
		s.log.Debug("HTTP re-arm of client[%d] failed: %v", c.fd, err)
		s.closeConn(c, metrics.CloseReasonError)
	}
}

// idleCallback returns the eviction callback for the connection (fd, id).
// It runs on the reactor goroutine with the heap unlocked.
func (s *HTTPAdapter) idleCallback(fd int, id uint64) timer.Callback {
	var cb timer.Callback
	cb = func() {
		c, ok := s.lookup(fd, id)
		if !ok {
			return
		}
		if !c.mu.TryLock() {
			// A task is running; check again after another idle period.
			s.timer.Add(fd, s.config.IdleTimeout, cb)
			return
		}
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		s.log.Debug("HTTP client[%d](%s) idle for %v", fd, c.addr, s.config.IdleTimeout)
		s.metrics.RecordTimerEviction()
		s.closeConn(c, metrics.CloseReasonIdle)
	}
	return cb
}

// closeConn removes c from the table, the timer heap and the reactor, then
// closes its socket. The caller holds c.mu.
func (s *HTTPAdapter) closeConn(c *HTTPConnection, reason string) {
	if c.closed {
		return
	}

	removed := false
	s.conns.Compute(c.fd, func(old *HTTPConnection, loaded bool) (*HTTPConnection, bool) {
		if loaded && old == c {
			removed = true
			return nil, true
		}
		return old, !loaded
	})
	if s.config.IdleTimeout > 0 {
		s.timer.Remove(c.fd)
	}
	if err := s.reactor.Delete(c.fd); err != nil {
		s.log.Debug("HTTP epoll delete client[%d]: %v", c.fd, err)
	}
	if err := c.Close(); err != nil {
		s.log.Debug("HTTP close client[%d]: %v", c.fd, err)
	}

	if !removed {
		return
	}
	count := s.connCount.Add(-1)
	s.metrics.RecordConnectionClosed(reason)
	s.metrics.SetActiveConnections(count)
	s.log.Info("HTTP client[%d](%s) quit: %s (active: %d)", c.fd, c.addr, reason, count)
}

// initiateShutdown signals the reactor loop to exit. Safe to call multiple times.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Debug("HTTP shutdown initiated")
		close(s.shutdown)
		s.cancel()
		s.reactorMu.Lock()
		defer s.reactorMu.Unlock()
		if s.reactor != nil {
			if err := s.reactor.Wake(); err != nil {
				s.log.Debug("HTTP reactor wake: %v", err)
			}
		}
	})
}

// teardown runs on the reactor goroutine after the loop exits.
func (s *HTTPAdapter) teardown() {
	s.initiateShutdown()

	if err := s.reactor.Delete(s.listenFd); err != nil {
		s.log.Debug("HTTP epoll delete listener: %v", err)
	}
	if err := unix.Close(s.listenFd); err != nil {
		s.log.Debug("HTTP close listener: %v", err)
	}

	s.pool.Stop()

	closed := 0
	s.conns.Range(func(_ int, c *HTTPConnection) bool {
		c.mu.Lock()
		s.closeConn(c, metrics.CloseReasonShutdown)
		c.mu.Unlock()
		closed++
		return true
	})
	s.timer.Clear()

	if err := s.reactor.Close(); err != nil {
		s.log.Debug("HTTP reactor close: %v", err)
	}
	s.log.Info("HTTP server stopped (%d connection(s) closed)", closed)
}

// Stop initiates graceful shutdown and waits for the reactor loop to finish,
// up to ShutdownTimeout or the context deadline.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.ready:
	default:
		// Serve never bound; nothing to wait for.
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	timeout := time.NewTimer(s.config.ShutdownTimeout)
	defer timeout.Stop()

	select {
	case <-s.done:
		return nil
	case <-timeout.C:
		return fmt.Errorf("HTTP shutdown timeout after %v", s.config.ShutdownTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logMetrics periodically logs connection statistics until shutdown.
func (s *HTTPAdapter) logMetrics() {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.log.Info("HTTP metrics: active_connections=%d queued_tasks=%d running_tasks=%d timers=%d",
				s.connCount.Load(), s.pool.Queued(), s.pool.Running(), s.timer.Len())
		}
	}
}

// Ready is closed once the listening socket is bound and registered.
func (s *HTTPAdapter) Ready() <-chan struct{} {
	return s.ready
}

// GetActiveConnections returns the current number of open connections.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port once Serve has started, otherwise the configured one.
func (s *HTTPAdapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "HTTP".
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
