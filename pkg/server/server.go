package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/lyhellcat/TinyWebServer/pkg/adapter"
	"github.com/lyhellcat/TinyWebServer/pkg/store/credential"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve already called")

// errAdapterExited reports an adapter whose Serve returned nil while the
// server was still running.
var errAdapterExited = errors.New("adapter exited unexpectedly")

// DefaultStopTimeout bounds how long adapters get to stop.
const DefaultStopTimeout = 30 * time.Second

// WebServer manages the lifecycle of protocol adapters that share one
// credential store.
//
// Lifecycle:
//  1. Creation: New() with the credential store
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation, or any adapter failing, stops them all
//
// Thread safety:
// WebServer is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := server.New(store, config.Server.ShutdownTimeout, log)
//	if err := srv.AddAdapter(http.New(httpConfig, httpMetrics, log)); err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    return err
//	}
type WebServer struct {
	credentials credential.Store
	stopTimeout time.Duration
	log         *logger.Logger

	// mu protects adapters and served
	mu       sync.Mutex
	adapters []adapter.Adapter
	served   bool
}

// New creates a WebServer sharing credentials with every adapter.
//
// stopTimeout <= 0 selects DefaultStopTimeout. A nil log selects
// logger.Default().
//
// Panics if credentials is nil (indicates programmer error).
func New(credentials credential.Store, stopTimeout time.Duration, log *logger.Logger) *WebServer {
	if credentials == nil {
		panic("credential store cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	if log == nil {
		log = logger.Default()
	}

	return &WebServer{
		credentials: credentials,
		stopTimeout: stopTimeout,
		log:         log,
	}
}

// AddAdapter registers a protocol adapter and injects the credential store.
//
// Returns an error if another adapter already uses the same protocol or
// port, or if Serve has been called.
//
// Panics if a is nil.
func (s *WebServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s adapter: server already serving", a.Protocol())
	}

	protocol, port := a.Protocol(), a.Port()
	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetCredentials(s.credentials)
	s.adapters = append(s.adapters, a)

	s.log.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
// On cancellation or the first adapter failure every adapter receives Stop()
// in reverse registration order, bounded by the stop timeout, and Serve waits
// for all adapter goroutines to return.
//
// Returns:
//   - ctx.Err() if shutdown was triggered by context cancellation
//   - the first adapter error otherwise
//   - ErrAlreadyServed on a second call
func (s *WebServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	s.log.Info("Starting web server with %d adapter(s)", len(adapters))

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			s.log.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case ctx.Err() != nil:
				s.log.Debug("%s adapter stopped (err: %v)", protocol, err)
			case err != nil:
				errChan <- adapterError{protocol: protocol, err: err}
			default:
				errChan <- adapterError{protocol: protocol, err: errAdapterExited}
			}
		}(a)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case failed := <-errChan:
		s.log.Error("%s adapter failed: %v - shutting down all adapters", failed.protocol, failed.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", failed.protocol, failed.err)
	}

	s.stopAll(adapters)
	wg.Wait()

	s.log.Info("Web server stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAll calls Stop on every adapter in reverse registration order.
func (s *WebServer) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Error stopping %s adapter: %v", a.Protocol(), err)
			continue
		}
		s.log.Debug("%s adapter stopped", a.Protocol())
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *WebServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
