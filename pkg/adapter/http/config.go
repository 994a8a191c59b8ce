package http

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Trigger modes select edge- or level-triggered delivery for the listening
// socket and for client sockets.
const (
	TriggerLevel      = 0 // both level-triggered
	TriggerConnEdge   = 1 // client sockets edge-triggered
	TriggerListenEdge = 2 // listening socket edge-triggered
	TriggerBothEdge   = 3 // both edge-triggered
)

const (
	DefaultPort                = 8077
	DefaultMaxConnections      = 65536
	DefaultMaxEvents           = 1024
	DefaultWriteChunkThreshold = 10240
	DefaultShutdownTimeout     = 30 * time.Second
)

// HTTPConfig holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Port: 8077
//   - TriggerMode: 0 is a valid mode (level/level); pkg/config defaults it to 3
//   - Workers: runtime.NumCPU()+1
//   - MaxConnections: 65536
//   - MaxEvents: 1024
//   - WriteChunkThreshold: 10240 bytes
//   - ShutdownTimeout: 30s
//
// IdleTimeout, AcceptRate and MetricsLogInterval are left alone: 0 disables them.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on. Must be within 1024-65535.
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1024,max=65535"`

	// TriggerMode selects edge/level triggering (0-3, see Trigger* constants).
	TriggerMode int `mapstructure:"trigger_mode" yaml:"trigger_mode" validate:"min=0,max=3"`

	// IdleTimeout closes connections with no readiness events for this long.
	// 0 disables idle eviction.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// Linger enables SO_LINGER with a one second timeout on the listening socket.
	Linger bool `mapstructure:"linger" yaml:"linger"`

	// Workers is the size of the task pool. 0 selects NumCPU+1.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0"`

	// MaxConnections caps the connection table. Further accepts are answered
	// with "Server busy!" and closed.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxEvents is the epoll_wait batch size.
	MaxEvents int `mapstructure:"max_events" yaml:"max_events" validate:"min=0"`

	// WriteChunkThreshold is the number of unsent bytes above which a
	// level-triggered write keeps looping instead of waiting for EPOLLOUT.
	WriteChunkThreshold int `mapstructure:"write_chunk_threshold" yaml:"write_chunk_threshold" validate:"min=0"`

	// AcceptRate limits new connections per second. 0 means unlimited.
	AcceptRate uint `mapstructure:"accept_rate" yaml:"accept_rate"`

	// AcceptBurst is the token bucket size. 0 defaults to AcceptRate.
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`

	// ShutdownTimeout bounds how long Stop waits for the reactor loop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval for logging connection statistics.
	// 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`

	// DocumentRoot is the directory files are served from. Set from the
	// top-level document_root section.
	DocumentRoot string `mapstructure:"-" yaml:"-"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.WriteChunkThreshold == 0 {
		c.WriteChunkThreshold = DefaultWriteChunkThreshold
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.DocumentRoot != "" {
		c.DocumentRoot = filepath.Clean(c.DocumentRoot)
	}
}

// validate checks the configuration after defaults.
func (c *HTTPConfig) validate() error {
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1024-65535", c.Port)
	}
	if c.TriggerMode < TriggerLevel || c.TriggerMode > TriggerBothEdge {
		return fmt.Errorf("invalid trigger mode %d: must be 0-3", c.TriggerMode)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid Workers %d: must be >= 0", c.Workers)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be >= 0", c.ShutdownTimeout)
	}
	if c.DocumentRoot == "" {
		return errors.New("document root is required")
	}
	return nil
}
