package config

import (
	"strings"
	"time"

	"github.com/lyhellcat/TinyWebServer/pkg/adapter/http"
	"github.com/spf13/viper"
)

// Defaults whose zero value is itself meaningful. They are registered with
// viper so an explicit 0 in the file or environment survives.
const (
	defaultLogQueueSize       = 1024
	defaultTriggerMode        = http.TriggerBothEdge
	defaultIdleTimeout        = 60 * time.Second
	defaultMetricsLogInterval = 5 * time.Minute
	defaultMetricsPort        = 9090
	defaultDocumentRoot       = "./resources"
)

// setViperDefaults registers defaults for keys where zero is a valid setting.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("logging.queue_size", defaultLogQueueSize)
	v.SetDefault("adapters.http.enabled", true)
	v.SetDefault("adapters.http.trigger_mode", defaultTriggerMode)
	v.SetDefault("adapters.http.idle_timeout", defaultIdleTimeout)
	v.SetDefault("adapters.http.metrics_log_interval", defaultMetricsLogInterval)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDocumentRootDefaults(&cfg.DocumentRoot)
	applyCredentialsDefaults(&cfg.Credentials)
	applyAdaptersDefaults(&cfg.Adapters, cfg.DocumentRoot.Path)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = defaultMetricsPort
	}
}

// applyDocumentRootDefaults sets document root defaults.
func applyDocumentRootDefaults(cfg *DocumentRootConfig) {
	if cfg.Path == "" {
		cfg.Path = defaultDocumentRoot
	}
	if cfg.Source == "" {
		cfg.Source = "local"
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// applyCredentialsDefaults sets credential store defaults.
func applyCredentialsDefaults(cfg *CredentialsConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Applied for all store types so generated config files show them
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/tinywebserver-credentials"
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig, docRoot string) {
	// Enable the HTTP adapter when it looks unconfigured (no port set), so
	// a config without an adapters section still starts a server.
	// Users can explicitly set enabled: false to disable it.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP, docRoot)
}

// applyHTTPDefaults sets HTTP adapter defaults.
//
// TriggerMode, IdleTimeout and MetricsLogInterval are not touched here:
// their zero values are valid and their defaults come from viper.
func applyHTTPDefaults(cfg *http.HTTPConfig, docRoot string) {
	if cfg.Port == 0 {
		cfg.Port = http.DefaultPort
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = http.DefaultMaxConnections
	}
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = http.DefaultMaxEvents
	}
	if cfg.WriteChunkThreshold == 0 {
		cfg.WriteChunkThreshold = http.DefaultWriteChunkThreshold
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = http.DefaultShutdownTimeout
	}
	if cfg.AcceptRate > 0 && cfg.AcceptBurst == 0 {
		cfg.AcceptBurst = cfg.AcceptRate
	}
	cfg.DocumentRoot = docRoot
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			QueueSize: defaultLogQueueSize,
		},
		Credentials: CredentialsConfig{
			Memory: map[string]any{
				"users": map[string]any{},
			},
		},
		Adapters: AdaptersConfig{
			HTTP: http.HTTPConfig{
				Enabled:            true,
				TriggerMode:        defaultTriggerMode,
				IdleTimeout:        defaultIdleTimeout,
				MetricsLogInterval: defaultMetricsLogInterval,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
