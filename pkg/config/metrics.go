package config

import (
	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
	promMetrics "github.com/lyhellcat/TinyWebServer/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the HTTP adapter (never nil, noop if disabled)
	HTTPMetrics metrics.HTTPMetrics

	// DocrootMetrics is the collector for document root sync (never nil, noop if disabled)
	DocrootMetrics metrics.DocrootMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled it returns a nil server and no-op collectors.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics:    metrics.NewNoopHTTPMetrics(),
			DocrootMetrics: metrics.NewNoopDocrootMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:         metrics.NewServer(metrics.ServerConfig{Port: cfg.Server.Metrics.Port}),
		HTTPMetrics:    promMetrics.NewHTTPMetrics(),
		DocrootMetrics: promMetrics.NewDocrootMetrics(),
	}
}
