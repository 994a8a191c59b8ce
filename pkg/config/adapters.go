//go:build linux

package config

import (
	"fmt"

	"github.com/lyhellcat/TinyWebServer/internal/logger"
	"github.com/lyhellcat/TinyWebServer/pkg/adapter"
	"github.com/lyhellcat/TinyWebServer/pkg/adapter/http"
	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete TinyWebServer configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//   - log: Logger handed to the adapters (nil = default logger)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics, log *logger.Logger) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpCfg := cfg.Adapters.HTTP
		httpCfg.DocumentRoot = cfg.DocumentRoot.Path
		adapters = append(adapters, http.New(httpCfg, httpMetrics, log))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
