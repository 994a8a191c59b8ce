package prometheus

import (
	"time"

	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// docrootMetrics is the Prometheus implementation of metrics.DocrootMetrics.
type docrootMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesDownloaded   prometheus.Counter
	objectsSkipped    *prometheus.CounterVec
}

// NewDocrootMetrics creates a Prometheus-backed DocrootMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled.
func NewDocrootMetrics() metrics.DocrootMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDocrootMetrics()
	}
	return newDocrootMetrics(metrics.GetRegistry())
}

func newDocrootMetrics(reg prometheus.Registerer) *docrootMetrics {
	return &docrootMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinywebserver_docroot_s3_operations_total",
				Help: "Total number of S3 operations issued while syncing the document root",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tinywebserver_docroot_s3_operation_duration_seconds",
				Help: "Duration of S3 operations in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.5,  // 500ms
					1.0,  // 1s
					5.0,  // 5s
					30.0, // 30s
				},
			},
			[]string{"operation"},
		),
		bytesDownloaded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinywebserver_docroot_bytes_downloaded_total",
				Help: "Total object bytes written into the document root",
			},
		),
		objectsSkipped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinywebserver_docroot_objects_skipped_total",
				Help: "Objects not materialized in the document root by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *docrootMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *docrootMetrics) RecordBytesDownloaded(bytes int64) {
	m.bytesDownloaded.Add(float64(bytes))
}

func (m *docrootMetrics) RecordObjectSkipped(reason string) {
	m.objectsSkipped.WithLabelValues(reason).Inc()
}
