package prometheus

import (
	"strconv"
	"time"

	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	bytesSent           prometheus.Counter
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	timerEvictions      prometheus.Counter
	queuedTasks         prometheus.Gauge
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return newHTTPMetrics(metrics.GetRegistry())
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinywebserver_http_requests_total",
				Help: "Total number of HTTP requests answered by method and status code",
			},
			[]string{"method", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tinywebserver_http_request_duration_milliseconds",
				Help: "Time spent parsing a request and building its response in milliseconds",
				Buckets: []float64{
					0.1,  // 100us
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"method"},
		),
		bytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinywebserver_http_bytes_sent_total",
				Help: "Total response bytes written to client sockets",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tinywebserver_http_active_connections",
				Help: "Current number of open HTTP connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinywebserver_http_connections_accepted_total",
				Help: "Total number of HTTP connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinywebserver_http_connections_closed_total",
				Help: "Total number of HTTP connections closed by reason",
			},
			[]string{"reason"},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tinywebserver_http_connections_rejected_total",
				Help: "Total number of connections refused at accept time by reason",
			},
			[]string{"reason"},
		),
		timerEvictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tinywebserver_http_idle_evictions_total",
				Help: "Total number of connections closed by the idle timer",
			},
		),
		queuedTasks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tinywebserver_http_queued_tasks",
				Help: "Connection tasks waiting for a worker",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, code int, duration time.Duration) {
	if method == "" {
		method = "INVALID"
	}
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *httpMetrics) RecordBytesSent(bytes int64) {
	m.bytesSent.Add(float64(bytes))
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed(reason string) {
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) RecordTimerEviction() {
	m.timerEvictions.Inc()
}

func (m *httpMetrics) SetQueuedTasks(count int) {
	m.queuedTasks.Set(float64(count))
}
