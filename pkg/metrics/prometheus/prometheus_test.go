package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/lyhellcat/TinyWebServer/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	require.NotNil(t, out.Gauge)
	return out.Gauge.GetValue()
}

func TestHTTPMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg)

	m.RecordRequest("GET", 200, 2*time.Millisecond)
	m.RecordRequest("GET", 200, time.Millisecond)
	m.RecordRequest("", 400, time.Millisecond)
	m.RecordBytesSent(1500)
	m.SetActiveConnections(3)
	m.RecordConnectionAccepted()
	m.RecordConnectionClosed(metrics.CloseReasonIdle)
	m.RecordConnectionRejected(metrics.RejectReasonCapacity)
	m.RecordTimerEviction()
	m.SetQueuedTasks(7)

	assert.Equal(t, 2.0, value(t, m.requestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, value(t, m.requestsTotal.WithLabelValues("INVALID", "400")))
	assert.Equal(t, 1500.0, value(t, m.bytesSent))
	assert.Equal(t, 3.0, value(t, m.activeConnections))
	assert.Equal(t, 1.0, value(t, m.connectionsAccepted))
	assert.Equal(t, 1.0, value(t, m.connectionsClosed.WithLabelValues(metrics.CloseReasonIdle)))
	assert.Equal(t, 1.0, value(t, m.connectionsRejected.WithLabelValues(metrics.RejectReasonCapacity)))
	assert.Equal(t, 1.0, value(t, m.timerEvictions))
	assert.Equal(t, 7.0, value(t, m.queuedTasks))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tinywebserver_http_requests_total")
	assert.Contains(t, names, "tinywebserver_http_request_duration_milliseconds")
}

func TestDocrootMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newDocrootMetrics(reg)

	m.RecordOperation("GetObject", 10*time.Millisecond, nil)
	m.RecordOperation("GetObject", 10*time.Millisecond, errors.New("boom"))
	m.RecordBytesDownloaded(42)
	m.RecordObjectSkipped("unsafe_key")

	assert.Equal(t, 1.0, value(t, m.operationsTotal.WithLabelValues("GetObject", "success")))
	assert.Equal(t, 1.0, value(t, m.operationsTotal.WithLabelValues("GetObject", "error")))
	assert.Equal(t, 42.0, value(t, m.bytesDownloaded))
	assert.Equal(t, 1.0, value(t, m.objectsSkipped.WithLabelValues("unsafe_key")))
}

func TestConstructorsWithoutRegistry(t *testing.T) {
	if metrics.IsEnabled() {
		t.Skip("registry already initialized")
	}
	assert.NotNil(t, NewHTTPMetrics())
	assert.NotNil(t, NewDocrootMetrics())
}
