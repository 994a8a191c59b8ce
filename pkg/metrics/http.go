package metrics

import "time"

// Connection close reasons reported through HTTPMetrics.
const (
	CloseReasonPeer     = "peer"
	CloseReasonIdle     = "idle"
	CloseReasonError    = "error"
	CloseReasonDone     = "done"
	CloseReasonShutdown = "shutdown"
)

// Connection rejection reasons reported through HTTPMetrics.
const (
	RejectReasonCapacity  = "capacity"
	RejectReasonRateLimit = "rate_limit"
)

// HTTPMetrics provides observability for the HTTP adapter.
//
// This interface is optional - if not provided to the HTTP adapter, a no-op
// implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	adapter := http.New(config, prometheus.NewHTTPMetrics(), log)
//
//	// Without metrics (no-op)
//	adapter := http.New(config, nil, log)
type HTTPMetrics interface {
	// RecordRequest records one answered request.
	//
	// Parameters:
	//   - method: Request method ("GET", "POST", or "" for a malformed request line)
	//   - code: Status code sent
	//   - duration: Time from the first parse attempt to the response being queued
	RecordRequest(method string, code int, duration time.Duration)

	// RecordBytesSent records response bytes written to a socket.
	RecordBytesSent(bytes int64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	//
	// Parameters:
	//   - reason: One of the CloseReason* constants
	RecordConnectionClosed(reason string)

	// RecordConnectionRejected counts connections refused at accept time.
	//
	// Parameters:
	//   - reason: One of the RejectReason* constants
	RecordConnectionRejected(reason string)

	// RecordTimerEviction counts connections closed by the idle timer.
	RecordTimerEviction()

	// SetQueuedTasks updates the number of tasks waiting for a worker.
	SetQueuedTasks(count int)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(string, int, time.Duration) {}
func (noopHTTPMetrics) RecordBytesSent(int64)                    {}
func (noopHTTPMetrics) SetActiveConnections(int32)               {}
func (noopHTTPMetrics) RecordConnectionAccepted()                {}
func (noopHTTPMetrics) RecordConnectionClosed(string)            {}
func (noopHTTPMetrics) RecordConnectionRejected(string)          {}
func (noopHTTPMetrics) RecordTimerEviction()                     {}
func (noopHTTPMetrics) SetQueuedTasks(int)                       {}
