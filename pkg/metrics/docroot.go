package metrics

import "time"

// DocrootMetrics observes document-root synchronization from object storage.
type DocrootMetrics interface {
	// RecordOperation records one object storage call.
	//
	// Parameters:
	//   - operation: "ListObjectsV2" or "GetObject"
	//   - duration: Time taken by the call
	//   - err: Error if the call failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBytesDownloaded records object bytes written into the document root.
	RecordBytesDownloaded(bytes int64)

	// RecordObjectSkipped counts keys that were not materialized.
	//
	// Parameters:
	//   - reason: "unsafe_key" or "directory"
	RecordObjectSkipped(reason string)
}

// NewNoopDocrootMetrics returns a DocrootMetrics that discards everything.
func NewNoopDocrootMetrics() DocrootMetrics {
	return noopDocrootMetrics{}
}

type noopDocrootMetrics struct{}

func (noopDocrootMetrics) RecordOperation(string, time.Duration, error) {}
func (noopDocrootMetrics) RecordBytesDownloaded(int64)                  {}
func (noopDocrootMetrics) RecordObjectSkipped(string)                   {}
