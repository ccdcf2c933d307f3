package ftpclient

import "time"

// MetricsCollector is an optional interface for collecting client metrics.
// Implementations can send metrics to monitoring systems like Prometheus,
// StatsD, DataDog, etc. A Prometheus implementation lives in the
// metrics package.
//
// Methods are called synchronously from the operation that produced them and
// should not block. The client checks for a nil collector before calling.
type MetricsCollector interface {
	// RecordRequest records one request sent through the transport.
	// op is the client operation (e.g. "mkdir", "download", "list").
	// code is the numeric transport outcome, 0 on success.
	RecordRequest(op string, code int, duration time.Duration)

	// RecordTransfer records the payload of a successful request.
	// op is the client operation, bytes the number of bytes moved.
	RecordTransfer(op string, bytes int64, duration time.Duration)

	// RecordSession records session lifecycle events: "init", "cleanup",
	// and "implicit_cleanup" when Close had to end the session.
	RecordSession(event string)
}
