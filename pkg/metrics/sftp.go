package metrics

import (
	"time"
)

// SFTPMetrics collects protocol-level measurements from the SFTP adapter.
//
// A nil SFTPMetrics is valid and means no collection; the adapter nil-checks
// before recording.
type SFTPMetrics interface {
	// RecordConnectionAccepted counts an accepted TCP connection.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a closed connection.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts a connection closed during forced
	// shutdown.
	RecordConnectionForceClosed()

	// SetActiveConnections sets the active connection gauge.
	SetActiveConnections(count int32)

	// RecordRequest counts one SFTP request with its verb, the wire status
	// it answered with, and how long handling took.
	RecordRequest(verb string, status uint32, duration time.Duration)

	// RecordUploadBytes counts bytes committed to the store by uploads.
	RecordUploadBytes(bytes int64)

	// RecordDownloadBytes counts bytes served to clients by reads.
	RecordDownloadBytes(bytes int64)

	// AddOpenHandles moves the open handle gauge by delta as handles open
	// and close.
	AddOpenHandles(delta int)

	// RecordAuthAttempt counts an authentication attempt and its outcome.
	RecordAuthAttempt(success bool)
}

// NewSFTPMetrics creates a Prometheus-backed SFTPMetrics, or nil when
// metrics are disabled.
func NewSFTPMetrics() SFTPMetrics {
	if !IsEnabled() || newPrometheusSFTPMetrics == nil {
		return nil
	}
	return newPrometheusSFTPMetrics()
}

var newPrometheusSFTPMetrics func() SFTPMetrics

// RegisterSFTPMetricsConstructor is called by pkg/metrics/prometheus during
// package initialization.
func RegisterSFTPMetricsConstructor(constructor func() SFTPMetrics) {
	newPrometheusSFTPMetrics = constructor
}
