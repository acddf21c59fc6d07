package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paperdrop/paperdrop/pkg/metrics"
)

func init() {
	metrics.RegisterSFTPMetricsConstructor(NewSFTPMetrics)
}

// sftpMetrics is the Prometheus implementation of metrics.SFTPMetrics.
type sftpMetrics struct {
	connectionsTotal   *prometheus.CounterVec
	activeConnections  prometheus.Gauge
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	transferBytesTotal *prometheus.CounterVec
	openHandles        prometheus.Gauge
	authAttemptsTotal  *prometheus.CounterVec
}

// NewSFTPMetrics creates a Prometheus-backed SFTPMetrics instance.
// Returns nil if metrics are not enabled.
func NewSFTPMetrics() metrics.SFTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &sftpMetrics{
		connectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_sftp_connections_total",
				Help: "Total SFTP connections by lifecycle event",
			},
			[]string{"event"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "paperdrop_sftp_active_connections",
				Help: "Currently active SFTP connections",
			},
		),
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_sftp_requests_total",
				Help: "Total SFTP requests by verb and wire status code",
			},
			[]string{"verb", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "paperdrop_sftp_request_duration_milliseconds",
				Help: "Duration of SFTP request handling in milliseconds",
				Buckets: []float64{
					1,     // 1ms - handle table lookups
					10,    // 10ms
					50,    // 50ms - listings
					100,   // 100ms
					500,   // 500ms - ranged reads
					1000,  // 1s
					5000,  // 5s - CLOSE awaiting a PUT
					30000, // 30s
				},
			},
			[]string{"verb"},
		),
		transferBytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_sftp_transfer_bytes_total",
				Help: "Total bytes moved through the SFTP adapter",
			},
			[]string{"direction"},
		),
		openHandles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "paperdrop_sftp_open_handles",
				Help: "Currently open file and directory handles across sessions",
			},
		),
		authAttemptsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_sftp_auth_attempts_total",
				Help: "Total authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *sftpMetrics) RecordConnectionAccepted() {
	m.connectionsTotal.WithLabelValues("accepted").Inc()
}

func (m *sftpMetrics) RecordConnectionClosed() {
	m.connectionsTotal.WithLabelValues("closed").Inc()
}

func (m *sftpMetrics) RecordConnectionForceClosed() {
	m.connectionsTotal.WithLabelValues("force_closed").Inc()
}

func (m *sftpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *sftpMetrics) RecordRequest(verb string, status uint32, duration time.Duration) {
	m.requestsTotal.WithLabelValues(verb, strconv.FormatUint(uint64(status), 10)).Inc()
	m.requestDuration.WithLabelValues(verb).Observe(float64(duration.Milliseconds()))
}

func (m *sftpMetrics) RecordUploadBytes(bytes int64) {
	m.transferBytesTotal.WithLabelValues("upload").Add(float64(bytes))
}

func (m *sftpMetrics) RecordDownloadBytes(bytes int64) {
	m.transferBytesTotal.WithLabelValues("download").Add(float64(bytes))
}

func (m *sftpMetrics) AddOpenHandles(delta int) {
	m.openHandles.Add(float64(delta))
}

func (m *sftpMetrics) RecordAuthAttempt(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.authAttemptsTotal.WithLabelValues(outcome).Inc()
}
