// Package metrics defines the process-wide Prometheus collectors shared
// across the recorder (C4), replication server/client (C6/C7), and SFTP
// exporter (C9), plus the /metrics handler every subcommand exposes
// alongside /health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SegmentsWritten counts segments persisted by the recorder, labeled
	// by show and audio_format.
	SegmentsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segcast_segments_written_total",
		Help: "Segments persisted by the recorder pipeline.",
	}, []string{"show", "audio_format"})

	// ConnectAttempts counts every upstream connection attempt, labeled
	// by show and outcome ("ok", "error").
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segcast_connect_attempts_total",
		Help: "Recorder upstream connection attempts.",
	}, []string{"show", "outcome"})

	// SyncLagSegments is the gap between a receiver show's last_synced_id
	// and the source's max segment id as of the most recent sync pass, a
	// proxy for replication lag.
	SyncLagSegments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "segcast_sync_lag_segments",
		Help: "Segments behind the source as of the last sync pass, per show.",
	}, []string{"show"})

	// SyncRequests counts HTTP requests the replication client issues
	// against a replication server, labeled by show and outcome.
	SyncRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segcast_sync_requests_total",
		Help: "Replication client HTTP requests against a replication server.",
	}, []string{"show", "outcome"})

	// ExportUploads counts SFTP section uploads, labeled by show and
	// outcome ("ok", "size_mismatch", "error").
	ExportUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segcast_export_uploads_total",
		Help: "SFTP section export attempts.",
	}, []string{"show", "outcome"})
)

// Handler returns the standard Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
