// Package pipelinemetrics exposes prometheus instruments for bucket-pipeline
// observability: how often each Read call lands on OK/AGAIN/EOF/WAIT_CONN/
// error, how many chunked-decode passes happened, and TLS handshake/
// renegotiation counts. Metrics are not named a non-goal in spec.md §1, so
// this is carried the way etalazz-vsa and kenchrcum-s3-encryption-gateway
// instrument their own pipelines: package-level prometheus.MustRegister at
// init, counters by label rather than one metric per status.
package pipelinemetrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bucketpipe/bucketpipe/pkg/bucket"
)

var (
	readStatusTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketpipe_read_status_total",
		Help: "Count of bucket Read/Readline calls by terminal status.",
	}, []string{"bucket", "status"})

	chunkedDecodeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketpipe_chunked_decode_total",
		Help: "Count of chunked-body decode passes by outcome.",
	}, []string{"outcome"})

	tlsHandshakeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucketpipe_tls_handshake_total",
		Help: "Count of completed TLS handshakes by role and outcome.",
	}, []string{"role", "outcome"})

	tlsRenegotiationTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bucketpipe_tls_renegotiation_rejected_total",
		Help: "Count of mid-connection renegotiation attempts rejected under CONN_PIPELINING.",
	})

	pipelineLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bucketpipe_phase_seconds",
		Help:    "Wall time of named pipeline phases (tcp_connect, tls_handshake, ttfb).",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
)

func init() {
	prometheus.MustRegister(readStatusTotal, chunkedDecodeTotal, tlsHandshakeTotal, tlsRenegotiationTotal, pipelineLatency)
}

// ObserveStatus records one terminal Read/Readline outcome for a named
// bucket (e.g. "decrypt", "response", "chunked").
func ObserveStatus(bucketName string, status bucket.Status, err error) {
	label := status.String()
	if err != nil {
		label = "error"
	}
	readStatusTotal.WithLabelValues(bucketName, label).Inc()
}

// ObserveChunkedDecode records one chunked-body decode pass outcome:
// "ok", "truncated", or "malformed".
func ObserveChunkedDecode(outcome string) {
	chunkedDecodeTotal.WithLabelValues(outcome).Inc()
}

// ObserveHandshake records a completed TLS handshake; role is "client" or
// "server", outcome is "ok" or "failed".
func ObserveHandshake(role, outcome string) {
	tlsHandshakeTotal.WithLabelValues(role, outcome).Inc()
}

// ObserveRenegotiationRejected records one renegotiation attempt the TLS
// bucket pair's pipelining policy turned into ErrSSLNegotiateInProgress.
func ObserveRenegotiationRejected() {
	tlsRenegotiationTotal.Inc()
}

// ObservePhase records how long a named pipeline phase took, in seconds.
func ObservePhase(phase string, seconds float64) {
	pipelineLatency.WithLabelValues(phase).Observe(seconds)
}

// Handler returns a gorilla/mux router serving Prometheus text exposition
// at /metrics, the same route shape kenchrcum-s3-encryption-gateway's and
// ocx-backend's debug servers use.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}
