package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, by method, path, and status code.",
		},
		[]string{"method", "path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	tokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_tokens_issued_total",
			Help: "Total number of recovery tokens issued by this account provider.",
		},
	)

	countersignedOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_countersigned_outcome_total",
			Help: "Total countersigned token submissions, by outcome.",
		},
		// accepted, malformed, issuer_mismatch, audience_mismatch, binding_mismatch,
		// signature_invalid, expired, invalid_token, replay, record_not_found,
		// config_unavailable, replay_guard_error
		[]string{"outcome"},
	)

	configFetchOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_config_fetch_outcome_total",
			Help: "Total recovery provider configuration fetch attempts, by outcome.",
		},
		[]string{"outcome"}, // success, error
	)

	replayGuardInsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_replay_guard_inserts_total",
			Help: "Total replay guard insert attempts, by whether the digest was new.",
		},
		[]string{"result"}, // new, duplicate
	)
)

// observeRequest records one request against the metrics. pattern is the
// registered route pattern, not the request's concrete path, so the label
// set stays bounded regardless of path parameters like a token id.
func observeRequest(method, pattern string, status int, duration time.Duration) {
	if pattern == "" {
		pattern = "/"
	}
	httpRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, pattern).Observe(duration.Seconds())
}

func observeCountersignedOutcome(outcome string) {
	countersignedOutcomeTotal.WithLabelValues(outcome).Inc()
}

func observeConfigFetchOutcome(outcome string) {
	configFetchOutcomeTotal.WithLabelValues(outcome).Inc()
}

func observeReplayInsert(inserted bool) {
	if inserted {
		replayGuardInsertsTotal.WithLabelValues("new").Inc()
		return
	}
	replayGuardInsertsTotal.WithLabelValues("duplicate").Inc()
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
