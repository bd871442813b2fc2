package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vestd_build_info",
			Help: "Build information of vestd",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vestd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vestd_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vestd_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Ledger metrics
	SchedulesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vestd_schedules_created_total",
			Help: "Total number of vesting schedules created",
		},
	)

	TokensCommittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vestd_tokens_committed_total",
			Help: "Total token units committed into vesting custody",
		},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vestd_claims_total",
			Help: "Total number of claim attempts",
		},
		[]string{"status"}, // "paid", "empty", "error"
	)

	TokensClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vestd_tokens_claimed_total",
			Help: "Total token units paid out to beneficiaries",
		},
	)

	RecoveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vestd_recoveries_total",
			Help: "Total number of recovery sweeps",
		},
	)

	TokensRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vestd_tokens_recovered_total",
			Help: "Total token units swept to the recovery account",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordScheduleCreated records a committed schedule and its funding amount.
func RecordScheduleCreated(total uint64) {
	SchedulesCreatedTotal.Inc()
	TokensCommittedTotal.Add(float64(total))
}

// RecordClaim records the outcome of one claim attempt. Status is "paid",
// "empty" (nothing due) or "error".
func RecordClaim(status string, paid uint64) {
	ClaimsTotal.WithLabelValues(status).Inc()
	if paid > 0 {
		TokensClaimedTotal.Add(float64(paid))
	}
}

// RecordRecovery records a completed recovery sweep.
func RecordRecovery(amount uint64) {
	RecoveriesTotal.Inc()
	TokensRecoveredTotal.Add(float64(amount))
}
