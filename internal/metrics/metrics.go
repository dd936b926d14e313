package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripreport_uploads_total",
		Help: "Files uploaded to the file store, by folder and outcome.",
	}, []string{"folder", "outcome"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripreport_compensations_total",
		Help: "Compensating actions attempted after a failed submission.",
	}, []string{"action"})

	CompensationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripreport_compensation_failures_total",
		Help: "Compensating actions that failed and may have left orphaned files.",
	}, []string{"action"})

	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripreport_cleanup_failures_total",
		Help: "Unreferenced files that could not be deleted after a successful write.",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripreport_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by tier.",
	}, []string{"tier"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripreport_page_cache_lookups_total",
		Help: "Page cache lookups, by result.",
	}, []string{"result"})
)

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
