// Package metrics provides Prometheus instrumentation for urlverifier.
// Every helper is a no-op until Init is called with enabled set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled bool

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	confirmationAttempts *prometheus.HistogramVec
	submissionsTotal     *prometheus.CounterVec
	fetchTotal           *prometheus.CounterVec
	cacheTotal           *prometheus.CounterVec
	records              *prometheus.GaugeVec
)

// Init registers the collectors on the default registry. Each series
// carries a constant service label set to svcName.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	if !enabled {
		return
	}

	f := promauto.With(prometheus.WrapRegistererWith(
		prometheus.Labels{"service": svcName},
		prometheus.DefaultRegisterer,
	))

	httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// A full wait is 24 checks by default.
	confirmationAttempts = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urlverifier_confirmation_attempts",
		Help:    "Status checks spent per confirmation wait, by final state",
		Buckets: []float64{1, 2, 4, 8, 12, 16, 20, 24, 48},
	}, []string{"state"})

	submissionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "urlverifier_submissions_total",
		Help: "URL verification submissions by result",
	}, []string{"result"})

	fetchTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "urlverifier_fetch_total",
		Help: "Contract reads of the verification list by result",
	}, []string{"result"})

	cacheTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "urlverifier_cache_total",
		Help: "Verification payload cache lookups",
	}, []string{"result"})

	records = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "urlverifier_records",
		Help: "Records in the latest snapshot by category",
	}, []string{"category"})
}

// Handler serves the default registry, or 404 when metrics are off.
func Handler() http.Handler {
	if !enabled {
		return http.NotFoundHandler()
	}
	return promhttp.Handler()
}

// Enabled reports whether Init turned metrics on.
func Enabled() bool {
	return enabled
}
