// Package metrics exposes Prometheus collectors for upstream calls, token
// grants and computed scores.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PassportMetrics struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	tokenGrants      *prometheus.CounterVec
	scoresComputed   *prometheus.CounterVec
	scoreTotals      *prometheus.HistogramVec
}

var (
	once     sync.Once
	registry *PassportMetrics
)

// Passport returns the process-wide collectors, registering them on first use.
func Passport() *PassportMetrics {
	once.Do(func() {
		registry = &PassportMetrics{
			upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passport_upstream_requests_total",
				Help: "Upstream API calls by provider and HTTP status (0 for transport errors).",
			}, []string{"provider", "status"}),
			upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "passport_upstream_request_duration_seconds",
				Help:    "Latency of upstream API calls.",
				Buckets: prometheus.DefBuckets,
			}, []string{"provider"}),
			tokenGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passport_token_grants_total",
				Help: "OAuth token requests by provider, grant type and outcome.",
			}, []string{"provider", "grant", "outcome"}),
			scoresComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passport_scores_computed_total",
				Help: "Scores computed per platform and rating.",
			}, []string{"platform", "rating"}),
			scoreTotals: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "passport_score_total",
				Help:    "Distribution of total scores per platform.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			}, []string{"platform"}),
		}
		prometheus.MustRegister(
			registry.upstreamRequests,
			registry.upstreamLatency,
			registry.tokenGrants,
			registry.scoresComputed,
			registry.scoreTotals,
		)
	})
	return registry
}

func (m *PassportMetrics) ObserveUpstream(provider string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(provider, strconv.Itoa(status)).Inc()
	m.upstreamLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *PassportMetrics) ObserveTokenGrant(provider, grant string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.tokenGrants.WithLabelValues(provider, grant, outcome).Inc()
}

func (m *PassportMetrics) ObserveScore(platform, rating string, total float64) {
	if m == nil {
		return
	}
	m.scoresComputed.WithLabelValues(platform, rating).Inc()
	m.scoreTotals.WithLabelValues(platform).Observe(total)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
