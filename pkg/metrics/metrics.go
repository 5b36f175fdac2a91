package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the service's Prometheus collectors so they can be passed
// around and registered against a private registry in tests.
type Metrics struct {
	RedirectsTotal      *prometheus.CounterVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	LinksCreatedTotal   prometheus.Counter
	EventsDroppedTotal  prometheus.Counter
	HTTPRequestDuration *prometheus.HistogramVec
}

// Redirect outcomes used as the RedirectsTotal label.
const (
	OutcomeHit              = "hit"
	OutcomeMiss             = "miss"
	OutcomeNotFound         = "not_found"
	OutcomeExpired          = "expired"
	OutcomePasswordRequired = "password_required"
	OutcomeInvalidPassword  = "invalid_password"
	OutcomeError            = "error"
)

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RedirectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shortly_redirects_total",
			Help: "Redirect resolutions by outcome.",
		}, []string{"outcome"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortly_cache_hits_total",
			Help: "Lookup cache hits on the redirect path.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortly_cache_misses_total",
			Help: "Lookup cache misses on the redirect path.",
		}),
		LinksCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortly_links_created_total",
			Help: "Links created.",
		}),
		EventsDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shortly_click_events_dropped_total",
			Help: "Click events dropped because the sink queue was full.",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shortly_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}
