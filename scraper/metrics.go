package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the tracker.
type Metrics struct {
	Registry             *prometheus.Registry
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	RetriesTotal         prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
	OffersCollected      prometheus.Counter
	DuplicateSellers     prometheus.Counter
	SkippedPages         prometheus.Counter
	RunsTotal            *prometheus.CounterVec
	LastSuccessTimestamp prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_requests_total",
			Help: "Total HTTP requests issued, by action and status class.",
		},
		[]string{"action", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_request_duration_seconds",
			Help:    "HTTP request latency by action.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_errors_total",
			Help: "Total number of failures by action and type.",
		},
		[]string{"action", "error_type"},
	)
	offers := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_offers_collected_total",
			Help: "Offers collected across complete paginations.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_duplicate_sellers_total",
			Help: "Offers dropped because the seller already appeared in the run.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_skipped_offer_pages_total",
			Help: "Offer pages skipped because the body was malformed.",
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_runs_total",
			Help: "Pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)
	lastSuccess := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_last_success_timestamp_seconds",
			Help: "Unix time of the last run that reached Done.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, offers, duplicates, skipped, runs, lastSuccess)

	return &Metrics{
		Registry:             registry,
		RequestsTotal:        requests,
		RequestDuration:      requestDuration,
		RetriesTotal:         retries,
		ErrorsTotal:          errorsTotal,
		OffersCollected:      offers,
		DuplicateSellers:     duplicates,
		SkippedPages:         skipped,
		RunsTotal:            runs,
		LastSuccessTimestamp: lastSuccess,
	}
}

// IncRequest increments the requests counter.
func (m *Metrics) IncRequest(action string, statusCode int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(action, classifyStatus(statusCode)).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(action string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(action).Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for an action and classified error.
func (m *Metrics) IncError(action string, err error) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(action, errorTypeLabel(err)).Inc()
}

// AddOffers adds to the collected offers counter.
func (m *Metrics) AddOffers(n int) {
	if m == nil {
		return
	}
	m.OffersCollected.Add(float64(n))
}

// IncDuplicateSeller counts a dropped duplicate seller.
func (m *Metrics) IncDuplicateSeller() {
	if m == nil {
		return
	}
	m.DuplicateSellers.Inc()
}

// IncSkippedPage counts a skipped malformed offer page.
func (m *Metrics) IncSkippedPage() {
	if m == nil {
		return
	}
	m.SkippedPages.Inc()
}

// IncRun records a finished run.
func (m *Metrics) IncRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "done" {
		m.LastSuccessTimestamp.SetToCurrentTime()
	}
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "error"
}
