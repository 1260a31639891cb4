package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "paper_tracker"

// Metrics holds the Prometheus collectors of the service, grouped by
// subsystem: polls, sources, storage, events and the HTTP API.
type Metrics struct {
	// PollsTotal counts completed source polls by source and outcome
	// (success, partial, failed).
	PollsTotal *prometheus.CounterVec

	// PollDuration observes poll duration in seconds by source.
	PollDuration *prometheus.HistogramVec

	// PapersFetched counts papers returned by adapters by source.
	PapersFetched *prometheus.CounterVec

	// PapersNew counts papers absent from the stored snapshot by source.
	PapersNew *prometheus.CounterVec

	// PapersSaved counts rows inserted or updated by source and operation.
	PapersSaved *prometheus.CounterVec

	// PersistenceFailures counts batch upserts that failed by source.
	PersistenceFailures *prometheus.CounterVec

	// SourceRequestsTotal counts upstream requests by source and outcome.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestDuration observes upstream request latency by source.
	SourceRequestDuration *prometheus.HistogramVec

	// EventsPublished counts published events by type and outcome.
	EventsPublished *prometheus.CounterVec

	// ArchiveWrites counts batch archive uploads by outcome.
	ArchiveWrites *prometheus.CounterVec

	// HTTPRequestsTotal counts API requests by method, route and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API latency by method and route.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Source polls by outcome",
		}, []string{"source", "outcome"}),
		PollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a source poll in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"source"}),
		PapersFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_fetched_total",
			Help:      "Papers returned by source adapters",
		}, []string{"source"}),
		PapersNew: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_new_total",
			Help:      "Fetched papers not yet in the store",
		}, []string{"source"}),
		PapersSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_saved_total",
			Help:      "Rows written by batch upserts",
		}, []string{"source", "operation"}),
		PersistenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Batch upserts that failed",
		}, []string{"source"}),
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Requests to upstream sources by outcome",
		}, []string{"source", "outcome"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Latency of requests to upstream sources in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the event bus by outcome",
		}, []string{"event_type", "outcome"}),
		ArchiveWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Poll batch archive uploads by outcome",
		}, []string{"outcome"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveSourceRequest records one upstream request.
func (m *Metrics) ObserveSourceRequest(source, outcome string, elapsed time.Duration) {
	m.SourceRequestsTotal.WithLabelValues(source, outcome).Inc()
	m.SourceRequestDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// RecordPoll records the result of polling one source.
func (m *Metrics) RecordPoll(source string, fetched, fresh int, partial bool, elapsed time.Duration) {
	outcome := "success"
	if partial {
		outcome = "partial"
	}
	m.PollsTotal.WithLabelValues(source, outcome).Inc()
	m.PollDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	m.PapersFetched.WithLabelValues(source).Add(float64(fetched))
	m.PapersNew.WithLabelValues(source).Add(float64(fresh))
}

// RecordPollFailed records a poll that could not run at all.
func (m *Metrics) RecordPollFailed(source string) {
	m.PollsTotal.WithLabelValues(source, "failed").Inc()
}

// RecordSaved records the outcome of a successful batch upsert.
func (m *Metrics) RecordSaved(source string, inserted, updated int) {
	m.PapersSaved.WithLabelValues(source, "insert").Add(float64(inserted))
	m.PapersSaved.WithLabelValues(source, "update").Add(float64(updated))
}

// RecordPersistenceFailure records a failed batch upsert.
func (m *Metrics) RecordPersistenceFailure(source string) {
	m.PersistenceFailures.WithLabelValues(source).Inc()
}

// RecordEvent records an event publish attempt.
func (m *Metrics) RecordEvent(eventType string, err error) {
	m.EventsPublished.WithLabelValues(eventType, outcomeOf(err)).Inc()
}

// RecordArchive records a batch archive attempt.
func (m *Metrics) RecordArchive(err error) {
	m.ArchiveWrites.WithLabelValues(outcomeOf(err)).Inc()
}

// RecordHTTPRequest records one served API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
