package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	ticketsCreated  prometheus.Counter
	ticketsEscalate prometheus.Counter
	votes           prometheus.Counter
	pipelineStages  *prometheus.CounterVec
	pipelineFallbck prometheus.Counter
	personaReplies  *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "civic",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "http_errors_total",
			Help:      "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		ticketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "tickets_created_total",
			Help:      "Tickets committed through the lifecycle API.",
		}),
		ticketsEscalate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "tickets_escalated_total",
			Help:      "Tickets auto-escalated by the escalation engine.",
		}),
		votes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "ticket_votes_total",
			Help:      "Votes recorded on tickets.",
		}),
		pipelineStages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "pipeline_stage_total",
			Help:      "Analysis pipeline stage outcomes.",
		}, []string{"stage", "outcome"}),
		pipelineFallbck: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "pipeline_fallback_total",
			Help:      "Detect stage results replaced by the fallback record.",
		}),
		personaReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "civic",
			Name:      "commissioner_responses_total",
			Help:      "Persona stage jobs by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.requests, m.requestLatency, m.errors,
		m.ticketsCreated, m.ticketsEscalate, m.votes,
		m.pipelineStages, m.pipelineFallbck, m.personaReplies,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// TicketCreated counts a committed ticket.
func (m *Metrics) TicketCreated() {
	if m == nil {
		return
	}
	m.ticketsCreated.Inc()
}

// TicketsEscalated counts n escalations from one evaluation pass.
func (m *Metrics) TicketsEscalated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ticketsEscalate.Add(float64(n))
}

// Voted counts a vote.
func (m *Metrics) Voted() {
	if m == nil {
		return
	}
	m.votes.Inc()
}

// PipelineStage records the outcome of one pipeline stage.
func (m *Metrics) PipelineStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.pipelineStages.WithLabelValues(stage, outcome).Inc()
}

// PipelineFallback counts a Detect fallback.
func (m *Metrics) PipelineFallback() {
	if m == nil {
		return
	}
	m.pipelineFallbck.Inc()
}

// CommissionerResponse records a persona job outcome.
func (m *Metrics) CommissionerResponse(outcome string) {
	if m == nil {
		return
	}
	m.personaReplies.WithLabelValues(outcome).Inc()
}
