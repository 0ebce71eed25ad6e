package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every trendsim collector on its own prometheus registry so
// tests and multiple servers in one process never collide. All methods are
// safe on a nil *Registry.
type Registry struct {
	reg *prometheus.Registry

	SimulationDuration *prometheus.HistogramVec
	Simulations        *prometheus.CounterVec

	CollaboratorDuration *prometheus.HistogramVec
	CollaboratorRequests *prometheus.CounterVec
	SnapshotFallbacks    *prometheus.CounterVec
	BreakerState         *prometheus.GaugeVec

	HTTPDuration *prometheus.HistogramVec

	EventsPublished *prometheus.CounterVec
	WarmRuns        *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		SimulationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendsim_simulation_duration_seconds",
				Help:    "Wall time of a full simulation run",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"outcome"},
		),
		Simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsim_simulations_total",
				Help: "Simulations by outcome and recommended posture",
			},
			[]string{"outcome", "posture"},
		),
		CollaboratorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendsim_collaborator_request_duration_seconds",
				Help:    "Latency of calls to lifecycle, risk and attribution collaborators",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
			},
			[]string{"collaborator"},
		),
		CollaboratorRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsim_collaborator_requests_total",
				Help: "Collaborator calls by result",
			},
			[]string{"collaborator", "result"},
		),
		SnapshotFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsim_snapshot_fallbacks_total",
				Help: "Times a last-known snapshot was served in place of a live collaborator answer",
			},
			[]string{"collaborator"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trendsim_collaborator_breaker_state",
				Help: "Circuit breaker state per collaborator (0 closed, 1 half-open, 2 open)",
			},
			[]string{"collaborator"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendsim_http_request_duration_seconds",
				Help:    "HTTP API latency by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsim_events_published_total",
				Help: "simulation.completed events by result",
			},
			[]string{"result"},
		),
		WarmRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendsim_snapshot_warm_runs_total",
				Help: "Snapshot warm-up jobs by result",
			},
			[]string{"result"},
		),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SimulationDuration, r.Simulations,
		r.CollaboratorDuration, r.CollaboratorRequests, r.SnapshotFallbacks, r.BreakerState,
		r.HTTPDuration, r.EventsPublished, r.WarmRuns,
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveSimulation(outcome, posture string, d time.Duration) {
	if r == nil {
		return
	}
	r.SimulationDuration.WithLabelValues(outcome).Observe(d.Seconds())
	r.Simulations.WithLabelValues(outcome, posture).Inc()
}

func (r *Registry) ObserveCollaborator(name, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.CollaboratorDuration.WithLabelValues(name).Observe(d.Seconds())
	r.CollaboratorRequests.WithLabelValues(name, result).Inc()
}

func (r *Registry) SnapshotFallback(name string) {
	if r == nil {
		return
	}
	r.SnapshotFallbacks.WithLabelValues(name).Inc()
}

func (r *Registry) SetBreakerState(name string, state float64) {
	if r == nil {
		return
	}
	r.BreakerState.WithLabelValues(name).Set(state)
}

func (r *Registry) ObserveHTTP(route, method, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}

func (r *Registry) EventPublished(result string) {
	if r == nil {
		return
	}
	r.EventsPublished.WithLabelValues(result).Inc()
}

func (r *Registry) WarmRun(result string) {
	if r == nil {
		return
	}
	r.WarmRuns.WithLabelValues(result).Inc()
}
