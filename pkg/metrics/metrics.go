package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aegis_index"

// Registry holds the engine's Prometheus collectors
// ⭐ SSOT: 메트릭 정의는 여기서만
type Registry struct {
	reg *prometheus.Registry

	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	Rebalances  *prometheus.CounterVec
	Exclusions  *prometheus.CounterVec
	RiskReports *prometheus.CounterVec
	JobRuns     *prometheus.CounterVec
}

// New creates a registry with every collector registered.
// withRuntime adds the Go runtime and process collectors.
func New(withRuntime bool) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Engine runs by result",
			},
			[]string{"result"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of engine runs in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),

		Rebalances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebalances_total",
				Help:      "Rebalance decisions by outcome",
			},
			[]string{"outcome"},
		),

		Exclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exclusions_total",
				Help:      "Assets excluded from weighting by reason",
			},
			[]string{"reason"},
		),

		RiskReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_reports_total",
				Help:      "Risk reports served by source (cache or computed)",
			},
			[]string{"source"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_job_runs_total",
				Help:      "Scheduled job executions by job and result",
			},
			[]string{"job", "result"},
		),
	}

	r.reg.MustRegister(r.Runs, r.RunDuration, r.Rebalances, r.Exclusions, r.RiskReports, r.JobRuns)
	if withRuntime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry (tests)
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveRun records one engine run
func (r *Registry) ObserveRun(status string, d time.Duration) {
	r.Runs.WithLabelValues(status).Inc()
	r.RunDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncRebalance counts a rebalance decision
func (r *Registry) IncRebalance(outcome string) {
	r.Rebalances.WithLabelValues(outcome).Inc()
}

// IncExclusion counts an excluded asset
func (r *Registry) IncExclusion(reason string) {
	r.Exclusions.WithLabelValues(reason).Inc()
}

// IncRiskReport counts a served risk report
func (r *Registry) IncRiskReport(cached bool) {
	source := "computed"
	if cached {
		source = "cache"
	}
	r.RiskReports.WithLabelValues(source).Inc()
}

// IncJob counts a scheduler job execution
func (r *Registry) IncJob(job string, success bool) {
	result := "success"
	if !success {
		result = "failed"
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
}
