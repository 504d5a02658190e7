// Package metrics exposes Prometheus instruments for invoice processing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stages timed by StageDuration.
const (
	StageLedger    = "ledger"
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageRefine    = "refine"
	StageReconcile = "reconcile"
	StageAssemble  = "assemble"
	StagePersist   = "persist"
	StageTotal     = "total"
)

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	Attempts         *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	Refinements      *prometheus.CounterVec
	RefinementCost   *prometheus.CounterVec
	LedgerConflicts  *prometheus.CounterVec
	UnresolvedFields *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_attempts_total",
				Help: "Processing attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoice_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		Refinements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_refinement_total",
				Help: "Refinement stage results by status",
			},
			[]string{"status"},
		),
		RefinementCost: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_refinement_cost_usd_total",
				Help: "Estimated refinement spend in USD by model",
			},
			[]string{"model"},
		),
		LedgerConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_ledger_conflicts_total",
				Help: "Attempts short-circuited by the ledger",
			},
			[]string{"kind"},
		),
		UnresolvedFields: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_unresolved_fields_total",
				Help: "Header fields left unresolved in persisted records",
			},
			[]string{"field"},
		),
		CircuitState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "invoice_circuit_state",
				Help: "Circuit breaker state by service (0 closed, 1 open, 2 half-open)",
			},
			[]string{"service"},
		),
	}
}

// RecordAttempt counts one finished attempt.
func (m *Metrics) RecordAttempt(mode, outcome string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(mode, outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRefinement counts a refinement stage result.
func (m *Metrics) RecordRefinement(status string) {
	if m == nil {
		return
	}
	m.Refinements.WithLabelValues(status).Inc()
}

// AddRefinementCost adds the estimated spend of one refinement call.
func (m *Metrics) AddRefinementCost(model string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.RefinementCost.WithLabelValues(model).Add(usd)
}

// RecordConflict counts an already-processed or in-progress short circuit.
func (m *Metrics) RecordConflict(kind string) {
	if m == nil {
		return
	}
	m.LedgerConflicts.WithLabelValues(kind).Inc()
}

// RecordUnresolved counts each unresolved field once.
func (m *Metrics) RecordUnresolved(fields []string) {
	if m == nil {
		return
	}
	for _, f := range fields {
		m.UnresolvedFields.WithLabelValues(f).Inc()
	}
}

// SetCircuitState records a breaker transition for service.
func (m *Metrics) SetCircuitState(service string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(service).Set(float64(state))
}
