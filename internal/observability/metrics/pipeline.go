package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

// PipelineMetrics records stage timings, cache outcomes and verdicts of the
// relevance pipeline.
type PipelineMetrics struct {
	service string

	stageDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	scoreValues   *prometheus.HistogramVec
	pages         prometheus.Histogram
	breakerState  *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "stage", "status"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "lookups_total",
			Help:      "Session cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	verdicts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "verdicts_total",
			Help:      "Culture verdicts by judgment model and whether a score was produced.",
		},
		[]string{"service", "model", "result"},
	)
	scoreValues := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "score",
			Help:      "Distribution of produced relevance scores.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service", "model"},
	)
	pages := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "pages",
			Help:      "Encyclopedia pages accepted per fresh run.",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 20},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "circuit_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(stageDuration, cacheLookups, verdicts, scoreValues, pages, breakerState)

	return &PipelineMetrics{
		service:       service,
		stageDuration: stageDuration,
		cacheLookups:  cacheLookups,
		verdicts:      verdicts,
		scoreValues:   scoreValues,
		pages:         pages,
		breakerState:  breakerState,
	}
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(m.service, stage, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveCacheLookup(outcome string) {
	m.cacheLookups.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveScores(model string, records []domain.ScoreRecord) {
	for _, r := range records {
		if r.Absent() {
			m.verdicts.WithLabelValues(m.service, model, "absent").Inc()
			continue
		}
		m.verdicts.WithLabelValues(m.service, model, "scored").Inc()
		m.scoreValues.WithLabelValues(m.service, model).Observe(float64(*r.Score))
	}
}

func (m *PipelineMetrics) ObservePages(count int) {
	m.pages.Observe(float64(count))
}

// ObserveBreakerState matches resilience.Config.OnStateChange.
func (m *PipelineMetrics) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state != "closed" {
		open = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(open)
}
