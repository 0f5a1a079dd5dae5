package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the engine's Prometheus instruments. Register it once on a
// registry owned by the process entrypoint.
type Collector struct {
	assessmentsTotal   *prometheus.CounterVec
	indicatorTriggered *prometheus.CounterVec
	assessmentSeconds  *prometheus.HistogramVec
	methodUnavailable  *prometheus.CounterVec
	baselineRecomputes prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		assessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_engine",
			Name:      "assessments_total",
			Help:      "Completed tender risk assessments by outcome.",
		}, []string{"outcome"}),
		indicatorTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_engine",
			Name:      "indicator_triggered_total",
			Help:      "Triggered indicator results by indicator name.",
		}, []string{"indicator", "category"}),
		assessmentSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "risk_engine",
			Name:      "assessment_duration_seconds",
			Help:      "Wall time of one tender assessment.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		methodUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "risk_engine",
			Name:      "anomaly_method_unavailable_total",
			Help:      "Anomaly methods skipped with weight redistributed.",
		}, []string{"method"}),
		baselineRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "risk_engine",
			Name:      "baseline_recomputes_total",
			Help:      "Market baseline cache misses that forced a recompute.",
		}),
	}
}

// Register attaches every instrument to the given registry.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.assessmentsTotal,
		c.indicatorTriggered,
		c.assessmentSeconds,
		c.methodUnavailable,
		c.baselineRecomputes,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) ObserveAssessment(outcome string, elapsed time.Duration) {
	c.assessmentsTotal.WithLabelValues(outcome).Inc()
	c.assessmentSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (c *Collector) IndicatorTriggered(indicator, category string) {
	c.indicatorTriggered.WithLabelValues(indicator, category).Inc()
}

func (c *Collector) MethodUnavailable(method string) {
	c.methodUnavailable.WithLabelValues(method).Inc()
}

func (c *Collector) BaselineRecomputed() {
	c.baselineRecomputes.Inc()
}
