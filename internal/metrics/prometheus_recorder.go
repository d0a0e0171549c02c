package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	unitResults   *prom.CounterVec
	unitDuration  *prom.HistogramVec
	stageDuration *prom.HistogramVec
	runOutcome    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.unitResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "cloudbuild",
			Name:      "unit_results_total",
			Help:      "Build unit outcomes by branch, arch and result",
		}, []string{"branch", "arch", "result"})
		pr.unitDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "cloudbuild",
			Name:      "unit_duration_seconds",
			Help:      "Duration of individual unit builds",
			Buckets:   prom.DefBuckets,
		}, []string{"branch", "arch"})
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "cloudbuild",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "cloudbuild",
			Name:      "run_outcomes_total",
			Help:      "Whole-run outcomes by final status",
		}, []string{"outcome"})
		reg.MustRegister(pr.unitResults, pr.unitDuration, pr.stageDuration, pr.runOutcome)
	})
	return pr
}

func (p *PrometheusRecorder) IncUnitResult(branch, arch string, result UnitResult) {
	if p == nil || p.unitResults == nil {
		return
	}
	p.unitResults.WithLabelValues(branch, arch, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveUnitDuration(branch, arch string, d time.Duration) {
	if p == nil || p.unitDuration == nil {
		return
	}
	p.unitDuration.WithLabelValues(branch, arch).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}
