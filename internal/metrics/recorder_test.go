package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.IncUnitResult("p9", "x86_64", UnitBuilt)
	rec.IncUnitResult("p9", "x86_64", UnitBuilt)
	rec.IncUnitResult("p9", "x86_64", UnitFailed)
	rec.IncRunOutcome("success")
	rec.ObserveUnitDuration("p9", "x86_64", 3*time.Second)
	rec.ObserveStageDuration("prepare", time.Second)

	built := rec.unitResults.WithLabelValues("p9", "x86_64", string(UnitBuilt))
	assert.Equal(t, 2.0, testutil.ToFloat64(built))
	failed := rec.unitResults.WithLabelValues("p9", "x86_64", string(UnitFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(failed))
	outcome := rec.runOutcome.WithLabelValues("success")
	assert.Equal(t, 1.0, testutil.ToFloat64(outcome))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *PrometheusRecorder
	rec.IncUnitResult("b", "a", UnitSkipped)
	rec.ObserveUnitDuration("b", "a", time.Second)
	rec.ObserveStageDuration("build", time.Second)
	rec.IncRunOutcome("failed")
}

func TestNoopRecorderImplementsRecorder(t *testing.T) {
	var _ Recorder = NoopRecorder{}
	var _ Recorder = (*PrometheusRecorder)(nil)
}
