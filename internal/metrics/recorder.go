package metrics

import "time"

// UnitResult enumerates build-unit outcomes for counters.
type UnitResult string

const (
	UnitBuilt   UnitResult = "built"
	UnitSkipped UnitResult = "skipped"
	UnitFailed  UnitResult = "failed"
)

// Recorder defines observability hooks for matrix runs. All methods must be
// safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	IncUnitResult(branch, arch string, result UnitResult)
	ObserveUnitDuration(branch, arch string, d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	IncRunOutcome(outcome string) // outcome: success|failed
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) IncUnitResult(string, string, UnitResult) {}

func (NoopRecorder) ObserveUnitDuration(string, string, time.Duration) {}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}

func (NoopRecorder) IncRunOutcome(string) {}
