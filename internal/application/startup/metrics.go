package startup

import (
	"context"
	"time"
)

// Metrics defines metrics for the startup sequence.
type Metrics interface {
	// SetState records the phase the coordinator has entered.
	SetState(ctx context.Context, state State)

	// ObserveMountWait records how long the coordinator waited for the
	// mount and whether the marker appeared.
	ObserveMountWait(ctx context.Context, found bool, attempts int, duration time.Duration)

	// IncSelfTest counts filesystem self-test runs per target.
	IncSelfTest(ctx context.Context, target string, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) SetState(context.Context, State)                            {}
func (noopMetrics) ObserveMountWait(context.Context, bool, int, time.Duration) {}
func (noopMetrics) IncSelfTest(context.Context, string, bool)                  {}
