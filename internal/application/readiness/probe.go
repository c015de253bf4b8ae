// Package readiness answers the orchestrator's startup probe. The
// orchestrator owns the retry cadence; each probe is a single cheap check.
package readiness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ahrav/mountgate/pkg/common/fsutil"
	"github.com/ahrav/mountgate/pkg/common/logger"
)

// ErrNotReady signals the orchestrator to retry later.
var ErrNotReady = errors.New("waiting for storage mount to stabilize")

// Messages returned with a successful probe.
const (
	MessageFirstReady = "Storage mount ready, application is starting up."
	MessageReady      = "Storage mount and probe confirmed ready."
)

// Result is the body of a successful probe.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Metrics records probe outcomes.
type Metrics interface {
	IncProbe(ctx context.Context, ready bool)
	SetMountReady(ctx context.Context)
}

// Probe reports whether the marker file has been observed. Once it has, the
// probe stays ready for the life of the process without touching the
// filesystem again.
type Probe struct {
	marker string
	exists func(path string) bool

	ready    atomic.Bool
	observed chan struct{}
	once     sync.Once

	log     *logger.Logger
	metrics Metrics
}

// Option configures a Probe.
type Option func(*Probe)

// WithStat replaces the existence check.
func WithStat(fn func(path string) bool) Option { return func(p *Probe) { p.exists = fn } }

// WithMetrics records probe outcomes.
func WithMetrics(m Metrics) Option { return func(p *Probe) { p.metrics = m } }

// NewProbe creates a probe for the marker path.
func NewProbe(marker string, log *logger.Logger, opts ...Option) *Probe {
	p := &Probe{
		marker:   marker,
		exists:   fsutil.IsRegularFile,
		observed: make(chan struct{}),
		log:      log.With("component", "readiness_probe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check performs at most one existence check and never blocks.
func (p *Probe) Check(ctx context.Context) (Result, error) {
	if p.ready.Load() {
		p.record(ctx, true)
		return Result{Status: "ok", Message: MessageReady}, nil
	}

	if !p.exists(p.marker) {
		p.log.Info(ctx, "startup probe failed, marker not found", "marker", p.marker)
		p.record(ctx, false)
		return Result{}, ErrNotReady
	}

	if p.ready.CompareAndSwap(false, true) {
		p.once.Do(func() { close(p.observed) })
		p.log.Info(ctx, "startup probe succeeded", "marker", p.marker)
		if p.metrics != nil {
			p.metrics.SetMountReady(ctx)
		}
	}
	p.record(ctx, true)

	return Result{Status: "ok", Message: MessageFirstReady}, nil
}

// Ready reports whether the marker has been observed.
func (p *Probe) Ready() bool { return p.ready.Load() }

// Observed returns a channel closed on the first successful check.
func (p *Probe) Observed() <-chan struct{} { return p.observed }

// Marker returns the path the probe checks.
func (p *Probe) Marker() string { return p.marker }

func (p *Probe) record(ctx context.Context, ready bool) {
	if p.metrics != nil {
		p.metrics.IncProbe(ctx, ready)
	}
}
