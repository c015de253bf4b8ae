// Package startup runs the one-shot sequence that takes the service from a
// bound but empty process to one that may serve functional traffic.
package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mountgate/internal/application/mount"
	"github.com/ahrav/mountgate/internal/application/selftest"
	"github.com/ahrav/mountgate/internal/domain/environment"
	"github.com/ahrav/mountgate/internal/domain/settings"
	"github.com/ahrav/mountgate/pkg/common/fsutil"
	"github.com/ahrav/mountgate/pkg/common/logger"
	"github.com/ahrav/mountgate/pkg/common/timeutil"
)

var (
	// ErrConfigMissing is fatal: local development requires the
	// configuration file in the working directory.
	ErrConfigMissing = errors.New("configuration file not found")
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("startup sequence already run")
)

// Defaults for the coordinator's own mount loop. The orchestrator's probe
// should already have gated on the mount; this loop is a final guard.
const (
	DefaultMaxChecks        = 10
	DefaultCheckInterval    = 500 * time.Millisecond
	DefaultProbeGateTimeout = 4 * time.Minute
	DefaultScratchRoot      = "/tmp"
)

// Config holds the inputs of the startup sequence.
type Config struct {
	Env         environment.Environment
	ScratchRoot string

	MaxChecks     int
	CheckInterval time.Duration
	WatchEvents   bool

	// ProbeObserved is closed once the readiness probe first sees the mount.
	// In deployed mode the coordinator waits on it for at most
	// ProbeGateTimeout before running its own loop. Nil or a zero timeout
	// disables the gate.
	ProbeObserved    <-chan struct{}
	ProbeGateTimeout time.Duration
}

// SelfTester round-trips a file in dir.
type SelfTester func(ctx context.Context, dir string) (selftest.Report, error)

// Coordinator runs the startup sequence exactly once and publishes the
// configuration record. It is the only writer of the settings store.
type Coordinator struct {
	cfg   Config
	store *settings.Store

	env      settings.Env
	clock    timeutil.Provider
	exists   func(path string) bool
	selfTest SelfTester

	log     *logger.LoggerContext
	tracer  trace.Tracer
	metrics Metrics

	started atomic.Bool
	state   atomic.Int32
	ready   chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the time source used for mount waits.
func WithClock(p timeutil.Provider) Option { return func(c *Coordinator) { c.clock = p } }

// WithEnv replaces the process environment the configuration file is applied to.
func WithEnv(env settings.Env) Option { return func(c *Coordinator) { c.env = env } }

// WithStat replaces the marker existence check.
func WithStat(fn func(path string) bool) Option { return func(c *Coordinator) { c.exists = fn } }

// WithSelfTest replaces the filesystem self-test.
func WithSelfTest(fn SelfTester) Option { return func(c *Coordinator) { c.selfTest = fn } }

// WithMetrics records startup metrics.
func WithMetrics(m Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// NewCoordinator creates a coordinator that publishes into store.
func NewCoordinator(
	cfg Config,
	store *settings.Store,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Coordinator {
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = DefaultScratchRoot
	}
	if cfg.MaxChecks < 1 {
		cfg.MaxChecks = DefaultMaxChecks
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}

	c := &Coordinator{
		cfg:     cfg,
		store:   store,
		env:     settings.OSEnv{},
		clock:   timeutil.Default(),
		exists:  fsutil.IsRegularFile,
		log:     logger.NewLoggerContext(log.With("component", "startup_coordinator")),
		tracer:  tracer,
		metrics: noopMetrics{},
		ready:   make(chan struct{}),
	}
	c.selfTest = func(ctx context.Context, dir string) (selftest.Report, error) {
		return selftest.Run(ctx, dir)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current phase.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Ready returns a channel closed once functional traffic may be served.
func (c *Coordinator) Ready() <-chan struct{} { return c.ready }

// Run executes the startup sequence and then blocks until ctx is done,
// covering the whole serving period. It returns an error only when startup
// cannot proceed at all; a mount that never appears degrades the service
// instead of failing it.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.log.Info(ctx, "application startup sequence initiated")
	if err := c.startup(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	c.shutdown(context.WithoutCancel(ctx))
	return nil
}

func (c *Coordinator) startup(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "startup.run", trace.WithAttributes(
		attribute.String("environment", string(c.cfg.Env.Mode)),
		attribute.String("config_root", c.cfg.Env.Root),
	))
	defer span.End()

	env := c.cfg.Env

	c.transition(ctx, StateDetectingEnvironment)
	c.log.Info(ctx, "detected environment", "mode", env.Mode, "marker", env.Marker)

	haveConfig := true
	if env.IsLocal() {
		if !c.exists(env.Marker) {
			err := fmt.Errorf("%w: %s", ErrConfigMissing, env.Marker)
			span.RecordError(err)
			span.SetStatus(codes.Error, "local configuration missing")
			c.log.Critical(ctx, "configuration file not found locally, cannot start", "marker", env.Marker)
			return err
		}
	} else {
		c.transition(ctx, StateAwaitingMount)
		haveConfig = c.awaitMount(ctx)
		if ctx.Err() != nil {
			// Terminated before the mount settled; Run logs the shutdown.
			return nil
		}
	}

	c.transition(ctx, StateLoadingConfig)
	if err := c.loadConfig(ctx, haveConfig); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading configuration")
		return err
	}

	c.runSelfTests(ctx)

	c.transition(ctx, StateReadyForTraffic)
	close(c.ready)
	c.log.Info(ctx, "application ready for traffic")

	return nil
}

// awaitMount waits for the probe gate and then runs the bounded loop. It
// reports whether the marker was found.
func (c *Coordinator) awaitMount(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "startup.await_mount")
	defer span.End()

	if c.cfg.ProbeObserved != nil && c.cfg.ProbeGateTimeout > 0 {
		select {
		case <-c.cfg.ProbeObserved:
			c.log.Info(ctx, "readiness probe observed the mount")
		case <-c.clock.After(c.cfg.ProbeGateTimeout):
			c.log.Warn(ctx, "readiness probe did not observe the mount in time, checking directly",
				"timeout", c.cfg.ProbeGateTimeout.String())
		case <-ctx.Done():
			return false
		}
	}

	opts := []mount.Option{
		mount.WithClock(c.clock),
		mount.WithStat(c.exists),
		mount.WithCheckHook(func(attempt int, found bool) {
			if !found && attempt < c.cfg.MaxChecks {
				c.log.Info(ctx, "waiting for storage mount", "attempt", attempt, "max_attempts", c.cfg.MaxChecks)
			}
		}),
	}
	if c.cfg.WatchEvents {
		opts = append(opts, mount.WithEvents())
	}

	res := mount.NewWatcher(c.cfg.Env.Marker, c.cfg.MaxChecks, c.cfg.CheckInterval, opts...).Wait(ctx)
	c.metrics.ObserveMountWait(ctx, res.Found, res.Attempts, res.Elapsed)
	span.SetAttributes(
		attribute.Bool("found", res.Found),
		attribute.Int("attempts", res.Attempts),
	)

	if res.Found {
		c.log.Info(ctx, "storage mount confirmed ready", "attempts", res.Attempts)
		return true
	}
	if ctx.Err() == nil {
		c.log.Critical(ctx, "configuration file not found on mount after checks; application may be misconfigured or the mount failed",
			"marker", c.cfg.Env.Marker,
			"attempts", res.Attempts,
		)
	}
	return false
}

// loadConfig applies the configuration file, when present, and publishes
// the record. Only a local load failure is fatal.
func (c *Coordinator) loadConfig(ctx context.Context, haveConfig bool) error {
	env := c.cfg.Env

	if haveConfig {
		applied, err := settings.LoadFile(env.Marker, c.env)
		switch {
		case err != nil && env.IsLocal():
			return fmt.Errorf("loading local configuration: %w", err)
		case err != nil:
			c.log.Critical(ctx, "configuration file could not be loaded", "marker", env.Marker, "error", err)
		default:
			c.log.Info(ctx, "environment variables loaded", "marker", env.Marker, "keys", len(applied))
		}
	}

	rec, err := settings.FromEnv(c.env.LookupEnv, env.Root, c.cfg.ScratchRoot)
	if err != nil {
		c.log.Warn(ctx, "invalid configuration value, using default", "error", err)
	}

	if err := c.store.Publish(rec); err != nil {
		return fmt.Errorf("publishing settings: %w", err)
	}

	c.log.Info(ctx, "settings published",
		"collection_name", rec.CollectionName,
		"scratch_path", rec.ScratchPath,
		"mount_path", rec.MountPath,
	)
	return nil
}

// runSelfTests round-trips a file on the configuration root and, when
// deployed, on the scratch path. Failures are diagnostic only.
func (c *Coordinator) runSelfTests(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "startup.self_test")
	defer span.End()

	c.selfTestDir(ctx, "mount", c.cfg.Env.Root)

	if c.cfg.Env.IsLocal() {
		return
	}

	rec, _ := c.store.Load()
	if err := os.MkdirAll(rec.ScratchPath, 0o755); err != nil {
		c.log.Error(ctx, "creating scratch path", "path", rec.ScratchPath, "error", err)
		c.metrics.IncSelfTest(ctx, "scratch", false)
		return
	}
	c.selfTestDir(ctx, "scratch", rec.ScratchPath)
}

func (c *Coordinator) selfTestDir(ctx context.Context, target, dir string) {
	rep, err := c.selfTest(ctx, dir)
	c.metrics.IncSelfTest(ctx, target, err == nil)
	if err != nil {
		c.log.Error(ctx, "filesystem self-test failed", "target", target, "dir", dir, "error", err)
		return
	}
	c.log.Info(ctx, "filesystem self-test passed",
		"target", target,
		"path", rep.Path,
		"bytes", rep.Bytes,
		"object_verified", rep.Verified,
	)
}

func (c *Coordinator) shutdown(ctx context.Context) {
	c.transition(ctx, StateShuttingDown)
	c.log.Info(ctx, "application shutdown sequence initiated")
}

func (c *Coordinator) transition(ctx context.Context, s State) {
	c.state.Store(int32(s))
	c.log.Clear()
	c.log.Add("state", s.String())
	c.metrics.SetState(ctx, s)
}
