package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/mountgate/internal/application/calculator"
	"github.com/ahrav/mountgate/internal/application/readiness"
	"github.com/ahrav/mountgate/internal/application/sdk/mux"
	"github.com/ahrav/mountgate/internal/application/selftest"
	"github.com/ahrav/mountgate/internal/application/startup"
	"github.com/ahrav/mountgate/internal/domain/environment"
	"github.com/ahrav/mountgate/internal/domain/settings"
	httpServer "github.com/ahrav/mountgate/internal/infra/adapters/http"
	"github.com/ahrav/mountgate/internal/infra/metrics"
	"github.com/ahrav/mountgate/internal/infra/storage/gcs"
	"github.com/ahrav/mountgate/pkg/common"
	"github.com/ahrav/mountgate/pkg/common/logger"
	"github.com/ahrav/mountgate/pkg/common/otel"
)

const (
	serviceName     = "mountgate"
	shutdownTimeout = 10 * time.Second
)

func main() {
	os.Exit(start(os.Getenv, os.Stdout, os.Stderr))
}

// start wires configuration and logging around run and returns the process
// exit code.
func start(getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}

	log := logger.New(stdout, cfg.LogLevel, serviceName, otel.GetTraceID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, cfg); err != nil {
		if errors.Is(err, startup.ErrConfigMissing) {
			log.Critical(ctx, "startup aborted", "error", err)
		} else {
			log.Error(ctx, "service stopped with error", "error", err)
		}
		return 1
	}
	return 0
}

func run(ctx context.Context, log *logger.Logger, cfg config) error {
	log.Info(ctx, "starting service", "version", cfg.Version, "port", cfg.Port)

	tel, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceName,
		ServiceVersion:   cfg.Version,
		ExporterEndpoint: cfg.OTLPEndpoint,
		InsecureExporter: cfg.OTLPInsecure,
		Probability:      cfg.TraceProbability,
		ExcludedRoutes: map[string]struct{}{
			"GET /openapi.yaml": {},
		},
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		tel.Shutdown(sctx)
	}()

	tracer := tel.TracerProvider.Tracer(serviceName)

	reg, err := metrics.NewRegistry(tel.MeterProvider)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	env, err := environment.NewDetector().Detect()
	if err != nil {
		return fmt.Errorf("detecting environment: %w", err)
	}
	log.Info(ctx, "environment detected", "mode", env.Mode, "root", env.Root)

	probe := readiness.NewProbe(env.Marker, log, readiness.WithMetrics(reg.Readiness))
	store := settings.NewStore()

	calc, err := calculator.NewService(tracer, calculator.WithStrictOperations(cfg.CalculatorStrict))
	if err != nil {
		return fmt.Errorf("creating calculator: %w", err)
	}

	selfTest, closeSelfTest, err := newSelfTester(ctx, log, tracer, cfg, env)
	if err != nil {
		return err
	}
	defer closeSelfTest()

	coordinator := startup.NewCoordinator(
		startup.Config{
			Env:              env,
			ScratchRoot:      cfg.ScratchRoot,
			MaxChecks:        cfg.MaxChecks,
			CheckInterval:    cfg.CheckInterval,
			WatchEvents:      cfg.WatchEvents,
			ProbeObserved:    probe.Observed(),
			ProbeGateTimeout: cfg.ProbeTimeout,
		},
		store,
		log,
		tracer,
		startup.WithMetrics(reg.Startup),
		startup.WithSelfTest(selfTest),
	)

	var muxOpts []func(*mux.Options)
	if len(cfg.CORSOrigins) > 0 {
		muxOpts = append(muxOpts, mux.WithCORS(cfg.CORSOrigins))
	}

	handler, err := httpServer.NewHTTPServer(
		mux.Config{
			Log:        log,
			Tracer:     tracer,
			APIMetrics: reg.API,
			Ready:      coordinator.Ready(),
		},
		httpServer.Services{
			Probe:      probe,
			Store:      store,
			Calculator: calc,
			Version:    cfg.Version,
			Metrics:    tel.MetricsHandler,
		},
		muxOpts...,
	)
	if err != nil {
		return fmt.Errorf("creating http handler: %w", err)
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logger.NewStdLogger(log, logger.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(gctx, "HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error { return coordinator.Run(gctx) })

	servers := []*http.Server{server}
	if cfg.DebugAddr != "" {
		debug, err := common.NewDebugServer(cfg.DebugAddr)
		if err != nil {
			return fmt.Errorf("creating debug server: %w", err)
		}
		servers = append(servers, debug.Server())
		g.Go(func() error {
			log.Info(gctx, "debug server listening", "addr", cfg.DebugAddr)
			return debug.ListenAndServe()
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down servers")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(sctx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down %s: %w", s.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info(ctx, "server exited gracefully")
	return nil
}

// newSelfTester returns the filesystem self-test used at startup. When a
// bucket is configured in deployed mode, the mount root artifact is also
// looked up in the bucket.
func newSelfTester(
	ctx context.Context,
	log *logger.Logger,
	tracer trace.Tracer,
	cfg config,
	env environment.Environment,
) (startup.SelfTester, func(), error) {
	if cfg.SelfTestBucket == "" || env.IsLocal() {
		return func(ctx context.Context, dir string) (selftest.Report, error) {
			return selftest.Run(ctx, dir)
		}, func() {}, nil
	}

	verifier, err := gcs.NewVerifier(ctx, cfg.SelfTestBucket, cfg.SelfTestPrefix, gcs.WithTracer(tracer))
	if err != nil {
		return nil, nil, fmt.Errorf("creating self-test verifier: %w", err)
	}
	closeFn := func() {
		if err := verifier.Close(); err != nil {
			log.Warn(ctx, "closing self-test verifier", "error", err)
		}
	}

	return func(ctx context.Context, dir string) (selftest.Report, error) {
		if dir != env.Root {
			return selftest.Run(ctx, dir)
		}
		return selftest.Run(ctx, dir, selftest.WithObjectVerifier(verifier, selftest.ArtifactName))
	}, closeFn, nil
}
