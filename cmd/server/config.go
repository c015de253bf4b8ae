package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/mountgate/internal/application/startup"
	"github.com/ahrav/mountgate/pkg/common/logger"
)

// config holds the process settings read from the environment at boot.
// The configuration record served to handlers is loaded later from the
// mount by the startup coordinator.
type config struct {
	Port string

	ScratchRoot   string
	MaxChecks     int
	CheckInterval time.Duration
	WatchEvents   bool
	ProbeTimeout  time.Duration

	CalculatorStrict bool
	CORSOrigins      []string

	SelfTestBucket string
	SelfTestPrefix string

	LogLevel         logger.Level
	OTLPEndpoint     string
	OTLPInsecure     bool
	TraceProbability float64
	DebugAddr        string
	Version          string
}

// loadConfig reads the process settings. Every invalid value is reported.
func loadConfig(getenv func(string) string) (config, error) {
	p := envParser{getenv: getenv}

	cfg := config{
		Port:             p.str("PORT", "8080"),
		ScratchRoot:      p.str("SCRATCH_ROOT", startup.DefaultScratchRoot),
		MaxChecks:        p.integer("MOUNT_MAX_CHECKS", startup.DefaultMaxChecks),
		CheckInterval:    p.duration("MOUNT_CHECK_INTERVAL", startup.DefaultCheckInterval),
		WatchEvents:      p.boolean("MOUNT_WATCH_EVENTS", false),
		ProbeTimeout:     p.duration("STARTUP_PROBE_TIMEOUT", startup.DefaultProbeGateTimeout),
		CalculatorStrict: p.boolean("CALCULATOR_STRICT", false),
		CORSOrigins:      p.list("CORS_ALLOWED_ORIGINS"),
		SelfTestBucket:   p.str("SELFTEST_BUCKET", ""),
		SelfTestPrefix:   p.str("SELFTEST_BUCKET_PREFIX", ""),
		OTLPEndpoint:     p.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:     p.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceProbability: p.float("TRACE_SAMPLE_RATIO", 1),
		DebugAddr:        p.str("DEBUG_ADDR", ""),
		Version:          p.str("SERVICE_VERSION", "0.0.0"),
	}

	lvl, err := logger.ParseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		p.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = lvl

	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		p.fail("PORT", err)
	}
	if cfg.MaxChecks < 1 {
		p.fail("MOUNT_MAX_CHECKS", errors.New("must be at least 1"))
	}
	if cfg.CheckInterval <= 0 {
		p.fail("MOUNT_CHECK_INTERVAL", errors.New("must be positive"))
	}
	if cfg.ProbeTimeout < 0 {
		p.fail("STARTUP_PROBE_TIMEOUT", errors.New("must not be negative"))
	}
	if cfg.TraceProbability < 0 || cfg.TraceProbability > 1 {
		p.fail("TRACE_SAMPLE_RATIO", errors.New("must be between 0 and 1"))
	}

	return cfg, errors.Join(p.errs...)
}

type envParser struct {
	getenv func(string) string
	errs   []error
}

func (p *envParser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *envParser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *envParser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *envParser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *envParser) list(key string) []string {
	var out []string
	for _, s := range strings.Split(p.getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
