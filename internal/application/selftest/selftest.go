// Package selftest exercises write and read access to a directory by
// round-tripping a small text file.
package selftest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactName is the file written and removed by every run.
const ArtifactName = "text_file_utf8.txt"

const (
	defaultLines      = 5
	defaultLineLength = 40
	alphabet          = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrContentMismatch is returned when the read-back bytes differ from what
// was written.
var ErrContentMismatch = errors.New("self-test content mismatch")

// ObjectVerifier confirms that a file written through a mount is visible in
// the backing object store.
type ObjectVerifier interface {
	VerifyObject(ctx context.Context, name string, size int64) error
}

// Report summarises a run.
type Report struct {
	Path     string
	Lines    int
	Bytes    int
	Verified bool
}

type config struct {
	lines    int
	length   int
	verifier ObjectVerifier
	objName  string
}

// Option configures a run.
type Option func(*config)

// WithLines overrides the number of sample lines written.
func WithLines(n int) Option { return func(c *config) { c.lines = n } }

// WithObjectVerifier cross-checks the artifact against the object store
// under the given object name before it is removed.
func WithObjectVerifier(v ObjectVerifier, objectName string) Option {
	return func(c *config) {
		c.verifier = v
		c.objName = objectName
	}
}

// Run writes ArtifactName in dir, reads it back and compares the bytes, then
// removes it. The artifact is removed even when verification fails.
func Run(ctx context.Context, dir string, opts ...Option) (Report, error) {
	cfg := config{lines: defaultLines, length: defaultLineLength}
	for _, opt := range opts {
		opt(&cfg)
	}

	path := filepath.Join(dir, ArtifactName)
	rep := Report{Path: path, Lines: cfg.lines}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return rep, fmt.Errorf("removing stale artifact: %w", err)
	}

	want := sample(cfg.lines, cfg.length)
	rep.Bytes = len(want)

	if err := os.WriteFile(path, want, 0o644); err != nil {
		return rep, fmt.Errorf("writing artifact: %w", err)
	}
	defer os.Remove(path)

	got, err := os.ReadFile(path)
	if err != nil {
		return rep, fmt.Errorf("reading artifact: %w", err)
	}
	if !bytes.Equal(want, got) {
		return rep, fmt.Errorf("%w: wrote %d bytes, read %d", ErrContentMismatch, len(want), len(got))
	}

	if cfg.verifier != nil {
		if err := cfg.verifier.VerifyObject(ctx, cfg.objName, int64(len(want))); err != nil {
			return rep, fmt.Errorf("verifying object %s: %w", cfg.objName, err)
		}
		rep.Verified = true
	}

	if err := os.Remove(path); err != nil {
		return rep, fmt.Errorf("removing artifact: %w", err)
	}

	return rep, nil
}

func sample(lines, length int) []byte {
	var b strings.Builder
	b.Grow(lines * (length + 1))
	for range lines {
		for range length {
			b.WriteByte(alphabet[rand.IntN(len(alphabet))])
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
