// Package gcs cross-checks files written through a GCS FUSE mount against
// the bucket that backs it.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/mountgate/internal/application/selftest"
	infrastorage "github.com/ahrav/mountgate/internal/infra/storage"
	"github.com/ahrav/mountgate/pkg/common/timeutil"
)

var (
	// ErrObjectMissing is returned when the object never became visible.
	ErrObjectMissing = errors.New("object not found in bucket")
	// ErrSizeMismatch is returned when the object size differs from the file.
	ErrSizeMismatch = errors.New("object size mismatch")
)

const (
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
)

var _ selftest.ObjectVerifier = (*Verifier)(nil)

type attrsFunc func(ctx context.Context, name string) (*storage.ObjectAttrs, error)

// Verifier looks objects up in a single bucket.
type Verifier struct {
	bucket string
	prefix string

	attrs    attrsFunc
	closer   func() error
	clock    timeutil.Provider
	tracer   trace.Tracer
	attempts int
	backoff  time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock replaces the time source used between lookups.
func WithClock(p timeutil.Provider) Option { return func(v *Verifier) { v.clock = p } }

// WithTracer traces each bucket lookup.
func WithTracer(t trace.Tracer) Option { return func(v *Verifier) { v.tracer = t } }

// WithAttempts sets how many lookups are made before giving up.
func WithAttempts(n int) Option { return func(v *Verifier) { v.attempts = max(n, 1) } }

// NewVerifier creates a verifier for bucket using application default
// credentials. Object names are joined under prefix.
func NewVerifier(ctx context.Context, bucket, prefix string, opts ...Option) (*Verifier, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	bkt := client.Bucket(bucket)
	v := newVerifier(bucket, prefix, func(ctx context.Context, name string) (*storage.ObjectAttrs, error) {
		return bkt.Object(name).Attrs(ctx)
	}, opts...)
	v.closer = client.Close
	return v, nil
}

func newVerifier(bucket, prefix string, attrs attrsFunc, opts ...Option) *Verifier {
	v := &Verifier{
		bucket:   bucket,
		prefix:   prefix,
		attrs:    attrs,
		clock:    timeutil.Default(),
		tracer:   noop.NewTracerProvider().Tracer("gcs"),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ObjectName returns the full object name for a file name.
func (v *Verifier) ObjectName(name string) string {
	if v.prefix == "" {
		return name
	}
	return path.Join(v.prefix, name)
}

// VerifyObject checks that name exists with the expected size. Mounts
// flush asynchronously, so a missing object is looked up again a few times.
func (v *Verifier) VerifyObject(ctx context.Context, name string, size int64) error {
	object := v.ObjectName(name)

	var lastErr error
	for attempt := 1; attempt <= v.attempts; attempt++ {
		var attrs *storage.ObjectAttrs
		err := infrastorage.ExecuteAndTrace(ctx, v.tracer, "gcs.object_attrs",
			[]attribute.KeyValue{
				attribute.String("bucket", v.bucket),
				attribute.String("object", object),
				attribute.Int("attempt", attempt),
			},
			func(err error) bool { return errors.Is(err, storage.ErrObjectNotExist) },
			func(ctx context.Context) error {
				var err error
				attrs, err = v.attrs(ctx, object)
				return err
			},
		)
		switch {
		case err == nil:
			if attrs.Size != size {
				return fmt.Errorf("%w: gs://%s/%s is %d bytes, want %d", ErrSizeMismatch, v.bucket, object, attrs.Size, size)
			}
			return nil
		case errors.Is(err, storage.ErrObjectNotExist):
			lastErr = fmt.Errorf("%w: gs://%s/%s", ErrObjectMissing, v.bucket, object)
		default:
			return fmt.Errorf("reading attributes of gs://%s/%s: %w", v.bucket, object, err)
		}

		if attempt < v.attempts {
			if err := timeutil.Sleep(ctx, v.clock, v.backoff); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// Close releases the storage client.
func (v *Verifier) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer()
}
