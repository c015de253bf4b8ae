// Package mid provides app level middleware support.
package mid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/mountgate/pkg/common/logger"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// HTTPMiddleware represents a standard Go HTTP middleware function. It wraps an HTTP
// handler and returns a new handler, allowing for pre and post-processing of requests.
type HTTPMiddleware func(http.Handler) http.Handler

// Wrap applies mw to h so that the first middleware is the outermost.
func Wrap(h http.Handler, mw ...HTTPMiddleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			h = mw[i](h)
		}
	}
	return h
}

// contextKey is a type for keys stored in a context.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	errorSlotKey contextKey = "error_slot"
)

// RequestIDFromContext returns the id assigned by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// errorSlot holds the error a handler reported for the current request.
type errorSlot struct{ err error }

// RecordError attaches err to the request so the Errors middleware can log
// it once the response is written. It is a no-op outside that middleware.
func RecordError(ctx context.Context, err error) {
	if slot, ok := ctx.Value(errorSlotKey).(*errorSlot); ok && err != nil {
		slot.err = err
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and passes it to the wrapped ResponseWriter.
func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write captures a 200 status if WriteHeader hasn't been called yet.
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the status written so far, defaulting to 200.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) written() bool { return w.status != 0 }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// routeOf names the request by its mux pattern to keep span names and
// metric labels bounded.
func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// RequestID assigns every request an id, reusing a well-formed one supplied
// by the caller, and echoes it in the response.
func RequestID() HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerHTTP provides a standard HTTP middleware for request logging. It logs the
// start and completion of HTTP requests along with important request metadata
// such as method, path, status code, and duration.
func LoggerHTTP(log *logger.Logger) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			sw := &statusWriter{ResponseWriter: w}

			log.Info(ctx, "request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"request_id", RequestIDFromContext(ctx),
			)

			next.ServeHTTP(sw, r)

			log.Info(ctx, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"request_id", RequestIDFromContext(ctx),
				"status_code", sw.Status(),
				"took", time.Since(start).String(),
			)
		})
	}
}

// OtelHTTP provides a standard HTTP middleware for OpenTelemetry tracing. It creates
// a span for each request, propagates trace context from incoming headers, and records
// key request/response data as span attributes for observability.
func OtelHTTP(tracer trace.Tracer) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			startTime := time.Now()

			// Extract trace context from request headers.
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

			attrs := []attribute.KeyValue{
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
			}
			if id := RequestIDFromContext(ctx); id != "" {
				attrs = append(attrs, attribute.String("request_id", id))
			}

			ctx, span := tracer.Start(ctx, routeOf(r),
				trace.WithAttributes(attrs...),
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttributes(
				attribute.Int("http.status_code", sw.Status()),
				attribute.String("http.response_time", time.Since(startTime).String()),
			)
			if sw.Status() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.Status()))
			}
		})
	}
}

// Errors logs the error a handler recorded with RecordError. Server faults
// are logged at error level, client faults at info.
func Errors(log *logger.Logger) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := new(errorSlot)
			ctx := context.WithValue(r.Context(), errorSlotKey, slot)
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r.WithContext(ctx))

			if slot.err == nil {
				return
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(ctx),
				"status_code", sw.Status(),
				"error", slot.err,
			}
			if sw.Status() >= http.StatusInternalServerError {
				log.Error(ctx, "request failed", args...)
				return
			}
			log.Info(ctx, "request rejected", args...)
		})
	}
}

// ErrPanic wraps a value recovered from a handler panic.
var ErrPanic = errors.New("handler panicked")

// Panics recovers from handler panics and responds with a 500.
func Panics() HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err := fmt.Errorf("%w: %v\n%s", ErrPanic, rec, debug.Stack())
				RecordError(r.Context(), err)
				trace.SpanFromContext(r.Context()).RecordError(err)

				if !sw.written() {
					WriteError(sw, http.StatusInternalServerError, "internal_error", "An internal error occurred", nil)
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}

// GateMessage is returned for functional routes while the service starts.
const GateMessage = "Service is starting up; retry shortly."

// Gate rejects requests with 503 until ready is closed.
func Gate(ready <-chan struct{}) HTTPMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-ready:
				next.ServeHTTP(w, r)
			default:
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusServiceUnavailable, "starting", GateMessage, nil)
			}
		})
	}
}

// GetMiddlewareChain returns the standard middleware stack for functional
// routes, outermost first.
func GetMiddlewareChain(log *logger.Logger, tracer trace.Tracer, metrics APIMetrics) []HTTPMiddleware {
	return []HTTPMiddleware{
		RequestID(),
		OtelHTTP(tracer),
		MetricsMiddleware(metrics),
		LoggerHTTP(log),
		Errors(log),
		Panics(),
	}
}
