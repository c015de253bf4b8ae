package mid

import (
	"context"
	"net/http"
	"time"
)

// APIMetrics defines metrics for API operations.
type APIMetrics interface {
	// ObserveRequestLatency records the latency of API requests.
	ObserveRequestLatency(ctx context.Context, endpoint string, method string, statusCode int, duration time.Duration)

	// IncRequestCount increments the count of requests by endpoint and status.
	IncRequestCount(ctx context.Context, endpoint string, method string, statusCode int)

	// TrackConcurrentRequests tracks the number of concurrent requests.
	TrackConcurrentRequests(ctx context.Context, endpoint string, f func() error) error
}

// MetricsMiddleware creates middleware that records API metrics.
func MetricsMiddleware(metrics APIMetrics) HTTPMiddleware {
	if metrics == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			endpoint := routeOf(r)
			method := r.Method

			sw := &statusWriter{ResponseWriter: w}

			err := metrics.TrackConcurrentRequests(ctx, endpoint, func() error {
				next.ServeHTTP(sw, r)
				return nil
			})
			statusCode := sw.Status()

			metrics.IncRequestCount(ctx, endpoint, method, statusCode)
			metrics.ObserveRequestLatency(ctx, endpoint, method, statusCode, time.Since(start))

			// If there was an error in the middleware itself (not from the handler).
			if err != nil && !sw.written() {
				WriteError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred", nil)
			}
		})
	}
}
