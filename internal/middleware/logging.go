// Package middleware implements component L: the fixed-order per-request
// chain every service wraps its operation table in — request logging, IAM
// evaluation, chaos injection, and (object service only) virtual-hosted-style
// bucket rewriting — in the same http.Handler-wrapping style as the
// teacher's infrastructure/middleware package.
package middleware

import (
	"net/http"
	"time"

	"github.com/local-web-services/ldk/internal/logging"
)

// responseWriter captures the status code and body size written by the
// wrapped handler, mirroring the teacher's logging middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bodySize   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bodySize += n
	return n, err
}

// Logging wraps next so that every request is timed, traced, and appended
// to the shared ring buffer as a logging.Record.
func Logging(serviceName string, log *logging.Logger, ring *logging.RingBuffer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			r.Header.Set("X-Trace-ID", traceID)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			latency := time.Since(start)
			rec := logging.Record{
				Service:    serviceName,
				Method:     r.Method,
				Path:       r.URL.Path,
				Handler:    operationHint(r),
				BodySize:   wrapped.bodySize,
				Status:     wrapped.statusCode,
				LatencyMs:  float64(latency.Microseconds()) / 1000,
				TraceID:    traceID,
				TimestampF: start.UTC().Format(time.RFC3339Nano),
			}
			if ring != nil {
				ring.Append(rec)
			}
			if log != nil {
				log.WithContext(ctx).
					WithField("method", rec.Method).
					WithField("path", rec.Path).
					WithField("status", rec.Status).
					WithField("latency_ms", rec.LatencyMs).
					Info("request handled")
			}
		})
	}
}

// operationHint extracts a human-readable handler identifier for the log
// record: the JSON dialect's X-Amz-Target or the query dialect's Action
// form field, when present.
func operationHint(r *http.Request) string {
	if target := r.Header.Get("X-Amz-Target"); target != "" {
		return target
	}
	if action := r.FormValue("Action"); action != "" {
		return action
	}
	return ""
}
