package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-mic/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Wrap adds permissive CORS and turns handler panics into a 500 JSON body.
func Wrap(next http.Handler, logger *slog.Logger) http.Handler {
	return withCORS(withRecover(next, logger))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRecover(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("unhandled panic",
				slog.String("path", r.URL.Path),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
				Error:   protocol.MsgInternalError,
				Message: fmt.Sprint(rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPMetrics(logger *slog.Logger) *httpMetrics {
	meter := otel.Meter("github.com/loqalabs/loqa-mic/ingest")
	m := &httpMetrics{}
	var err error
	if m.requests, err = meter.Int64Counter("loqa_mic_http_requests",
		metric.WithDescription("HTTP requests by endpoint and status")); err != nil {
		logger.Warn("failed to create http request counter", slogError(err))
	}
	if m.duration, err = meter.Float64Histogram("loqa_mic_http_request_duration",
		metric.WithUnit("s"),
		metric.WithDescription("HTTP request latency")); err != nil {
		logger.Warn("failed to create http latency histogram", slogError(err))
	}
	return m
}

func (m *httpMetrics) record(ctx context.Context, method, endpoint string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// withMetrics wraps an HTTP handler with metrics collection.
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)
		s.metrics.record(r.Context(), r.Method, endpoint, ww.statusCode, time.Since(start))
		if ww.statusCode >= 500 {
			s.logger.Warn("request failed", slog.String("endpoint", endpoint), slog.Int("status", ww.statusCode))
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
