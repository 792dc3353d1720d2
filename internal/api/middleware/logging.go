package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestInfo is filled in by inner middleware so the access log can report
// who called after the handler chain has returned.
type requestInfo struct {
	client string
}

const requestInfoKey contextKey = "request_info"

func noteClient(ctx context.Context, name string) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.client = name
	}
}

// Logger writes one access log line per request. Server errors log at error
// level and client errors at warn.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if info.client != "" {
			attrs = append(attrs, "client", info.client)
		}
		if traceID := traceIDFromHeader(rec.Header().Get("traceparent")); traceID != "" {
			attrs = append(attrs, "trace_id", traceID)
		}
		slog.Log(r.Context(), level, "request", attrs...)
	})
}

// traceIDFromHeader extracts the trace id from a W3C traceparent value.
func traceIDFromHeader(tp string) string {
	parts := strings.Split(tp, "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	return parts[1]
}
