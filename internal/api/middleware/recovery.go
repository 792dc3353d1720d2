package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope. Orchestrator runs
// recover on their own goroutines, so this only guards request handling.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				client, _ := GetClientName(r)
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"route", routePattern(r),
					"client", client,
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
