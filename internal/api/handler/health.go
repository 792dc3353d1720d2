package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
)

// Pinger is any dependency with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports ok when every named dependency answers its ping.
// A failed check is reported as degraded with a 503.
func NewHealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		healthy := true
		for name, p := range deps {
			checks[name] = "ok"
			if err := p.Ping(ctx); err != nil {
				checks[name] = "degraded"
				healthy = false
			}
		}

		body := map[string]any{"status": "ok", "checks": checks}
		if !healthy {
			body["status"] = "degraded"
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED", "One or more dependencies are unavailable", body)
			return
		}
		response.JSON(w, body)
	}
}
