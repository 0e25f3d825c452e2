package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/pulseboard/internal/api/response"
)

const defaultHealthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency. Timeout defaults to two seconds.
type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

func (c HealthCheck) run(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Check(ctx)
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. Each
// check gets its own timeout; any failure reports 503 DEGRADED with the
// per-dependency state in details.
func NewHealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := make(map[string]string, len(checks))
		degraded := false
		for _, c := range checks {
			if err := c.run(r.Context()); err != nil {
				slog.Warn("health check failed", "dependency", c.Name, "error", err)
				states[c.Name] = "degraded"
				degraded = true
				continue
			}
			states[c.Name] = "ok"
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", states)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "checks": states})
	}
}
