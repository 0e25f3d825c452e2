package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/api/response"
	"github.com/kiranshivaraju/pulseboard/internal/auth"
)

// QuotaCounter consumes one unit of a user's daily allowance.
type QuotaCounter interface {
	Consume(ctx context.Context, userID uuid.UUID) (auth.Usage, error)
}

// Quota gates expensive endpoints behind the per-user daily search quota.
type Quota struct {
	counter QuotaCounter
}

func NewQuota(c QuotaCounter) *Quota {
	return &Quota{counter: c}
}

// Enforce counts the request against the authenticated user's quota and
// rejects it with 429 once the day's allowance is spent.
func (q *Quota) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Authentication required", nil)
			return
		}

		usage, err := q.counter.Consume(r.Context(), userID)
		switch {
		case errors.Is(err, auth.ErrQuotaExceeded):
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(usage.ResetsAt).Seconds())))
			response.Error(w, http.StatusTooManyRequests,
				"QUOTA_EXCEEDED", "Daily search quota exceeded", usage)
			return
		case err != nil:
			// Fail open like the rate limiter.
			slog.Warn("quota check failed", "user_id", userID, "error", err)
		default:
			w.Header().Set("X-Quota-Limit", strconv.Itoa(usage.Limit))
			w.Header().Set("X-Quota-Remaining", strconv.Itoa(usage.Remaining))
		}

		next.ServeHTTP(w, r)
	})
}
