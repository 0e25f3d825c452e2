package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/cache"
)

var ErrQuotaExceeded = errors.New("daily search quota exceeded")

// Usage is a user's search count for the current UTC day.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Quota counts searches per user per UTC day.
type Quota struct {
	cache cache.Cache
	limit int
	now   func() time.Time
}

// NewQuota creates a Quota allowing limit searches per day.
func NewQuota(c cache.Cache, limit int) *Quota {
	return &Quota{cache: c, limit: limit, now: time.Now}
}

// Consume counts one search for userID. It returns ErrQuotaExceeded once the
// day's limit has been used up; the returned Usage is valid either way.
func (q *Quota) Consume(ctx context.Context, userID uuid.UUID) (Usage, error) {
	now := q.now().UTC()
	reset := nextMidnight(now)

	// The key expires a little after the day ends so a late increment
	// cannot leave a counter without a TTL.
	count, err := q.cache.IncrWithExpiry(ctx, cache.QuotaKey(userID, now), reset.Sub(now)+time.Minute)
	if err != nil {
		return Usage{}, fmt.Errorf("counting search: %w", err)
	}

	u := q.usage(int(count), reset)
	if int(count) > q.limit {
		return u, ErrQuotaExceeded
	}
	return u, nil
}

// Usage reports the current count without consuming anything.
func (q *Quota) Usage(ctx context.Context, userID uuid.UUID) (Usage, error) {
	now := q.now().UTC()
	count, err := q.cache.GetCount(ctx, cache.QuotaKey(userID, now))
	if err != nil {
		return Usage{}, fmt.Errorf("loading quota: %w", err)
	}
	return q.usage(int(count), nextMidnight(now)), nil
}

func (q *Quota) usage(count int, reset time.Time) Usage {
	used := count
	if used > q.limit {
		used = q.limit
	}
	return Usage{
		Used:      used,
		Limit:     q.limit,
		Remaining: q.limit - used,
		ResetsAt:  reset,
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
