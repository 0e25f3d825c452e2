package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pulseboard/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuota(limit int, now time.Time) (*Quota, *memCache) {
	ca := newMemCache()
	q := NewQuota(ca, limit)
	q.now = func() time.Time { return now }
	return q, ca
}

func TestQuota_ConsumeUntilExceeded(t *testing.T) {
	now := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	q, ca := newTestQuota(2, now)
	userID := uuid.New()
	ctx := context.Background()

	u, err := q.Consume(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, Usage{Used: 1, Limit: 2, Remaining: 1, ResetsAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)}, u)

	u, err = q.Consume(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Remaining)

	u, err = q.Consume(ctx, userID)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 2, u.Used)
	assert.Equal(t, 0, u.Remaining)

	assert.Equal(t, 2*time.Hour+time.Minute, ca.ttls[cache.QuotaKey(userID, now)])
}

func TestQuota_PerUser(t *testing.T) {
	q, _ := newTestQuota(1, time.Now())
	ctx := context.Background()

	_, err := q.Consume(ctx, uuid.New())
	require.NoError(t, err)
	_, err = q.Consume(ctx, uuid.New())
	assert.NoError(t, err)
}

func TestQuota_NewDayResets(t *testing.T) {
	day := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	q, _ := newTestQuota(1, day)
	userID := uuid.New()
	ctx := context.Background()

	_, err := q.Consume(ctx, userID)
	require.NoError(t, err)
	_, err = q.Consume(ctx, userID)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	q.now = func() time.Time { return day.Add(2 * time.Minute) }
	_, err = q.Consume(ctx, userID)
	assert.NoError(t, err)
}

func TestQuota_UsageDoesNotConsume(t *testing.T) {
	q, _ := newTestQuota(3, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	userID := uuid.New()
	ctx := context.Background()

	u, err := q.Usage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
	assert.Equal(t, 3, u.Remaining)

	_, err = q.Consume(ctx, userID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		u, err = q.Usage(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, u.Used)
		assert.Equal(t, 2, u.Remaining)
	}
}
