package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docfeedback/internal/throttle"
)

func TestSQLThrottle(t *testing.T) {
	ctx := context.Background()
	th := NewSQLThrottle(newTestDB(t), "document_feedback_")
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	throttled, err := th.IsThrottled(ctx, 42, 7)
	require.NoError(t, err)
	assert.False(t, throttled)

	require.NoError(t, th.SetThrottle(ctx, 42, 7, time.Hour))

	throttled, err = th.IsThrottled(ctx, 42, 7)
	require.NoError(t, err)
	assert.True(t, throttled)

	throttled, err = th.IsThrottled(ctx, 4, 27)
	require.NoError(t, err)
	assert.False(t, throttled, "key separator keeps pairs apart")

	left, err := th.Remaining(ctx, 42, 7)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, left)

	now = now.Add(time.Hour)
	throttled, err = th.IsThrottled(ctx, 42, 7)
	require.NoError(t, err)
	assert.False(t, throttled, "marker expires")

	left, err = th.Remaining(ctx, 42, 7)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestSQLThrottle_Overwrite(t *testing.T) {
	ctx := context.Background()
	th := NewSQLThrottle(newTestDB(t), "p_")
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	require.NoError(t, th.SetThrottle(ctx, 1, 2, time.Minute))
	now = now.Add(50 * time.Second)
	require.NoError(t, th.SetThrottle(ctx, 1, 2, time.Minute))
	now = now.Add(50 * time.Second)

	throttled, err := th.IsThrottled(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, throttled)

	assert.ErrorIs(t, th.SetThrottle(ctx, 1, 2, 0), throttle.ErrInvalidTTL)
}

func TestSQLThrottle_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	th := NewSQLThrottle(newTestDB(t), "p_")
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	require.NoError(t, th.SetThrottle(ctx, 1, 1, time.Minute))
	require.NoError(t, th.SetThrottle(ctx, 2, 2, time.Hour))

	now = now.Add(2 * time.Minute)
	n, err := th.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var keys []string
	require.NoError(t, th.db.SelectContext(ctx, &keys, `SELECT marker_key FROM throttle_markers`))
	assert.Equal(t, []string{"p_2_2"}, keys)
}
