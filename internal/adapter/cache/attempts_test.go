package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/litshare/internal/adapter/cache"
)

func TestMemoryAttemptStoreWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := cache.NewMemoryAttemptStore().WithClock(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		n, err := store.RecordFailure(ctx, "13800138001", time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	n, err := store.Failures(ctx, "13800138001")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	now = now.Add(time.Minute)
	n, err = store.Failures(ctx, "13800138001")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = store.RecordFailure(ctx, "alice", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "alice"))
	n, err = store.Failures(ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}
