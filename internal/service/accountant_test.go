package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/service"
)

type flakyCleaner struct {
	failures int32
	calls    atomic.Int32
	removed  int
}

func (c *flakyCleaner) CleanupEmptyDirectories(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.calls.Add(1) <= c.failures {
		return 0, errors.New("disk busy")
	}
	return c.removed, nil
}

func TestGroupStatsRequiresMembership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	owner := h.seedUser(t, "owner")
	outsider := h.seedUser(t, "outsider")
	group := h.seedGroup(t, owner)

	stats, err := h.accountant.GroupStats(ctx, owner, group.ID)
	require.NoError(t, err)
	require.Equal(t, service.GroupStats{GroupID: group.ID}, stats)

	_, err = h.accountant.GroupStats(ctx, outsider, group.ID)
	require.ErrorIs(t, err, domain.ErrNotMember)
}

func TestGlobalStatsMatchesGroupStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	owner := h.seedUser(t, "owner")
	lab := h.seedGroup(t, owner)
	other := h.seedGroup(t, owner)
	h.seedGroup(t, owner) // empty group still counts

	h.upload(t, owner, lab.ID, "a", 100)
	gone := h.upload(t, owner, lab.ID, "b", 40)
	h.upload(t, owner, other.ID, "c", 7)

	_, err := h.lifecycle.SoftDelete(ctx, gone.ID, owner, "duplicate")
	require.NoError(t, err)

	labStats, err := h.accountant.GroupStats(ctx, owner, lab.ID)
	require.NoError(t, err)
	require.Equal(t, service.GroupStats{GroupID: lab.ID, ActiveCount: 1, DeletedCount: 1, TotalSize: 100}, labStats)

	otherStats, err := h.accountant.GroupStats(ctx, owner, other.ID)
	require.NoError(t, err)

	global, err := h.accountant.GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, service.GlobalStats{
		TotalGroups:  3,
		TotalFiles:   3,
		TotalSize:    147,
		ActiveFiles:  2,
		DeletedFiles: 1,
		ActiveSize:   107,
	}, global)
	require.Equal(t, labStats.TotalSize+otherStats.TotalSize, global.ActiveSize)
}

func TestCleanupRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	cleaner := &flakyCleaner{failures: 2, removed: 4}
	accountant := service.NewStorageAccountant(h.lits, h.gate, cleaner, h.events, zap.NewNop()).
		WithRetryBackoff(time.Millisecond)

	removed, err := accountant.CleanupEmptyDirectories(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, removed)
	require.Equal(t, int32(3), cleaner.calls.Load())
}

func TestCleanupGivesUpAfterRetries(t *testing.T) {
	h := newHarness(t)
	cleaner := &flakyCleaner{failures: 10}
	accountant := service.NewStorageAccountant(h.lits, h.gate, cleaner, h.events, zap.NewNop()).
		WithRetryBackoff(time.Millisecond)

	_, err := accountant.CleanupEmptyDirectories(context.Background())
	require.ErrorIs(t, err, domain.ErrStorageIO)
	require.Equal(t, int32(3), cleaner.calls.Load())
}

func TestCleanupNothingToDo(t *testing.T) {
	h := newHarness(t)

	removed, err := h.accountant.CleanupEmptyDirectories(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)

	accountant := service.NewStorageAccountant(h.lits, h.gate, &flakyCleaner{}, h.events, zap.NewNop())
	removed, err = accountant.CleanupEmptyDirectories(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
}
