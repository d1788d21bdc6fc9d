package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
)

const (
	cleanupAttempts = 3
	cleanupBackoff  = 200 * time.Millisecond
)

// DirectoryCleaner removes directories left empty by deletions. Implementations
// must be idempotent.
type DirectoryCleaner interface {
	CleanupEmptyDirectories(ctx context.Context) (int, error)
}

// GroupStats summarises one group. TotalSize counts Active records only.
type GroupStats struct {
	GroupID      int64 `json:"group_id"`
	ActiveCount  int64 `json:"active_count"`
	DeletedCount int64 `json:"deleted_count"`
	TotalSize    int64 `json:"total_size"`
}

// GlobalStats summarises every group. TotalFiles and TotalSize include Deleted
// records because their bytes still occupy storage; ActiveFiles and ActiveSize
// equal the sums of GroupStats over all groups.
type GlobalStats struct {
	TotalGroups  int64 `json:"total_groups"`
	TotalFiles   int64 `json:"total_files"`
	TotalSize    int64 `json:"total_size"`
	ActiveFiles  int64 `json:"active_files"`
	DeletedFiles int64 `json:"deleted_files"`
	ActiveSize   int64 `json:"active_size"`
}

// StorageAccountant derives statistics from current lifecycle state on every call.
type StorageAccountant struct {
	literature repository.LiteratureRepository
	gate       *AuthorizationGate
	cleaner    DirectoryCleaner
	backoff    time.Duration
	instrument
}

func NewStorageAccountant(literature repository.LiteratureRepository, gate *AuthorizationGate, cleaner DirectoryCleaner, events EventPublisher, logger *zap.Logger) *StorageAccountant {
	return &StorageAccountant{
		literature: literature,
		gate:       gate,
		cleaner:    cleaner,
		backoff:    cleanupBackoff,
		instrument: newInstrument(logger, events),
	}
}

// GroupStats requires membership in the group.
func (a *StorageAccountant) GroupStats(ctx context.Context, actorID, groupID int64) (GroupStats, error) {
	ctx, span := a.startSpan(ctx, "StorageAccountant.GroupStats")
	defer span.End()

	if _, err := a.gate.Authorize(ctx, actorID, groupID, domain.RoleMember); err != nil {
		return GroupStats{}, err
	}
	usage, err := a.literature.GroupUsage(ctx, groupID)
	if err != nil {
		return GroupStats{}, fail(span, storageErr("group usage", err))
	}
	return groupStatsFromUsage(usage), nil
}

// GlobalStats aggregates every group, including groups with no literature.
func (a *StorageAccountant) GlobalStats(ctx context.Context) (GlobalStats, error) {
	ctx, span := a.startSpan(ctx, "StorageAccountant.GlobalStats")
	defer span.End()

	usages, err := a.literature.UsageByGroup(ctx)
	if err != nil {
		return GlobalStats{}, fail(span, storageErr("usage by group", err))
	}

	stats := GlobalStats{TotalGroups: int64(len(usages))}
	for _, u := range usages {
		g := groupStatsFromUsage(u)
		stats.ActiveFiles += g.ActiveCount
		stats.DeletedFiles += g.DeletedCount
		stats.ActiveSize += g.TotalSize
		stats.TotalSize += u.ActiveBytes + u.DeletedBytes
	}
	stats.TotalFiles = stats.ActiveFiles + stats.DeletedFiles
	return stats, nil
}

// CleanupEmptyDirectories delegates to the storage collaborator, retrying
// failures since the operation is idempotent.
func (a *StorageAccountant) CleanupEmptyDirectories(ctx context.Context) (int, error) {
	ctx, span := a.startSpan(ctx, "StorageAccountant.CleanupEmptyDirectories")
	defer span.End()

	if a.cleaner == nil {
		return 0, nil
	}

	var (
		removed int
		lastErr error
	)
	for attempt := 1; attempt <= cleanupAttempts; attempt++ {
		n, err := a.cleaner.CleanupEmptyDirectories(ctx)
		removed += n
		if err == nil {
			a.audit("storage.cleanup", "removed", removed, "attempts", attempt)
			a.publish(ctx, domain.Event{
				Type:       domain.EventStorageCleanupRun,
				Attributes: map[string]string{"removed": strconv.Itoa(removed)},
			})
			return removed, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		a.log().Warn("storage cleanup failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < cleanupAttempts {
			select {
			case <-ctx.Done():
				return removed, ctx.Err()
			case <-time.After(a.backoff * time.Duration(attempt)):
			}
		}
	}
	return removed, fail(span, storageErr("cleanup empty directories", lastErr))
}

func groupStatsFromUsage(u domain.GroupUsage) GroupStats {
	return GroupStats{
		GroupID:      u.GroupID,
		ActiveCount:  u.ActiveCount,
		DeletedCount: u.DeletedCount,
		TotalSize:    u.ActiveBytes,
	}
}

// WithRetryBackoff overrides the base delay between cleanup attempts.
func (a *StorageAccountant) WithRetryBackoff(d time.Duration) *StorageAccountant {
	a.backoff = d
	return a
}
