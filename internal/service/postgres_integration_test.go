//go:build integration

package service_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/adapter/cache"
	"github.com/smallbiznis/litshare/internal/adapter/events"
	"github.com/smallbiznis/litshare/internal/config"
	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/jwt"
	"github.com/smallbiznis/litshare/internal/repository"
	"github.com/smallbiznis/litshare/internal/service"
)

type pgServices struct {
	credentials *service.CredentialStore
	tokens      *service.TokenService
	lifecycle   *service.LiteratureLifecycle
	accountant  *service.StorageAccountant
	groups      *service.GroupService
}

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return setupDBWithMaxConns(t, 0)
}

// setupDBWithMaxConns caps the pool when maxConns is positive.
func setupDBWithMaxConns(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL must be set for integration tests")
	}

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(dbURL)
	require.NoError(t, err)
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE refresh_tokens, literature, group_memberships, research_groups, users, signing_keys`)
	require.NoError(t, err)
	return pool
}

func newPGServices(t *testing.T, pool *pgxpool.Pool) pgServices {
	t.Helper()

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	cfg := config.Config{
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		RefreshTokenBytes: 32,
		PasswordMinLength: 8,
		LoginMaxAttempts:  5,
		LoginLockout:      time.Minute,
		JWTIssuer:         "litshare-it",
	}
	logger := zap.NewExample()
	publisher := events.Nop{}

	groups := repository.NewPostgresGroupRepo(pool)
	lits := repository.NewPostgresLiteratureRepo(pool)
	gate := service.NewAuthorizationGate(groups)
	generator := jwt.NewGenerator(jwt.NewKeyManager(repository.NewPostgresKeyRepo(pool), node), cfg.AccessTokenTTL, cfg.JWTIssuer)

	return pgServices{
		credentials: service.NewCredentialStore(repository.NewPostgresUserRepo(pool), cache.NewMemoryAttemptStore(), node, cfg, publisher, nil, logger),
		tokens:      service.NewTokenService(repository.NewPostgresTokenRepo(pool), generator, node, cfg, publisher, nil, logger),
		lifecycle:   service.NewLiteratureLifecycle(lits, gate, nil, node, publisher, nil, logger),
		accountant:  service.NewStorageAccountant(lits, gate, nil, publisher, logger),
		groups:      service.NewGroupService(groups, groups, gate, node, publisher, logger),
	}
}

func TestPostgresLifecycle_Integration(t *testing.T) {
	ctx := context.Background()
	svc := newPGServices(t, setupDB(t))

	owner, err := svc.credentials.Register(ctx, "owner", "13800000001", "secret1234")
	require.NoError(t, err)
	_, err = svc.credentials.Register(ctx, "owner", "13800000002", "secret1234")
	require.ErrorIs(t, err, domain.ErrDuplicateUser)
	_, err = svc.credentials.Register(ctx, "13800000001", "13800000009", "secret1234")
	require.ErrorIs(t, err, domain.ErrDuplicateUser)

	group, err := svc.groups.Create(ctx, owner, "Lab", "Uni")
	require.NoError(t, err)

	lit, err := svc.lifecycle.Register(ctx, owner, service.NewLiterature{GroupID: group.ID, Title: "Paper", StorageRef: "lab/p.pdf", SizeBytes: 300})
	require.NoError(t, err)

	before, err := svc.accountant.GroupStats(ctx, owner, group.ID)
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.lifecycle.SoftDelete(ctx, lit.ID, owner, "dup")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			require.True(t, errors.Is(err, domain.ErrInvalidStateTransition), err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)

	mid, err := svc.accountant.GroupStats(ctx, owner, group.ID)
	require.NoError(t, err)
	require.Equal(t, before.TotalSize-300, mid.TotalSize)

	restored, err := svc.lifecycle.Restore(ctx, lit.ID, owner)
	require.NoError(t, err)
	require.Equal(t, "dup", *restored.DeleteReason)

	after, err := svc.accountant.GroupStats(ctx, owner, group.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)

	global, err := svc.accountant.GlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, after.TotalSize, global.ActiveSize)
}

func TestPostgresRefreshRotation_Integration(t *testing.T) {
	ctx := context.Background()
	svc := newPGServices(t, setupDB(t))

	userID, err := svc.credentials.Register(ctx, "alice", "13800000003", "secret1234")
	require.NoError(t, err)

	pair, err := svc.tokens.IssuePair(ctx, userID)
	require.NoError(t, err)

	const callers = 6
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.tokens.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, domain.ErrTokenReuseDetected)
	}
	require.Equal(t, 1, successes)

	_, err = svc.tokens.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, domain.ErrTokenReuseDetected)
}

func TestPostgresTransitionsBeyondPoolSize_Integration(t *testing.T) {
	const maxConns = 2
	svc := newPGServices(t, setupDBWithMaxConns(t, maxConns))
	ctx := context.Background()

	owner, err := svc.credentials.Register(ctx, "owner", "13800000004", "secret1234")
	require.NoError(t, err)
	group, err := svc.groups.Create(ctx, owner, "Lab", "Uni")
	require.NoError(t, err)

	const records = maxConns * 4
	ids := make([]int64, 0, records)
	for i := 0; i < records; i++ {
		lit, err := svc.lifecycle.Register(ctx, owner, service.NewLiterature{GroupID: group.ID, Title: "Paper", StorageRef: "lab/p.pdf", SizeBytes: 10})
		require.NoError(t, err)
		ids = append(ids, lit.ID)
	}

	// Each transition must finish on its own connection well before the deadline.
	deadline, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	errs := make([]error, records)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.lifecycle.SoftDelete(deadline, id, owner, "bulk")
		}(i, id)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stats, err := svc.accountant.GroupStats(ctx, owner, group.ID)
	require.NoError(t, err)
	require.Equal(t, int64(records), stats.DeletedCount)
	require.Zero(t, stats.ActiveCount)
}
