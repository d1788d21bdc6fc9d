package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/adapter/cache"
	"github.com/smallbiznis/litshare/internal/adapter/events"
	"github.com/smallbiznis/litshare/internal/config"
	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/jwt"
	"github.com/smallbiznis/litshare/internal/repository/memory"
	"github.com/smallbiznis/litshare/internal/service"
	"github.com/smallbiznis/litshare/internal/telemetry"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	cfg    config.Config
	clock  *testClock
	node   *snowflake.Node
	events *events.Recorder

	users    *memory.Users
	groups   *memory.Groups
	lits     *memory.Literature
	tokens   *memory.Tokens
	attempts *cache.MemoryAttemptStore

	credentials *service.CredentialStore
	tokenSvc    *service.TokenService
	gate        *service.AuthorizationGate
	lifecycle   *service.LiteratureLifecycle
	accountant  *service.StorageAccountant
	groupSvc    *service.GroupService
	auth        *service.AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		cfg: config.Config{
			AccessTokenTTL:    30 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			RefreshTokenBytes: 32,
			PasswordMinLength: 8,
			LoginMaxAttempts:  3,
			LoginLockout:      15 * time.Minute,
			JWTIssuer:         "litshare-test",
			AdminUsernames:    []string{"admin"},
		},
		clock:    &testClock{now: time.Now().UTC().Truncate(time.Second)},
		node:     node,
		events:   events.NewRecorder(256),
		users:    memory.NewUsers(),
		groups:   memory.NewGroups(),
		tokens:   memory.NewTokens(),
		attempts: cache.NewMemoryAttemptStore(),
	}
	h.lits = memory.NewLiterature(h.groups)
	h.lits.Clock = h.clock.Now
	h.groups.Clock = h.clock.Now
	h.attempts.WithClock(h.clock.Now)

	logger := zap.NewNop()
	metrics := telemetry.NewMetrics()
	generator := jwt.NewGenerator(jwt.NewKeyManager(memory.NewKeys(), node), h.cfg.AccessTokenTTL, h.cfg.JWTIssuer).
		WithClock(h.clock.Now)

	h.credentials = service.NewCredentialStore(h.users, h.attempts, node, h.cfg, h.events, metrics, logger)
	h.tokenSvc = service.NewTokenService(h.tokens, generator, node, h.cfg, h.events, metrics, logger).WithClock(h.clock.Now)
	h.gate = service.NewAuthorizationGate(h.groups)
	h.lifecycle = service.NewLiteratureLifecycle(h.lits, h.gate, nil, node, h.events, metrics, logger)
	h.accountant = service.NewStorageAccountant(h.lits, h.gate, nil, h.events, logger)
	h.groupSvc = service.NewGroupService(h.groups, h.groups, h.gate, node, h.events, logger)
	h.auth = service.NewAuthService(h.credentials, h.tokenSvc, logger)
	return h
}

// seedUser inserts a user directly, skipping password hashing.
func (h *harness) seedUser(t *testing.T, username string) int64 {
	t.Helper()
	u, err := h.users.Create(context.Background(), domain.User{
		ID:       h.node.Generate().Int64(),
		Username: username,
		Phone:    "phone-" + username,
	})
	require.NoError(t, err)
	return u.ID
}

func (h *harness) seedGroup(t *testing.T, adminID int64) domain.Group {
	t.Helper()
	g, err := h.groupSvc.Create(context.Background(), adminID, "Lab", "University")
	require.NoError(t, err)
	return g
}

func (h *harness) addMember(t *testing.T, groupID, userID int64, role domain.Role) {
	t.Helper()
	require.NoError(t, h.groups.AddMembership(context.Background(), domain.Membership{UserID: userID, GroupID: groupID, Role: role}))
}

func (h *harness) upload(t *testing.T, actorID, groupID int64, title string, size int64) domain.Literature {
	t.Helper()
	lit, err := h.lifecycle.Register(context.Background(), actorID, service.NewLiterature{
		GroupID:    groupID,
		Title:      title,
		StorageRef: "group/" + title + ".pdf",
		SizeBytes:  size,
	})
	require.NoError(t, err)
	// Distinct creation times keep list ordering deterministic.
	h.clock.Advance(time.Second)
	return lit
}

func ids(items []domain.Literature) []int64 {
	out := make([]int64, 0, len(items))
	for _, l := range items {
		out = append(out, l.ID)
	}
	return out
}
