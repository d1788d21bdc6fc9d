package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
	"github.com/smallbiznis/litshare/internal/repository/memory"
)

func TestUsersUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUsers()

	_, err := users.Create(ctx, domain.User{ID: 1, Username: "alice", Phone: "13800138001"})
	require.NoError(t, err)

	_, err = users.Create(ctx, domain.User{ID: 2, Username: "alice", Phone: "13800138002"})
	require.ErrorIs(t, err, repository.ErrConflict)

	_, err = users.Create(ctx, domain.User{ID: 3, Username: "bob", Phone: "13800138001"})
	require.ErrorIs(t, err, repository.ErrConflict)

	// Usernames and phones collide across kinds.
	_, err = users.Create(ctx, domain.User{ID: 4, Username: "13800138001", Phone: "13900000000"})
	require.ErrorIs(t, err, repository.ErrConflict)
	_, err = users.Create(ctx, domain.User{ID: 5, Username: "dave", Phone: "alice"})
	require.ErrorIs(t, err, repository.ErrConflict)

	byPhone, err := users.GetByPhone(ctx, "13800138001")
	require.NoError(t, err)
	require.Equal(t, int64(1), byPhone.ID)

	_, err = users.GetByUsername(ctx, "carol")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGroupsMemberships(t *testing.T) {
	ctx := context.Background()
	groups := memory.NewGroups()

	g, err := groups.CreateGroup(ctx, domain.Group{ID: 10, Name: "Lab", InviteCode: "abc"},
		domain.Membership{UserID: 1, Role: domain.RoleAdmin})
	require.NoError(t, err)

	owner, err := groups.GetMembership(ctx, 1, g.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, owner.Role)

	require.NoError(t, groups.AddMembership(ctx, domain.Membership{UserID: 2, GroupID: g.ID, Role: domain.RoleMember}))
	require.ErrorIs(t, groups.AddMembership(ctx, domain.Membership{UserID: 2, GroupID: g.ID, Role: domain.RoleMember}), repository.ErrConflict)
	require.ErrorIs(t, groups.AddMembership(ctx, domain.Membership{UserID: 2, GroupID: 99, Role: domain.RoleMember}), repository.ErrNotFound)

	members, err := groups.ListMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	require.NoError(t, groups.RemoveMembership(ctx, 2, g.ID))
	_, err = groups.GetMembership(ctx, 2, g.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)

	byCode, err := groups.GetGroupByInviteCode(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, g.ID, byCode.ID)
}

func TestLiteratureTransitionSerializes(t *testing.T) {
	ctx := context.Background()
	groups := memory.NewGroups()
	_, err := groups.CreateGroup(ctx, domain.Group{ID: 1, InviteCode: "x"}, domain.Membership{UserID: 1, Role: domain.RoleAdmin})
	require.NoError(t, err)

	lits := memory.NewLiterature(groups)
	_, err = lits.Create(ctx, domain.Literature{ID: 5, GroupID: 1, SizeBytes: 100, UploaderID: 1})
	require.NoError(t, err)

	errAlreadyDeleted := errors.New("already deleted")
	softDelete := func(current domain.Literature, _ repository.MembershipReader) (domain.Literature, error) {
		if current.State() == domain.StateDeleted {
			return domain.Literature{}, errAlreadyDeleted
		}
		now := time.Now()
		current.DeletedAt = &now
		return current, nil
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lits.Transition(ctx, 5, softDelete)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, errAlreadyDeleted) {
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, rejected)

	usage, err := lits.GroupUsage(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.GroupUsage{GroupID: 1, DeletedCount: 1, DeletedBytes: 100}, usage)
}

func TestLiteratureTransitionCancelledLeavesRow(t *testing.T) {
	groups := memory.NewGroups()
	_, err := groups.CreateGroup(context.Background(), domain.Group{ID: 1, InviteCode: "x"}, domain.Membership{UserID: 1, Role: domain.RoleAdmin})
	require.NoError(t, err)
	lits := memory.NewLiterature(groups)
	_, err = lits.Create(context.Background(), domain.Literature{ID: 5, GroupID: 1, SizeBytes: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = lits.Transition(ctx, 5, func(current domain.Literature, _ repository.MembershipReader) (domain.Literature, error) {
		cancel()
		now := time.Now()
		current.DeletedAt = &now
		return current, nil
	})
	require.ErrorIs(t, err, context.Canceled)

	got, err := lits.Get(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, domain.StateActive, got.State())
}

func TestUsageByGroupIncludesEmptyGroups(t *testing.T) {
	ctx := context.Background()
	groups := memory.NewGroups()
	for _, id := range []int64{1, 2} {
		_, err := groups.CreateGroup(ctx, domain.Group{ID: id, InviteCode: string(rune('a' + id))}, domain.Membership{UserID: 1, Role: domain.RoleAdmin})
		require.NoError(t, err)
	}
	lits := memory.NewLiterature(groups)
	_, err := lits.Create(ctx, domain.Literature{ID: 7, GroupID: 1, SizeBytes: 42})
	require.NoError(t, err)
	_, err = lits.Create(ctx, domain.Literature{ID: 8, GroupID: 3, SizeBytes: 1})
	require.ErrorIs(t, err, repository.ErrNotFound)

	usage, err := lits.UsageByGroup(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.GroupUsage{
		{GroupID: 1, ActiveCount: 1, ActiveBytes: 42},
		{GroupID: 2},
	}, usage)
}

func TestTokensRotate(t *testing.T) {
	ctx := context.Background()
	tokens := memory.NewTokens()
	now := time.Now()

	_, err := tokens.Create(ctx, domain.RefreshToken{ID: 1, FamilyID: "fam", TokenHash: "h1", UserID: 9, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	pass := func(domain.RefreshToken) error { return nil }
	current, next, err := tokens.Rotate(ctx, "h1", domain.RefreshToken{ID: 2, TokenHash: "h2", IssuedAt: now.Add(time.Second), ExpiresAt: now.Add(time.Hour)}, pass)
	require.NoError(t, err)
	require.False(t, current.Consumed)
	require.Equal(t, "fam", next.FamilyID)
	require.Equal(t, int64(9), next.UserID)

	stored, err := tokens.GetByHash(ctx, "h1")
	require.NoError(t, err)
	require.True(t, stored.Consumed)

	errStop := errors.New("stop")
	current, _, err = tokens.Rotate(ctx, "h1", domain.RefreshToken{ID: 3, TokenHash: "h3"}, func(domain.RefreshToken) error { return errStop })
	require.ErrorIs(t, err, errStop)
	require.True(t, current.Consumed)

	_, _, err = tokens.Rotate(ctx, "missing", domain.RefreshToken{}, pass)
	require.ErrorIs(t, err, repository.ErrNotFound)

	revoked, err := tokens.RevokeFamily(ctx, 9, "fam")
	require.NoError(t, err)
	require.Equal(t, int64(1), revoked)
	for _, tok := range tokens.Family("fam") {
		require.True(t, tok.Consumed)
	}
}

func TestKeysSingleActive(t *testing.T) {
	ctx := context.Background()
	keys := memory.NewKeys()

	_, err := keys.GetActiveKey(ctx)
	require.ErrorIs(t, err, repository.ErrNotFound)

	created, err := keys.CreateKey(ctx, domain.SigningKey{ID: 1, KID: "k1", Secret: []byte("s")})
	require.NoError(t, err)
	require.True(t, created.IsActive)

	_, err = keys.CreateKey(ctx, domain.SigningKey{ID: 2, KID: "k2"})
	require.ErrorIs(t, err, repository.ErrConflict)
}
