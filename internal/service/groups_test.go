package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/litshare/internal/domain"
)

func TestCreateAndJoinGroup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	owner := h.seedUser(t, "owner")
	student := h.seedUser(t, "student")

	group, err := h.groupSvc.Create(ctx, owner, "  Vision Lab ", "University")
	require.NoError(t, err)
	require.Equal(t, "Vision Lab", group.Name)
	require.Len(t, group.InviteCode, 16)

	_, err = h.groupSvc.Join(ctx, student, "not-a-code")
	require.ErrorIs(t, err, domain.ErrInvalidInviteCode)

	joined, err := h.groupSvc.Join(ctx, student, group.InviteCode)
	require.NoError(t, err)
	require.Equal(t, group.ID, joined.ID)

	_, err = h.groupSvc.Join(ctx, student, group.InviteCode)
	require.ErrorIs(t, err, domain.ErrDuplicateMembership)

	members, err := h.groupSvc.Members(ctx, student, group.ID)
	require.NoError(t, err)
	roles := map[int64]domain.Role{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	require.Equal(t, map[int64]domain.Role{owner: domain.RoleAdmin, student: domain.RoleMember}, roles)

	groups, err := h.groupSvc.ListForUser(ctx, student)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, group.ID, groups[0].ID)
}

func TestCreateGroupRequiresName(t *testing.T) {
	h := newHarness(t)
	owner := h.seedUser(t, "owner")

	_, err := h.groupSvc.Create(context.Background(), owner, " ", "")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	owner := h.seedUser(t, "owner")
	alice := h.seedUser(t, "alice")
	bob := h.seedUser(t, "bob")
	outsider := h.seedUser(t, "outsider")
	group := h.seedGroup(t, owner)
	h.addMember(t, group.ID, alice, domain.RoleMember)
	h.addMember(t, group.ID, bob, domain.RoleMember)

	require.ErrorIs(t, h.groupSvc.RemoveMember(ctx, alice, group.ID, bob), domain.ErrInsufficientRole)
	require.ErrorIs(t, h.groupSvc.RemoveMember(ctx, outsider, group.ID, bob), domain.ErrNotMember)
	require.ErrorIs(t, h.groupSvc.RemoveMember(ctx, owner, group.ID, outsider), domain.ErrUserNotFound)

	require.NoError(t, h.groupSvc.RemoveMember(ctx, alice, group.ID, alice))
	require.NoError(t, h.groupSvc.RemoveMember(ctx, owner, group.ID, bob))

	_, err := h.gate.Authorize(ctx, bob, group.ID, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrNotMember)

	members, err := h.groupSvc.Members(ctx, owner, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
}
