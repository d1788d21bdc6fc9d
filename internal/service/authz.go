package service

import (
	"context"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
)

// Action is something a user attempts on a literature record.
type Action string

const (
	ActionView    Action = "view"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

func (a Action) mutating() bool {
	return a == ActionDelete || a == ActionRestore
}

// AuthorizationGate decides group and resource access from memberships alone.
type AuthorizationGate struct {
	memberships repository.MembershipReader
}

func NewAuthorizationGate(memberships repository.MembershipReader) *AuthorizationGate {
	return &AuthorizationGate{memberships: memberships}
}

// Using returns a gate that reads memberships from members, typically the
// reader of an open transaction.
func (g *AuthorizationGate) Using(members repository.MembershipReader) *AuthorizationGate {
	if members == nil {
		return g
	}
	return &AuthorizationGate{memberships: members}
}

// Authorize returns the caller's membership when it satisfies required.
func (g *AuthorizationGate) Authorize(ctx context.Context, userID, groupID int64, required domain.Role) (domain.Membership, error) {
	m, err := g.memberships.GetMembership(ctx, userID, groupID)
	if err != nil {
		if isNotFound(err) {
			return domain.Membership{}, domain.ErrNotMember
		}
		return domain.Membership{}, storageErr("load membership", err)
	}
	if !m.Role.AtLeast(required) {
		return domain.Membership{}, domain.ErrInsufficientRole
	}
	return m, nil
}

// AuthorizeResourceAction allows viewing to any member. Delete and restore are
// allowed to group admins and to the member who uploaded the record.
func (g *AuthorizationGate) AuthorizeResourceAction(ctx context.Context, userID int64, lit domain.Literature, action Action) error {
	m, err := g.Authorize(ctx, userID, lit.GroupID, domain.RoleMember)
	if err != nil {
		return err
	}
	if !action.mutating() {
		return nil
	}
	if m.Role.AtLeast(domain.RoleAdmin) || lit.UploaderID == userID {
		return nil
	}
	return domain.ErrInsufficientRole
}
