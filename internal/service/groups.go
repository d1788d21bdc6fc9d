package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/repository"
)

const inviteCodeLength = 16

// GroupService manages research groups and their memberships.
type GroupService struct {
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	gate        *AuthorizationGate
	snowflake   *snowflake.Node
	instrument
}

func NewGroupService(groups repository.GroupRepository, memberships repository.MembershipRepository, gate *AuthorizationGate, node *snowflake.Node, events EventPublisher, logger *zap.Logger) *GroupService {
	return &GroupService{
		groups:      groups,
		memberships: memberships,
		gate:        gate,
		snowflake:   node,
		instrument:  newInstrument(logger, events),
	}
}

// Create makes a group with the creator as its first admin.
func (s *GroupService) Create(ctx context.Context, actorID int64, name, institution string) (domain.Group, error) {
	ctx, span := s.startSpan(ctx, "GroupService.Create")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Group{}, fmt.Errorf("group name is required: %w", domain.ErrInvalidInput)
	}

	group, err := s.groups.CreateGroup(ctx, domain.Group{
		ID:          s.snowflake.Generate().Int64(),
		Name:        name,
		Institution: strings.TrimSpace(institution),
		InviteCode:  newInviteCode(),
	}, domain.Membership{UserID: actorID, Role: domain.RoleAdmin})
	if err != nil {
		return domain.Group{}, fail(span, storageErr("create group", err))
	}

	s.audit("group.created", "group_id", group.ID, "user_id", actorID)
	s.publish(ctx, domain.Event{Type: domain.EventMembershipAdded, ActorID: actorID, GroupID: group.ID, SubjectID: actorID,
		Attributes: map[string]string{"role": string(domain.RoleAdmin)}})
	return group, nil
}

// Join adds the actor as a member of the group owning inviteCode.
func (s *GroupService) Join(ctx context.Context, actorID int64, inviteCode string) (domain.Group, error) {
	ctx, span := s.startSpan(ctx, "GroupService.Join")
	defer span.End()

	inviteCode = strings.TrimSpace(inviteCode)
	if inviteCode == "" {
		return domain.Group{}, domain.ErrInvalidInviteCode
	}
	group, err := s.groups.GetGroupByInviteCode(ctx, inviteCode)
	if err != nil {
		if isNotFound(err) {
			return domain.Group{}, domain.ErrInvalidInviteCode
		}
		return domain.Group{}, fail(span, storageErr("find group by invite code", err))
	}

	err = s.memberships.AddMembership(ctx, domain.Membership{UserID: actorID, GroupID: group.ID, Role: domain.RoleMember})
	if err != nil {
		if isConflict(err) {
			return domain.Group{}, domain.ErrDuplicateMembership
		}
		return domain.Group{}, fail(span, storageErr("add membership", err))
	}

	s.audit("group.joined", "group_id", group.ID, "user_id", actorID)
	s.publish(ctx, domain.Event{Type: domain.EventMembershipAdded, ActorID: actorID, GroupID: group.ID, SubjectID: actorID,
		Attributes: map[string]string{"role": string(domain.RoleMember)}})
	return group, nil
}

// ListForUser returns the groups the actor belongs to.
func (s *GroupService) ListForUser(ctx context.Context, actorID int64) ([]domain.Group, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, actorID)
	if err != nil {
		return nil, storageErr("list groups", err)
	}
	return groups, nil
}

// Members lists memberships of a group the actor belongs to.
func (s *GroupService) Members(ctx context.Context, actorID, groupID int64) ([]domain.Membership, error) {
	if _, err := s.gate.Authorize(ctx, actorID, groupID, domain.RoleMember); err != nil {
		return nil, err
	}
	members, err := s.memberships.ListMembers(ctx, groupID)
	if err != nil {
		return nil, storageErr("list members", err)
	}
	return members, nil
}

// RemoveMember revokes userID's membership. Group admins may remove anyone;
// members may only remove themselves. Records the user uploaded are kept.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, userID int64) error {
	ctx, span := s.startSpan(ctx, "GroupService.RemoveMember")
	defer span.End()

	required := domain.RoleAdmin
	if actorID == userID {
		required = domain.RoleMember
	}
	if _, err := s.gate.Authorize(ctx, actorID, groupID, required); err != nil {
		return err
	}

	if err := s.memberships.RemoveMembership(ctx, userID, groupID); err != nil {
		if isNotFound(err) {
			return domain.ErrUserNotFound
		}
		return fail(span, storageErr("remove membership", err))
	}

	s.audit("group.member_removed", "group_id", groupID, "user_id", userID, "actor_id", actorID)
	s.publish(ctx, domain.Event{Type: domain.EventMembershipRemoved, ActorID: actorID, GroupID: groupID, SubjectID: userID})
	return nil
}

func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:inviteCodeLength]
}
