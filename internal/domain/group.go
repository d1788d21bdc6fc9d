package domain

import (
	"strings"
	"time"
)

// Group is a research group that owns literature.
type Group struct {
	ID          int64
	Name        string
	Institution string
	InviteCode  string
	CreatedAt   time.Time
}

// Role is a member's role inside a group.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes a stored or user supplied role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleMember:
		return RoleMember, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Rank orders roles; unknown roles rank below member.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// AtLeast reports whether r satisfies the required role.
func (r Role) AtLeast(required Role) bool {
	return r.Rank() >= required.Rank()
}

// Membership links a user to a group with a role.
type Membership struct {
	UserID    int64
	GroupID   int64
	Role      Role
	CreatedAt time.Time
}
