package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/litshare/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("repository: conflict")
)

// UserRepository persists user identities.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByPhone(ctx context.Context, phone string) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}

// GroupRepository persists research groups and their memberships.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group domain.Group, owner domain.Membership) (domain.Group, error)
	GetGroup(ctx context.Context, groupID int64) (domain.Group, error)
	GetGroupByInviteCode(ctx context.Context, code string) (domain.Group, error)
	CountGroups(ctx context.Context) (int64, error)
	ListGroupsForUser(ctx context.Context, userID int64) ([]domain.Group, error)
}

// MembershipReader looks up a single membership.
type MembershipReader interface {
	GetMembership(ctx context.Context, userID, groupID int64) (domain.Membership, error)
}

// MembershipRepository is the only source of authorization decisions.
type MembershipRepository interface {
	MembershipReader
	AddMembership(ctx context.Context, membership domain.Membership) error
	RemoveMembership(ctx context.Context, userID, groupID int64) error
	ListMembers(ctx context.Context, groupID int64) ([]domain.Membership, error)
}

// TransitionFunc inspects the locked current row and returns the row to write.
// members reads memberships inside the same unit that holds the row lock.
// Returning an error aborts the transition without writing.
type TransitionFunc func(current domain.Literature, members MembershipReader) (domain.Literature, error)

// LiteratureRepository persists literature rows. Rows are never hard deleted.
type LiteratureRepository interface {
	Create(ctx context.Context, lit domain.Literature) (domain.Literature, error)
	Get(ctx context.Context, litID int64) (domain.Literature, error)
	// Transition locks the row, runs fn and writes its result atomically.
	Transition(ctx context.Context, litID int64, fn TransitionFunc) (domain.Literature, error)
	ListByState(ctx context.Context, groupID int64, state domain.LiteratureState) ([]domain.Literature, error)
	GroupUsage(ctx context.Context, groupID int64) (domain.GroupUsage, error)
	UsageByGroup(ctx context.Context) ([]domain.GroupUsage, error)
}

// RotateCheck validates the locked current refresh token before it is consumed.
// Returning an error aborts the rotation.
type RotateCheck func(current domain.RefreshToken) error

// TokenRepository persists refresh token families.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error)
	GetByHash(ctx context.Context, tokenHash string) (domain.RefreshToken, error)
	// Rotate locks the token with tokenHash, runs check, marks it consumed and
	// inserts next in the same family and for the same user, all in one unit.
	// The current row is returned even when check fails.
	Rotate(ctx context.Context, tokenHash string, next domain.RefreshToken, check RotateCheck) (domain.RefreshToken, domain.RefreshToken, error)
	// RevokeFamily marks every token of the family consumed and returns how many
	// were still unconsumed.
	RevokeFamily(ctx context.Context, userID int64, familyID string) (int64, error)
	// RevokeUser marks every token of every family of userID consumed.
	RevokeUser(ctx context.Context, userID int64) (int64, error)
}

// KeyRepository stores access token signing keys.
type KeyRepository interface {
	GetActiveKey(ctx context.Context) (domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}

// LoginAttemptStore counts failed logins per identifier inside a sliding window.
type LoginAttemptStore interface {
	Failures(ctx context.Context, key string) (int, error)
	// RecordFailure increments the counter, starting the window on the first
	// failure, and returns the new count.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
