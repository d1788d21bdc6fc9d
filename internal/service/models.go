package service

import (
	"time"

	"github.com/smallbiznis/litshare/internal/domain"
)

// AuthTokensWithUser bundles a token pair with user profile metadata.
type AuthTokensWithUser struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         UserViewModel `json:"user"`
}

// UserViewModel represents lightweight user profile data returned to clients.
type UserViewModel struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupViewModel is a research group as returned to its members.
type GroupViewModel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Institution string    `json:"institution,omitempty"`
	InviteCode  string    `json:"invite_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MemberViewModel is one membership row.
type MemberViewModel struct {
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// LiteratureViewModel exposes a record with its derived state and audit trail.
type LiteratureViewModel struct {
	ID           int64      `json:"id"`
	GroupID      int64      `json:"group_id"`
	Title        string     `json:"title"`
	StorageRef   string     `json:"storage_ref"`
	SizeBytes    int64      `json:"size_bytes"`
	UploaderID   int64      `json:"uploader_id"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at"`
	DeletedBy    *int64     `json:"deleted_by"`
	DeleteReason *string    `json:"delete_reason"`
	RestoredAt   *time.Time `json:"restored_at"`
	RestoredBy   *int64     `json:"restored_by"`
}

func NewUserViewModel(user domain.User) UserViewModel {
	return UserViewModel{
		ID:        user.ID,
		Username:  user.Username,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
	}
}

// NewGroupViewModel hides the invite code unless withInvite is set.
func NewGroupViewModel(group domain.Group, withInvite bool) GroupViewModel {
	view := GroupViewModel{
		ID:          group.ID,
		Name:        group.Name,
		Institution: group.Institution,
		CreatedAt:   group.CreatedAt,
	}
	if withInvite {
		view.InviteCode = group.InviteCode
	}
	return view
}

func NewMemberViewModels(members []domain.Membership) []MemberViewModel {
	out := make([]MemberViewModel, 0, len(members))
	for _, m := range members {
		out = append(out, MemberViewModel{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.CreatedAt})
	}
	return out
}

func NewLiteratureViewModel(lit domain.Literature) LiteratureViewModel {
	return LiteratureViewModel{
		ID:           lit.ID,
		GroupID:      lit.GroupID,
		Title:        lit.Title,
		StorageRef:   lit.StorageRef,
		SizeBytes:    lit.SizeBytes,
		UploaderID:   lit.UploaderID,
		State:        string(lit.State()),
		CreatedAt:    lit.CreatedAt,
		DeletedAt:    lit.DeletedAt,
		DeletedBy:    lit.DeletedBy,
		DeleteReason: lit.DeleteReason,
		RestoredAt:   lit.RestoredAt,
		RestoredBy:   lit.RestoredBy,
	}
}

func NewLiteratureViewModels(items []domain.Literature) []LiteratureViewModel {
	out := make([]LiteratureViewModel, 0, len(items))
	for _, lit := range items {
		out = append(out, NewLiteratureViewModel(lit))
	}
	return out
}
