package service

import (
	"context"

	"github.com/smallbiznis/litshare/internal/domain"
)

// RegisterWithPassword creates a user and returns its profile.
func (s *AuthService) RegisterWithPassword(ctx context.Context, username, phone, password string) (UserViewModel, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RegisterWithPassword")
	defer span.End()

	userID, err := s.credentials.Register(ctx, username, phone, password)
	if err != nil {
		return UserViewModel{}, fail(span, err)
	}
	user, err := s.credentials.User(ctx, userID)
	if err != nil {
		return UserViewModel{}, fail(span, err)
	}
	s.audit("rest.password_register.success", "user_id", userID)
	return NewUserViewModel(user), nil
}

// LoginWithPassword performs phone or username login and returns a REST-friendly payload.
func (s *AuthService) LoginWithPassword(ctx context.Context, identifier, password string) (AuthTokensWithUser, error) {
	ctx, span := s.startSpan(ctx, "AuthService.LoginWithPassword")
	defer span.End()

	pair, user, err := s.login(ctx, identifier, password)
	if err != nil {
		return AuthTokensWithUser{}, fail(span, err)
	}
	return s.newAuthTokensWithUser(user, pair), nil
}

// RefreshWithToken rotates the refresh token and returns the new pair with the
// owning user's profile.
func (s *AuthService) RefreshWithToken(ctx context.Context, refreshToken string) (AuthTokensWithUser, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RefreshWithToken")
	defer span.End()

	pair, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return AuthTokensWithUser{}, fail(span, err)
	}
	user, err := s.credentials.User(ctx, pair.UserID)
	if err != nil {
		return AuthTokensWithUser{}, fail(span, err)
	}
	return s.newAuthTokensWithUser(user, pair), nil
}

// Logout revokes the family of the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.tokens.RevokeByRefreshToken(ctx, userID, refreshToken); err != nil {
		return fail(span, err)
	}
	s.audit("rest.logout", "user_id", userID)
	return nil
}

// GetUserInfo returns the caller's profile.
func (s *AuthService) GetUserInfo(ctx context.Context, userID int64) (UserViewModel, error) {
	ctx, span := s.startSpan(ctx, "AuthService.GetUserInfo")
	defer span.End()

	user, err := s.credentials.User(ctx, userID)
	if err != nil {
		return UserViewModel{}, fail(span, err)
	}
	return NewUserViewModel(user), nil
}

// ChangePassword verifies the current password before storing the new one,
// then signs the user out of every session. Access tokens already issued stay
// valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ChangePassword")
	defer span.End()

	if err := s.credentials.ChangePassword(ctx, userID, current, next); err != nil {
		return fail(span, err)
	}
	if err := s.tokens.RevokeUser(ctx, userID); err != nil {
		return fail(span, err)
	}
	s.audit("rest.password_changed", "user_id", userID)
	return nil
}

func (s *AuthService) newAuthTokensWithUser(user domain.User, pair TokenPair) AuthTokensWithUser {
	return AuthTokensWithUser{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn(s.tokenClock()),
		User:         NewUserViewModel(user),
	}
}
