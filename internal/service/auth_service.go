package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/jwt"
)

// TokenResponse matches OAuth token responses. The legacy form login returns it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthService composes credentials and tokens into the login surfaces. The JSON
// REST flow and the legacy form flow both go through it.
type AuthService struct {
	credentials *CredentialStore
	tokens      *TokenService
	instrument
}

// NewAuthService wires dependencies.
func NewAuthService(credentials *CredentialStore, tokens *TokenService, logger *zap.Logger) *AuthService {
	return &AuthService{
		credentials: credentials,
		tokens:      tokens,
		instrument:  newInstrument(logger, nil),
	}
}

// PasswordGrant authenticates with a phone number or username and password.
func (s *AuthService) PasswordGrant(ctx context.Context, identifier, password string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.PasswordGrant")
	defer span.End()

	pair, _, err := s.login(ctx, identifier, password)
	if err != nil {
		return nil, fail(span, err)
	}
	return s.tokenResponse(pair), nil
}

// RefreshGrant rotates the refresh token and issues a new access token.
func (s *AuthService) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.RefreshGrant")
	defer span.End()

	pair, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, fail(span, err)
	}
	return s.tokenResponse(pair), nil
}

// ValidateToken proxies to the token service.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (jwt.Claims, error) {
	return s.tokens.VerifyAccess(ctx, token)
}

// IsPlatformAdmin reports whether userID may use the storage administration routes.
func (s *AuthService) IsPlatformAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.credentials.IsPlatformAdmin(ctx, userID)
}

func (s *AuthService) login(ctx context.Context, identifier, password string) (TokenPair, domain.User, error) {
	userID, err := s.credentials.Verify(ctx, identifier, password)
	if err != nil {
		return TokenPair{}, domain.User{}, err
	}
	user, err := s.credentials.User(ctx, userID)
	if err != nil {
		return TokenPair{}, domain.User{}, fmt.Errorf("load user profile: %w", err)
	}
	pair, err := s.tokens.IssuePair(ctx, userID)
	if err != nil {
		return TokenPair{}, domain.User{}, err
	}
	s.audit("password.login.success", "user_id", userID)
	return pair, user, nil
}

func (s *AuthService) tokenResponse(pair TokenPair) *TokenResponse {
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn(s.tokenClock()),
	}
}

func (s *AuthService) tokenClock() time.Time {
	return s.tokens.clock()
}
