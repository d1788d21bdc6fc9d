package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/config"
	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/jwt"
	"github.com/smallbiznis/litshare/internal/repository"
	"github.com/smallbiznis/litshare/internal/telemetry"
)

const revokeTimeout = 5 * time.Second

// TokenPair is the result of a login or a refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	FamilyID         string
	UserID           int64
}

// ExpiresIn returns the access token lifetime in seconds as seen from now.
func (p TokenPair) ExpiresIn(now time.Time) int64 {
	secs := int64(p.AccessExpiresAt.Sub(now).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// TokenService issues access tokens and rotates refresh token families.
type TokenService struct {
	tokens    repository.TokenRepository
	jwt       *jwt.Generator
	snowflake *snowflake.Node
	cfg       config.Config
	metrics   *telemetry.Metrics
	instrument
}

// NewTokenService wires dependencies.
func NewTokenService(tokens repository.TokenRepository, generator *jwt.Generator, node *snowflake.Node, cfg config.Config, events EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *TokenService {
	return &TokenService{
		tokens:     tokens,
		jwt:        generator,
		snowflake:  node,
		cfg:        cfg,
		metrics:    metrics,
		instrument: newInstrument(logger, events),
	}
}

// WithClock overrides the time source used for refresh token issue and expiry.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// IssuePair starts a new token family for userID.
func (s *TokenService) IssuePair(ctx context.Context, userID int64) (TokenPair, error) {
	ctx, span := s.startSpan(ctx, "TokenService.IssuePair")
	defer span.End()

	value, hash, err := s.newRefreshValue()
	if err != nil {
		return TokenPair{}, fail(span, err)
	}
	now := s.clock()
	record, err := s.tokens.Create(ctx, domain.RefreshToken{
		ID:        s.snowflake.Generate().Int64(),
		FamilyID:  uuid.NewString(),
		TokenHash: hash,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	})
	if err != nil {
		return TokenPair{}, fail(span, storageErr("persist refresh token", err))
	}

	pair, err := s.pair(ctx, record, value)
	if err != nil {
		return TokenPair{}, fail(span, err)
	}
	s.metrics.AuthEvent("issue", "success")
	s.audit("token.issued", "user_id", userID, "family_id", record.FamilyID)
	return pair, nil
}

// VerifyAccess validates an access token without touching storage.
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (jwt.Claims, error) {
	ctx, span := s.startSpan(ctx, "TokenService.VerifyAccess")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return jwt.Claims{}, domain.ErrTokenInvalid
	}
	claims, err := s.jwt.ValidateAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return jwt.Claims{}, domain.ErrTokenExpired
		}
		if errors.Is(err, domain.ErrTokenInvalid) {
			return jwt.Claims{}, domain.ErrTokenInvalid
		}
		return jwt.Claims{}, fail(span, storageErr("verify access token", err))
	}
	return claims, nil
}

// Refresh consumes refreshToken and returns a new pair in the same family.
// Presenting an already consumed token revokes the whole family and returns
// ErrTokenReuseDetected.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx, span := s.startSpan(ctx, "TokenService.Refresh")
	defer span.End()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, domain.ErrTokenInvalid
	}

	value, nextHash, err := s.newRefreshValue()
	if err != nil {
		return TokenPair{}, fail(span, err)
	}
	now := s.clock()
	next := domain.RefreshToken{
		ID:        s.snowflake.Generate().Int64(),
		TokenHash: nextHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}

	current, successor, err := s.tokens.Rotate(ctx, hashRefreshToken(refreshToken), next, func(current domain.RefreshToken) error {
		if current.Expired(now) {
			return domain.ErrTokenExpired
		}
		if current.Consumed {
			return domain.ErrTokenReuseDetected
		}
		return nil
	})
	switch {
	case err == nil:
	case isNotFound(err):
		s.metrics.AuthEvent("refresh", "invalid")
		return TokenPair{}, domain.ErrTokenInvalid
	case errors.Is(err, domain.ErrTokenExpired):
		s.metrics.AuthEvent("refresh", "expired")
		return TokenPair{}, domain.ErrTokenExpired
	case errors.Is(err, domain.ErrTokenReuseDetected):
		return TokenPair{}, fail(span, s.handleReuse(ctx, current))
	default:
		return TokenPair{}, fail(span, storageErr("rotate refresh token", err))
	}

	pair, err := s.pair(ctx, successor, value)
	if err != nil {
		return TokenPair{}, fail(span, err)
	}
	s.metrics.AuthEvent("refresh", "success")
	s.audit("token.refreshed", "user_id", successor.UserID, "family_id", successor.FamilyID)
	return pair, nil
}

// handleReuse revokes the family of a replayed token. Revocation runs even if
// the caller's request was cancelled.
func (s *TokenService) handleReuse(ctx context.Context, replayed domain.RefreshToken) error {
	s.metrics.TokenReuse()
	s.log().Warn("refresh token reuse detected",
		zap.Int64("user_id", replayed.UserID),
		zap.String("family_id", replayed.FamilyID),
	)

	revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
	defer cancel()
	revoked, err := s.tokens.RevokeFamily(revokeCtx, replayed.UserID, replayed.FamilyID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTokenReuseDetected, storageErr("revoke token family", err))
	}

	s.audit("token.reuse_detected", "user_id", replayed.UserID, "family_id", replayed.FamilyID, "revoked", revoked)
	s.publish(revokeCtx, domain.Event{
		Type:       domain.EventTokenReuseDetected,
		SubjectID:  replayed.UserID,
		Attributes: map[string]string{"family_id": replayed.FamilyID},
	})
	return domain.ErrTokenReuseDetected
}

// RevokeFamily marks every token of the family consumed.
func (s *TokenService) RevokeFamily(ctx context.Context, userID int64, familyID string) error {
	ctx, span := s.startSpan(ctx, "TokenService.RevokeFamily")
	defer span.End()

	revoked, err := s.tokens.RevokeFamily(ctx, userID, familyID)
	if err != nil {
		return fail(span, storageErr("revoke token family", err))
	}
	s.audit("token.family_revoked", "user_id", userID, "family_id", familyID, "revoked", revoked)
	s.publish(ctx, domain.Event{
		Type:       domain.EventTokenFamilyRevoked,
		ActorID:    userID,
		SubjectID:  userID,
		Attributes: map[string]string{"family_id": familyID},
	})
	return nil
}

// RevokeUser revokes every refresh token family of userID.
func (s *TokenService) RevokeUser(ctx context.Context, userID int64) error {
	ctx, span := s.startSpan(ctx, "TokenService.RevokeUser")
	defer span.End()

	revoked, err := s.tokens.RevokeUser(ctx, userID)
	if err != nil {
		return fail(span, storageErr("revoke user tokens", err))
	}
	s.audit("token.user_revoked", "user_id", userID, "revoked", revoked)
	s.publish(ctx, domain.Event{
		Type:       domain.EventTokenFamilyRevoked,
		ActorID:    userID,
		SubjectID:  userID,
		Attributes: map[string]string{"scope": "user"},
	})
	return nil
}

// RevokeByRefreshToken revokes the family that refreshToken belongs to. The token
// must belong to userID.
func (s *TokenService) RevokeByRefreshToken(ctx context.Context, userID int64, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return domain.ErrTokenInvalid
	}
	record, err := s.tokens.GetByHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		if isNotFound(err) {
			return domain.ErrTokenInvalid
		}
		return storageErr("load refresh token", err)
	}
	if record.UserID != userID {
		return domain.ErrTokenInvalid
	}
	return s.RevokeFamily(ctx, userID, record.FamilyID)
}

func (s *TokenService) pair(ctx context.Context, record domain.RefreshToken, refreshValue string) (TokenPair, error) {
	access, accessExpiry, err := s.jwt.GenerateAccessToken(ctx, record.UserID, record.FamilyID)
	if err != nil {
		return TokenPair{}, storageErr("generate access token", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshValue,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: record.ExpiresAt,
		FamilyID:         record.FamilyID,
		UserID:           record.UserID,
	}, nil
}

func (s *TokenService) newRefreshValue() (string, string, error) {
	n := s.cfg.RefreshTokenBytes
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	value := hex.EncodeToString(b)
	return value, hashRefreshToken(value), nil
}

func hashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
