package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/litshare/internal/domain"
)

// Generator is responsible for signing and validating access tokens.
type Generator struct {
	keys      *KeyManager
	accessTTL time.Duration
	issuer    string
	now       func() time.Time
}

// NewGenerator constructs a JWT generator.
func NewGenerator(manager *KeyManager, accessTTL time.Duration, issuer string) *Generator {
	return &Generator{
		keys:      manager,
		accessTTL: accessTTL,
		issuer:    issuer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source used for issuing and validating.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// AccessTokenClaims represent the custom part of the access token payload.
type AccessTokenClaims struct {
	FamilyID string `json:"fid,omitempty"`
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    int64
	FamilyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// GenerateAccessToken produces a signed JWT for userID and returns it with its expiry.
func (g *Generator) GenerateAccessToken(ctx context.Context, userID int64, familyID string) (string, time.Time, error) {
	key, err := g.keys.EnsureSigningKey(ctx)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ensure signing key: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new signer: %w", err)
	}

	now := g.now()
	expiresAt := now.Add(g.accessTTL)
	stdClaims := gojwt.Claims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(expiresAt),
		NotBefore: gojwt.NewNumericDate(now),
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(AccessTokenClaims{FamilyID: familyID}).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize jwt: %w", err)
	}

	return token, expiresAt, nil
}

// ValidateAccessToken verifies signature, issuer and expiry. Expired tokens map to
// domain.ErrTokenExpired; anything else wrong with the token maps to
// domain.ErrTokenInvalid.
func (g *Generator) ValidateAccessToken(ctx context.Context, token string) (Claims, error) {
	key, err := g.keys.EnsureSigningKey(ctx)
	if err != nil {
		return Claims{}, fmt.Errorf("load key: %w", err)
	}

	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.SignatureAlgorithm(key.Algorithm)})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", domain.ErrTokenInvalid)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
		return Claims{}, fmt.Errorf("verify token: %w", domain.ErrTokenInvalid)
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: g.issuer, Time: g.now()}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return Claims{}, fmt.Errorf("validate claims: %w", domain.ErrTokenExpired)
		}
		return Claims{}, fmt.Errorf("validate claims: %w", domain.ErrTokenInvalid)
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Claims{}, fmt.Errorf("subject: %w", domain.ErrTokenInvalid)
	}
	if std.Expiry == nil || std.IssuedAt == nil {
		return Claims{}, fmt.Errorf("missing time claims: %w", domain.ErrTokenInvalid)
	}

	return Claims{
		UserID:    userID,
		FamilyID:  custom.FamilyID,
		IssuedAt:  std.IssuedAt.Time(),
		ExpiresAt: std.Expiry.Time(),
	}, nil
}
