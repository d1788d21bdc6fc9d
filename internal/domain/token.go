package domain

import "time"

// RefreshToken persists one link of a rotating refresh token chain.
// Only the SHA-256 hash of the opaque token value is stored.
type RefreshToken struct {
	ID        int64
	FamilyID  string
	TokenHash string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// SigningKey stores the HMAC key used for access tokens.
type SigningKey struct {
	ID        int64
	KID       string
	Secret    []byte
	Algorithm string
	IsActive  bool
	CreatedAt time.Time
}
