package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/jwt"
)

const (
	userIDKey = "userID"
	claimsKey = "accessClaims"
)

// TokenValidator verifies bearer access tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.Claims, error)
}

// AdminChecker reports whether a user is a platform administrator.
type AdminChecker interface {
	IsPlatformAdmin(ctx context.Context, userID int64) (bool, error)
}

// Auth validates the Authorization header and attaches the caller's identity.
type Auth struct {
	Tokens TokenValidator
	Admins AdminChecker
}

func NewAuth(tokens TokenValidator, admins AdminChecker) *Auth {
	return &Auth{Tokens: tokens, Admins: admins}
}

// ValidateJWT ensures the request has a valid bearer token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Bearer token required."})
		return
	}

	claims, err := m.Tokens.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		code, desc := "token_invalid", "Invalid access token."
		if errors.Is(err, domain.ErrTokenExpired) {
			code, desc = "token_expired", "Access token expired."
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "error_description": desc})
		return
	}
	c.Set(userIDKey, claims.UserID)
	c.Set(claimsKey, claims)
	c.Next()
}

// RequirePlatformAdmin must run after ValidateJWT.
func (m *Auth) RequirePlatformAdmin(c *gin.Context) {
	userID, ok := UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_invalid", "error_description": "Authentication required."})
		return
	}
	admin, err := m.Admins.IsPlatformAdmin(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}
	if !admin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient_role", "error_description": "Platform administrator required."})
		return
	}
	c.Next()
}

// UserID returns the authenticated caller.
func UserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

// GetAccessClaims exposes the validated access token claims to handlers.
func GetAccessClaims(c *gin.Context) (jwt.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return jwt.Claims{}, false
	}
	claims, ok := value.(jwt.Claims)
	return claims, ok
}
