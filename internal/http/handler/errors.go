package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/domain"
)

type errorMapping struct {
	target      error
	status      int
	code        string
	description string
}

var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_request", "The request is missing or has invalid fields."},
	{domain.ErrWeakPassword, http.StatusBadRequest, "weak_password", "The password does not meet the password policy."},
	{domain.ErrDuplicateUser, http.StatusConflict, "duplicate_user", "The username or phone is already registered."},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials."},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts", "Too many failed attempts. Try again later."},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found."},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "The token has expired."},
	{domain.ErrTokenInvalid, http.StatusUnauthorized, "token_invalid", "The token is invalid."},
	// Checked before storage errors: a reuse whose family revocation failed
	// matches both.
	{domain.ErrTokenReuseDetected, http.StatusUnauthorized, "token_reuse_detected", "The refresh token was already used. Sign in again."},
	{domain.ErrNotMember, http.StatusForbidden, "not_member", "You are not a member of this group."},
	{domain.ErrInsufficientRole, http.StatusForbidden, "insufficient_role", "Your role does not allow this action."},
	{domain.ErrGroupNotFound, http.StatusNotFound, "group_not_found", "Group not found."},
	{domain.ErrInvalidInviteCode, http.StatusNotFound, "invalid_invite_code", "The invite code is not valid."},
	{domain.ErrDuplicateMembership, http.StatusConflict, "duplicate_membership", "You are already a member of this group."},
	{domain.ErrLiteratureNotFound, http.StatusNotFound, "literature_not_found", "Literature not found."},
	{domain.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition", "The literature is not in a state that allows this action."},
}

// statusFor maps a service error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	m := lookupMapping(err)
	return m.status, m.code
}

func lookupMapping(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: "server_error", description: "Internal server error."}
}

// respondError writes the error body with the fixed description of its code.
// Error text never reaches the client; failures involving storage are logged.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	m := lookupMapping(err)
	if m.status == http.StatusInternalServerError || errors.Is(err, domain.ErrStorageIO) {
		if logger == nil {
			logger = zap.L()
		}
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Int("status", m.status),
			zap.Error(err),
		)
	}
	c.JSON(m.status, gin.H{"error": m.code, "error_description": m.description})
}

func badRequest(c *gin.Context, description string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": description})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name+".")
		return 0, false
	}
	return id, true
}
