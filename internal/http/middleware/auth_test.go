package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/litshare/internal/domain"
	"github.com/smallbiznis/litshare/internal/jwt"
)

type stubAuth struct {
	tokens map[string]jwt.Claims
	admins map[int64]bool
	err    error
}

func (s stubAuth) ValidateToken(_ context.Context, token string) (jwt.Claims, error) {
	if s.err != nil {
		return jwt.Claims{}, s.err
	}
	claims, ok := s.tokens[token]
	if !ok {
		return jwt.Claims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (s stubAuth) IsPlatformAdmin(_ context.Context, userID int64) (bool, error) {
	return s.admins[userID], nil
}

func newAuthRouter(auth *Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", auth.ValidateJWT, func(c *gin.Context) {
		userID, _ := UserID(c)
		claims, _ := GetAccessClaims(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "family_id": claims.FamilyID})
	})
	r.GET("/admin", auth.ValidateJWT, auth.RequirePlatformAdmin, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestValidateJWT(t *testing.T) {
	stub := stubAuth{tokens: map[string]jwt.Claims{"good": {UserID: 7, FamilyID: "fam"}}}
	r := newAuthRouter(NewAuth(stub, stub))

	rec := serve(r, "/me", "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user_id":7,"family_id":"fam"}`, rec.Body.String())

	rec = serve(r, "/me", "bearer good")
	require.Equal(t, http.StatusOK, rec.Code)

	for _, header := range []string{"", "good", "Basic good", "Bearer ", "Bearer bad"} {
		rec := serve(r, "/me", header)
		require.Equal(t, http.StatusUnauthorized, rec.Code, header)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "token_invalid", body["error"])
	}
}

func TestValidateJWTExpired(t *testing.T) {
	stub := stubAuth{err: errors.Join(domain.ErrTokenExpired)}
	r := newAuthRouter(NewAuth(stub, stub))

	rec := serve(r, "/me", "Bearer old")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "token_expired")
}

func TestRequirePlatformAdmin(t *testing.T) {
	stub := stubAuth{
		tokens: map[string]jwt.Claims{"admin": {UserID: 1}, "user": {UserID: 2}},
		admins: map[int64]bool{1: true},
	}
	r := newAuthRouter(NewAuth(stub, stub))

	require.Equal(t, http.StatusNoContent, serve(r, "/admin", "Bearer admin").Code)
	require.Equal(t, http.StatusForbidden, serve(r, "/admin", "Bearer user").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/admin", "").Code)
}
