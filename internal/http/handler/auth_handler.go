package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/http/middleware"
	"github.com/smallbiznis/litshare/internal/service"
)

// AuthHandler serves registration, login, and token endpoints.
type AuthHandler struct {
	Auth   *service.AuthService
	Logger *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Logger: logger}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Phone    string `json:"phone" binding:"required,min=5,max=32"`
	Password string `json:"password" binding:"required,max=128"`
}

// Register creates an account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username, phone and password are required.")
		return
	}
	user, err := h.Auth.RegisterWithPassword(c.Request.Context(), req.Username, req.Phone, req.Password)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

// Login accepts either a phone number or a username.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Password is required.")
		return
	}
	identifier := strings.TrimSpace(req.Phone)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if identifier == "" {
		badRequest(c, "Phone or username is required.")
		return
	}
	resp, err := h.Auth.LoginWithPassword(c.Request.Context(), identifier, req.Password)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required.")
		return
	}
	resp, err := h.Auth.RefreshWithToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the family of the presented refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required.")
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), userID, req.RefreshToken); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Token is the form-encoded grant endpoint kept for older clients.
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		Username     string `form:"username"`
		Password     string `form:"password"`
		RefreshToken string `form:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "Invalid token request.")
		return
	}

	var (
		resp *service.TokenResponse
		err  error
	)
	switch strings.ToLower(req.GrantType) {
	case "password":
		resp, err = h.Auth.PasswordGrant(c.Request.Context(), req.Username, req.Password)
	case "refresh_token":
		resp, err = h.Auth.RefreshGrant(c.Request.Context(), req.RefreshToken)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type", "error_description": "Unsupported grant type."})
		return
	}
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	user, err := h.Auth.GetUserInfo(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,max=128"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "current_password and new_password are required.")
		return
	}
	if err := h.Auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
