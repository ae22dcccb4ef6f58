package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/config"
	"github.com/rebolloluis/family-tree/internal/middleware"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/response"
	"gorm.io/gorm"
)

type AuthHandler struct {
	authService *services.AuthService
	ldapEnabled bool
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: services.NewAuthService(db, &cfg.JWT, &cfg.LDAP),
		ldapEnabled: cfg.LDAP.Enabled,
	}
}

type tokenResponse struct {
	Token           string       `json:"token"`
	ExpiresAt       time.Time    `json:"expires_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expires_at"`
	User            *models.User `json:"user,omitempty"`
}

func newTokenResponse(r *services.TokenPair) tokenResponse {
	return tokenResponse{
		Token:           r.AccessToken,
		ExpiresAt:       r.AccessExpireAt,
		RefreshToken:    r.RefreshToken,
		RefreshExpireAt: r.RefreshExpireAt,
		User:            r.User,
	}
}

// Register creates a local account and signs it in
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req, client(c))
	if err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			response.Error(c, response.NewConflict(err.Error()))
			return
		}
		response.Error(c, err)
		return
	}

	services.LogInfo("auth", "register", "user "+req.Username+" registered", &result.User.ID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Created(c, newTokenResponse(result))
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req, client(c))
	if errors.Is(err, services.ErrInvalidAuthType) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		services.LogWarning("auth", "login", "login failed for "+req.Username, nil, c.ClientIP(), c.Request.UserAgent(), nil)
		response.Unauthorized(c, err.Error())
		return
	}

	response.Success(c, newTokenResponse(result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, client(c))
	switch {
	case errors.Is(err, services.ErrInvalidRefreshToken),
		errors.Is(err, services.ErrRefreshTokenRevoked),
		errors.Is(err, services.ErrRefreshTokenExpired),
		errors.Is(err, services.ErrUserDisabled):
		response.Unauthorized(c, err.Error())
		return
	case err != nil:
		response.Error(c, err)
		return
	}

	response.Success(c, newTokenResponse(result))
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	response.Success(c, user)
}

// GetAuthConfig returns authentication configuration
// GET /api/auth/config
func (h *AuthHandler) GetAuthConfig(c *gin.Context) {
	response.Success(c, gin.H{
		"ldap_enabled": h.ldapEnabled,
	})
}

// Logout revokes the refresh token when one is sent. The access token
// expires on its own.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.authService.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// ChangePassword updates the password of a local account
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), middleware.GetUserID(c), &req)
	switch {
	case errors.Is(err, services.ErrWrongPassword), errors.Is(err, services.ErrNotLocalAccount):
		response.BadRequest(c, err.Error())
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "user not found")
		return
	case err != nil:
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "password changed"})
}

// CreateAdminIfNotExists creates default admin user
func (h *AuthHandler) CreateAdminIfNotExists(ctx context.Context) error {
	return h.authService.CreateAdminIfNotExists(ctx)
}

func client(c *gin.Context) services.Client {
	return services.Client{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
