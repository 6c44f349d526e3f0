package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/middleware"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: services.NewAuthService(db, cfg)}
}

// Login authenticates a local or directory account and issues a token pair.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Login(&req, c.ClientIP())
	if err != nil {
		writeAuthError(c, err)
		return
	}
	response.Success(c, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a refresh token and issues a new access token.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Refresh(req.RefreshToken, c.ClientIP())
	if err != nil {
		writeAuthError(c, err)
		return
	}
	response.Success(c, resp)
}

// writeAuthError keeps credential failures indistinguishable from unknown
// accounts while still surfacing a disabled account distinctly.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserDisabled):
		response.Forbidden(c, err.Error())
	default:
		response.Unauthorized(c, err.Error())
	}
}

// GetCurrentUser returns the account behind the presented access token.
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.auth.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.Success(c, user)
}

// GetAuthConfig tells the login page which authentication modes exist.
// GET /api/auth/config
func (h *AuthHandler) GetAuthConfig(c *gin.Context) {
	response.Success(c, gin.H{"ldap_enabled": h.auth.IsLDAPEnabled()})
}

// ChangePassword updates the password of a local account.
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.auth.ChangePassword(middleware.GetUserID(c), &req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, gin.H{"message": "password changed"})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented refresh token; the access token expires on its
// own.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		if err := h.auth.RevokeRefreshToken(req.RefreshToken); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// CreateAdminIfNotExists seeds the bootstrap admin account.
func (h *AuthHandler) CreateAdminIfNotExists() error {
	return h.auth.CreateAdminIfNotExists()
}
