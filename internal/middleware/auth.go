package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/utils"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// Context keys set by AuthRequired for downstream handlers.
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// bearerToken extracts the token from an Authorization header, or "" when the
// header is absent or not a bearer scheme.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthRequired validates the access token and loads its claims into the
// request context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// requireRole aborts with 403 unless the authenticated role is one of the
// allowed ones. Runs after AuthRequired.
func requireRole(message string, allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, ok := range allowed {
			if role == ok {
				c.Next()
				return
			}
		}
		response.Forbidden(c, message)
		c.Abort()
	}
}

// AdminRequired restricts a route to administrators.
func AdminRequired() gin.HandlerFunc {
	return requireRole("admin access required", models.RoleAdmin)
}

// ApproverRequired restricts a route to roles that may approve responses.
func ApproverRequired() gin.HandlerFunc {
	return requireRole("approver access required", models.RoleRiskAnalyst, models.RoleAdmin)
}

// GetUserID returns the authenticated user id, or 0 outside AuthRequired.
func GetUserID(c *gin.Context) uint {
	if id, ok := c.Get(ContextUserID); ok {
		return id.(uint)
	}
	return 0
}

// GetUsername returns the authenticated username, or "".
func GetUsername(c *gin.Context) string {
	if username, ok := c.Get(ContextUsername); ok {
		return username.(string)
	}
	return ""
}

// GetRole returns the authenticated role, or "".
func GetRole(c *gin.Context) string {
	if role, ok := c.Get(ContextRole); ok {
		return role.(string)
	}
	return ""
}
