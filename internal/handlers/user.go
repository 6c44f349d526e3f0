package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/middleware"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/utils"
	"github.com/aravindsuri/dqagent/pkg/response"
)

const badRoleMessage = "invalid role, must be 'market_team', 'risk_analyst' or 'admin'"

// UserHandler manages accounts. Only local accounts are created here; LDAP
// accounts appear on first login.
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// userPathID parses the :id param, answering 400 itself on garbage.
func userPathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return 0, false
	}
	return uint(id), true
}

// notSelf blocks admins from changing their own account through the user
// admin endpoints; the profile endpoints exist for that.
func notSelf(c *gin.Context, id uint, verb string) bool {
	if id == middleware.GetUserID(c) {
		response.BadRequest(c, "cannot "+verb+" your own account")
		return false
	}
	return true
}

func userFilters(c *gin.Context) func(*gorm.DB) *gorm.DB {
	username := c.Query("username")
	role := c.Query("role")
	authType := c.Query("auth_type")
	country := strings.ToUpper(strings.TrimSpace(c.Query("country")))
	return func(q *gorm.DB) *gorm.DB {
		if username != "" {
			q = q.Where("username LIKE ?", "%"+username+"%")
		}
		if role != "" {
			q = q.Where("role = ?", role)
		}
		if authType != "" {
			q = q.Where("auth_type = ?", authType)
		}
		if country != "" {
			q = q.Where("country = ?", country)
		}
		return q
	}
}

// List returns a filtered page of accounts.
// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := h.db.Model(&models.User{}).Scopes(userFilters(c))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		response.ServerError(c, "failed to list users")
		return
	}

	var users []models.User
	if err := query.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		response.ServerError(c, "failed to list users")
		return
	}

	response.Success(c, gin.H{
		"items":     users,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Country  string `json:"country"`
}

// Create adds a local account.
// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if req.Role == "" {
		req.Role = models.RoleMarketTeam
	}
	if !models.ValidRole(req.Role) {
		response.BadRequest(c, badRoleMessage)
		return
	}

	var count int64
	h.db.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
	if count > 0 {
		response.Error(c, response.NewConflict("username already exists"))
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.ServerError(c, "failed to hash password")
		return
	}

	user := models.User{
		Username: req.Username,
		Password: hash,
		FullName: req.FullName,
		Email:    req.Email,
		Role:     req.Role,
		Country:  strings.ToUpper(strings.TrimSpace(req.Country)),
		AuthType: "local",
		IsActive: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		response.ServerError(c, "failed to create user")
		return
	}

	response.Created(c, user)
}

type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	FullName *string `json:"full_name"`
	Country  *string `json:"country"`
}

// Update patches role, active flag, name or market of another account.
// PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := userPathID(c)
	if !ok {
		return
	}
	if !notSelf(c, id, "modify") {
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		response.NotFound(c, "user not found")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	updates := make(map[string]interface{})
	if req.Role != nil {
		if !models.ValidRole(*req.Role) {
			response.BadRequest(c, badRoleMessage)
			return
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Country != nil {
		updates["country"] = strings.ToUpper(strings.TrimSpace(*req.Country))
	}
	if len(updates) == 0 {
		response.BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		response.ServerError(c, "failed to update user")
		return
	}

	h.db.First(&user, id)
	response.Success(c, user)
}

// Delete soft-deletes an account so its name stays on past responses.
// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := userPathID(c)
	if !ok {
		return
	}
	if !notSelf(c, id, "delete") {
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		response.NotFound(c, "user not found")
		return
	}

	if err := h.db.Delete(&user).Error; err != nil {
		response.ServerError(c, "failed to delete user")
		return
	}

	response.Success(c, gin.H{"message": "user deleted"})
}
