package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/middleware"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

type PromptHandler struct {
	service *services.PromptService
}

func NewPromptHandler(db *gorm.DB) *PromptHandler {
	return &PromptHandler{
		service: services.NewPromptService(db),
	}
}

// promptID parses the :id route parameter. The bool reports whether a
// response was already written.
func promptID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid template id")
		return 0, false
	}
	return uint(id), true
}

func (h *PromptHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	var isSystem *bool
	if raw := c.Query("is_system"); raw != "" {
		val := raw == "true"
		isSystem = &val
	}

	result, err := h.service.List(services.PromptListParams{
		Page:     page,
		PageSize: pageSize,
		Name:     c.Query("name"),
		IsSystem: isSystem,
	})
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, result)
}

func (h *PromptHandler) GetByID(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}

	prompt, err := h.service.GetByID(id)
	if err != nil {
		response.NotFound(c, "template not found")
		return
	}
	response.Success(c, prompt)
}

func (h *PromptHandler) GetDefault(c *gin.Context) {
	prompt, err := h.service.GetDefault()
	if err != nil {
		response.NotFound(c, "no default template configured")
		return
	}
	response.Success(c, prompt)
}

func (h *PromptHandler) GetAllActive(c *gin.Context) {
	prompts, err := h.service.GetAllActive()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, prompts)
}

func (h *PromptHandler) Create(c *gin.Context) {
	var prompt models.PromptTemplate
	if err := c.ShouldBindJSON(&prompt); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	prompt.CreatedBy = middleware.GetUserID(c)

	if err := h.service.Create(&prompt); err != nil {
		if errors.Is(err, services.ErrInvalidTemplate) {
			response.BadRequest(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Created(c, prompt)
}

func (h *PromptHandler) Update(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.Update(id, updates); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidTemplate):
			response.BadRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c, "template not found")
		default:
			response.ServerError(c, err.Error())
		}
		return
	}
	response.Success(c, gin.H{"id": id})
}

func (h *PromptHandler) Delete(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(id); err != nil {
		switch {
		case errors.Is(err, services.ErrSystemPrompt):
			response.Forbidden(c, "system templates cannot be deleted")
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c, "template not found")
		default:
			response.ServerError(c, err.Error())
		}
		return
	}
	response.Success(c, gin.H{"id": id})
}

func (h *PromptHandler) SetDefault(c *gin.Context) {
	id, ok := promptID(c)
	if !ok {
		return
	}

	if err := h.service.SetDefault(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "template not found")
			return
		}
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"id": id})
}
