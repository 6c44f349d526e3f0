package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// providerTestTimeout bounds the round trip of the connectivity probe.
const providerTestTimeout = 30 * time.Second

// ProviderHandler administers the provider chain. All routes sit behind the
// admin middleware.
type ProviderHandler struct {
	providerService *services.AIProviderService
	aiService       *services.AIService
}

func NewProviderHandler(db *gorm.DB, cfg *config.Config) *ProviderHandler {
	return &ProviderHandler{
		providerService: services.NewAIProviderService(db),
		aiService:       services.NewAIService(db, &cfg.AI),
	}
}

func providerPathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid provider id")
		return 0, false
	}
	return uint(id), true
}

// writeProviderError maps service failures onto status codes. Unknown
// provider names are a caller mistake, not a server fault.
func writeProviderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownProvider):
		response.BadRequest(c, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(c, "provider not found")
	default:
		response.ServerError(c, "failed to save provider")
	}
}

// List returns providers in chain order.
// GET /api/providers
func (h *ProviderHandler) List(c *gin.Context) {
	var req services.ProviderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.providerService.List(&req)
	if err != nil {
		response.ServerError(c, "failed to list providers")
		return
	}
	response.Success(c, resp)
}

// GetByID returns one provider config.
// GET /api/providers/:id
func (h *ProviderHandler) GetByID(c *gin.Context) {
	id, ok := providerPathID(c)
	if !ok {
		return
	}

	provider, err := h.providerService.GetByID(id)
	if err != nil {
		response.NotFound(c, "provider not found")
		return
	}
	response.Success(c, provider)
}

// Create adds a provider to the chain.
// POST /api/providers
func (h *ProviderHandler) Create(c *gin.Context) {
	var req services.CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	provider, err := h.providerService.Create(&req)
	if err != nil {
		writeProviderError(c, err)
		return
	}
	response.Created(c, provider)
}

// Update applies a partial update to a provider.
// PUT /api/providers/:id
func (h *ProviderHandler) Update(c *gin.Context) {
	id, ok := providerPathID(c)
	if !ok {
		return
	}

	var req services.UpdateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	provider, err := h.providerService.Update(id, &req)
	if err != nil {
		writeProviderError(c, err)
		return
	}
	response.Success(c, provider)
}

// Delete removes a provider from the chain.
// DELETE /api/providers/:id
func (h *ProviderHandler) Delete(c *gin.Context) {
	id, ok := providerPathID(c)
	if !ok {
		return
	}

	if err := h.providerService.Delete(id); err != nil {
		writeProviderError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "provider deleted successfully"})
}

// GetActive returns the providers the chain will try, in order.
// GET /api/providers/active
func (h *ProviderHandler) GetActive(c *gin.Context) {
	providers, err := h.providerService.GetActive()
	if err != nil {
		response.ServerError(c, "failed to list providers")
		return
	}
	response.Success(c, providers)
}

// Test sends a minimal prompt through one provider and reports the reply.
// POST /api/providers/:id/test
func (h *ProviderHandler) Test(c *gin.Context) {
	id, ok := providerPathID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), providerTestTimeout)
	defer cancel()

	reply, err := h.aiService.TestProvider(ctx, id)
	if err != nil {
		response.Error(c, response.NewBadGateway("provider test failed: "+err.Error()))
		return
	}
	response.Success(c, gin.H{"reply": reply})
}
