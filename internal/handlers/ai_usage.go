package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// AIUsageHandler exposes provider call statistics to admins. All endpoints
// accept optional start_date/end_date (YYYY-MM-DD, end inclusive).
type AIUsageHandler struct {
	usage *services.AIUsageService
}

func NewAIUsageHandler(db *gorm.DB) *AIUsageHandler {
	return &AIUsageHandler{usage: services.NewAIUsageService(db)}
}

func usageRange(c *gin.Context) (string, string) {
	return c.Query("start_date"), c.Query("end_date")
}

// GetStats returns aggregated provider call statistics.
// GET /api/ai-usage/stats
func (h *AIUsageHandler) GetStats(c *gin.Context) {
	start, end := usageRange(c)
	stats, err := h.usage.GetStats(start, end, c.Query("country"))
	if err != nil {
		response.ServerError(c, "failed to get AI usage stats")
		return
	}
	response.Success(c, stats)
}

// GetDailyTrend returns daily provider call counts for charting.
// GET /api/ai-usage/trend
func (h *AIUsageHandler) GetDailyTrend(c *gin.Context) {
	start, end := usageRange(c)
	trend, err := h.usage.GetDailyTrend(start, end, c.Query("country"))
	if err != nil {
		response.ServerError(c, "failed to get AI usage trend")
		return
	}
	response.Success(c, trend)
}

// GetProviderBreakdown returns provider calls grouped by provider and model.
// GET /api/ai-usage/providers
func (h *AIUsageHandler) GetProviderBreakdown(c *gin.Context) {
	start, end := usageRange(c)
	providers, err := h.usage.GetProviderBreakdown(start, end)
	if err != nil {
		response.ServerError(c, "failed to get provider breakdown")
		return
	}
	response.Success(c, providers)
}
