package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// DashboardHandler serves the cross-market overview page.
type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{dashboard: services.NewDashboardService(db)}
}

// GetStats returns cross-market questionnaire statistics.
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	var req services.DashboardStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.dashboard.GetStats(&req)
	if err != nil {
		response.ServerError(c, "failed to compute dashboard stats")
		return
	}
	response.Success(c, resp)
}
