package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// SystemLogHandler exposes the admin audit log browser.
type SystemLogHandler struct {
	logs *services.SystemLogService
}

func NewSystemLogHandler(db *gorm.DB) *SystemLogHandler {
	return &SystemLogHandler{logs: services.NewSystemLogService(db)}
}

// List returns a filtered page of audit log entries.
// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.logs.List(&req)
	if err != nil {
		response.ServerError(c, "failed to list logs")
		return
	}
	response.Success(c, resp)
}

// GetModules returns the distinct module names for the filter dropdown.
// GET /api/system-logs/modules
func (h *SystemLogHandler) GetModules(c *gin.Context) {
	modules, err := h.logs.GetModules()
	if err != nil {
		response.ServerError(c, "failed to list log modules")
		return
	}
	response.Success(c, gin.H{"modules": modules})
}

// Cleanup removes logs older than the retention window now instead of waiting
// for the daily sweep.
// POST /api/system-logs/cleanup
func (h *SystemLogHandler) Cleanup(c *gin.Context) {
	retention := h.logs.GetRetentionDays()
	if retention <= 0 {
		response.Success(c, gin.H{"deleted": 0, "message": "log retention disabled"})
		return
	}

	deleted, err := h.logs.CleanupOldLogs(retention)
	if err != nil {
		response.ServerError(c, "log cleanup failed")
		return
	}
	response.Success(c, gin.H{"deleted": deleted, "retention_days": retention})
}
