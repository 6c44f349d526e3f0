package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

// SystemConfigHandler exposes runtime tunables, directory settings and the
// notification test endpoint to admins.
type SystemConfigHandler struct {
	cfg       *services.SystemConfigService
	scheduler *services.ReminderScheduler
	notifier  *services.NotificationService
}

func NewSystemConfigHandler(db *gorm.DB) *SystemConfigHandler {
	return &SystemConfigHandler{cfg: services.NewSystemConfigService(db)}
}

// SetScheduler lets config writes to reminder keys take effect immediately.
func (h *SystemConfigHandler) SetScheduler(s *services.ReminderScheduler) { h.scheduler = s }

// SetNotifier enables the webhook test endpoint.
func (h *SystemConfigHandler) SetNotifier(n *services.NotificationService) { h.notifier = n }

// ListByGroup returns all tunables of one config group.
// GET /api/system-config?group=generation
func (h *SystemConfigHandler) ListByGroup(c *gin.Context) {
	group := c.Query("group")
	if group == "" {
		response.BadRequest(c, "group is required")
		return
	}

	configs, err := h.cfg.GetByGroup(group)
	if err != nil {
		response.ServerError(c, "failed to list config group")
		return
	}
	response.Success(c, gin.H{"items": configs})
}

type updateConfigRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// UpdateValue sets one config key. A reminder key reschedules the running
// cron job in place.
// PUT /api/system-config
func (h *SystemConfigHandler) UpdateValue(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.cfg.Set(req.Key, req.Value); err != nil {
		response.ServerError(c, "failed to update config")
		return
	}

	if h.scheduler != nil && strings.HasPrefix(req.Key, "reminder_") {
		h.scheduler.ApplySchedule()
	}

	response.Success(c, gin.H{"key": req.Key, "value": req.Value})
}

// GetLDAPConfig returns directory settings with the bind password masked.
// GET /api/system-config/ldap
func (h *SystemConfigHandler) GetLDAPConfig(c *gin.Context) {
	response.Success(c, h.cfg.GetLDAPConfig())
}

// UpdateLDAPConfig applies a partial directory settings update.
// PUT /api/system-config/ldap
func (h *SystemConfigHandler) UpdateLDAPConfig(c *gin.Context) {
	var req services.UpdateLDAPConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.cfg.UpdateLDAPConfig(&req); err != nil {
		response.ServerError(c, "failed to update LDAP config")
		return
	}
	response.Success(c, h.cfg.GetLDAPConfig())
}

type testNotificationRequest struct {
	Name string `json:"name"`
}

// TestNotification fires a test message at the configured webhooks. With a
// name only that webhook is exercised.
// POST /api/notify/test
func (h *SystemConfigHandler) TestNotification(c *gin.Context) {
	if h.notifier == nil {
		response.Error(c, response.NewUnavailable("notifications not configured"))
		return
	}

	var req testNotificationRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.notifier.SendTest(req.Name); err != nil {
		response.Error(c, response.NewBadGateway(err.Error()))
		return
	}
	response.Success(c, gin.H{"message": "test notification sent"})
}

// RunReminders triggers a reminder sweep outside the schedule.
// POST /api/reminders/run
func (h *SystemConfigHandler) RunReminders(c *gin.Context) {
	if h.scheduler == nil {
		response.Error(c, response.NewUnavailable("scheduler not running"))
		return
	}

	go h.scheduler.RunReminders()
	response.Accepted(c, gin.H{"message": "reminder run started"})
}
