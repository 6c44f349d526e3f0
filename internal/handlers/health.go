package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
)

// HealthHandler reports subsystem status for probes and the admin UI.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems. Unhealthy
// responses carry a 503 so load balancers can act on the status code
// without parsing the body.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	dbStatus, dbOK := databaseStatus()

	overall, code := "healthy", http.StatusOK
	if !dbOK {
		overall, code = "unhealthy", http.StatusServiceUnavailable
	}

	var activeCount int64
	models.GetDB().Model(&models.Questionnaire{}).
		Where("status = ?", models.QuestionnaireActive).
		Count(&activeCount)

	c.JSON(code, gin.H{
		"status":  overall,
		"service": "dqagent",
		"components": gin.H{
			"database":              dbStatus,
			"queue_mode":            queueMode(),
			"worker":                workerState(),
			"sse_clients":           services.GetEventHub().ClientCount(),
			"active_questionnaires": activeCount,
		},
	})
}

func databaseStatus() (string, bool) {
	sqlDB, err := models.GetDB().DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		return "error: " + err.Error(), false
	}
	return "ok", true
}

func queueMode() string {
	if q := services.GetTaskQueue(); q != nil && q.IsAsync() {
		return "async (Redis)"
	}
	return "sync"
}

// workerState distinguishes "no worker because Redis is off" from a worker
// that exists but is not consuming.
func workerState() string {
	w := services.GetWorker()
	switch {
	case w == nil:
		return "off"
	case w.Running():
		return "running"
	default:
		return "stopped"
	}
}

// Welcome is the unauthenticated landing endpoint.
// GET /api/welcome
func Welcome(c *gin.Context) {
	c.JSON(200, gin.H{
		"service": "dqagent",
		"message": "Data-quality questionnaire API. See /api/health for status.",
	})
}
