package handlers

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/response"
)

var startTime = time.Now()

// CountryMetricsHandler serves the per-market dashboard tiles.
type CountryMetricsHandler struct {
	metrics *services.MetricsService
}

func NewCountryMetricsHandler(db *gorm.DB, cfg *config.Config) *CountryMetricsHandler {
	return &CountryMetricsHandler{
		metrics: services.NewMetricsService(db, cfg),
	}
}

// Get returns the metric set for one market and reporting period. Without
// ?report_date= the most recent complete month is used.
// GET /api/metrics/:country
func (h *CountryMetricsHandler) Get(c *gin.Context) {
	country := strings.ToUpper(strings.TrimSpace(c.Param("country")))
	if country == "" {
		response.BadRequest(c, "country is required")
		return
	}

	reportDate := lastCompleteMonth(time.Now().UTC())
	if raw := c.Query("report_date"); raw != "" {
		parsed, err := time.Parse(services.ReportDateLayout, raw)
		if err != nil {
			response.BadRequest(c, "report_date must be "+services.ReportDateLayout)
			return
		}
		reportDate = parsed
	}

	result, err := h.metrics.CountryMetrics(country, reportDate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.NotFound(c, fmt.Sprintf("no report for %s in the requested period", country))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// lastCompleteMonth returns the final day of the month before now, the latest
// period a monthly report can exist for.
func lastCompleteMonth(now time.Time) time.Time {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 0, -1)
}

// Metrics returns Prometheus-compatible text format metrics.
func Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "dqagent_uptime_seconds", "Time since server start in seconds", float64(time.Since(startTime).Seconds()))
	writeGauge(&b, "dqagent_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "dqagent_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "dqagent_memory_sys_bytes", "Total memory obtained from OS in bytes", float64(m.Sys))
	writeGauge(&b, "dqagent_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	// -- Database metrics --
	db := models.GetDB()
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			stats := sqlDB.Stats()
			writeGauge(&b, "dqagent_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
			writeGauge(&b, "dqagent_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
			writeGauge(&b, "dqagent_db_idle_connections", "Number of idle DB connections", float64(stats.Idle))
		}
	}

	// -- SSE metrics --
	writeGauge(&b, "dqagent_sse_active_clients", "Number of active SSE connections", float64(services.GetEventHub().ClientCount()))

	// -- Queue metrics --
	taskQueue := services.GetTaskQueue()
	queueAsync := 0.0
	if taskQueue != nil && taskQueue.IsAsync() {
		queueAsync = 1.0
	}
	writeGauge(&b, "dqagent_queue_async_enabled", "Whether async queue (Redis) is enabled (1=yes, 0=no)", queueAsync)

	// -- Questionnaire metrics --
	if db != nil {
		var total, active, completed, archived int64
		db.Model(&models.Questionnaire{}).Count(&total)
		db.Model(&models.Questionnaire{}).Where("status = ?", models.QuestionnaireActive).Count(&active)
		db.Model(&models.Questionnaire{}).Where("status = ?", models.QuestionnaireCompleted).Count(&completed)
		db.Model(&models.Questionnaire{}).Where("status = ?", models.QuestionnaireArchived).Count(&archived)

		writeGauge(&b, "dqagent_questionnaires_total", "Total number of questionnaires", float64(total))
		writeGauge(&b, "dqagent_questionnaires_active", "Number of active questionnaires", float64(active))
		writeGauge(&b, "dqagent_questionnaires_completed", "Number of completed questionnaires", float64(completed))
		writeGauge(&b, "dqagent_questionnaires_archived", "Number of archived questionnaires", float64(archived))

		var responsesTotal, responsesCompleted, responsesApproved int64
		db.Model(&models.QuestionResponse{}).Count(&responsesTotal)
		db.Model(&models.QuestionResponse{}).Where("status = ?", models.StatusCompleted).Count(&responsesCompleted)
		db.Model(&models.QuestionResponse{}).Where("status = ?", models.StatusApproved).Count(&responsesApproved)

		writeGauge(&b, "dqagent_responses_total", "Total number of question responses", float64(responsesTotal))
		writeGauge(&b, "dqagent_responses_completed", "Number of completed responses", float64(responsesCompleted))
		writeGauge(&b, "dqagent_responses_approved", "Number of approved responses", float64(responsesApproved))

		var usersActive, providersActive int64
		db.Model(&models.User{}).Where("deleted_at IS NULL AND is_active = ?", true).Count(&usersActive)
		db.Model(&models.AIProviderConfig{}).Where("deleted_at IS NULL AND is_active = ?", true).Count(&providersActive)

		writeGauge(&b, "dqagent_users_active", "Number of active users", float64(usersActive))
		writeGauge(&b, "dqagent_providers_active", "Number of active AI providers", float64(providersActive))
	}

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
