package services

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

var globalDB *gorm.DB

// InitSystemLogger wires the audit log writer. Before this is called the
// package-level Log* helpers are no-ops, which keeps unit tests quiet.
func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

func LogInfo(module, action, message string, userID *uint, ip string, extra interface{}) {
	record("info", module, action, message, userID, ip, extra)
}

func LogWarning(module, action, message string, userID *uint, ip string, extra interface{}) {
	record("warning", module, action, message, userID, ip, extra)
}

func LogError(module, action, message string, userID *uint, ip string, extra interface{}) {
	record("error", module, action, message, userID, ip, extra)
}

func record(level, module, action, message string, userID *uint, ip string, extra interface{}) {
	if globalDB == nil {
		return
	}

	entry := models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		UserID:    userID,
		IP:        ip,
		Extra:     encodeExtra(extra),
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(&entry).Error; err != nil {
		logger.Error().Err(err).Str("module", module).Str("action", action).Msg("audit log write failed")
	}
}

func encodeExtra(extra interface{}) string {
	if extra == nil {
		return ""
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return string(b)
}

// SystemLogService serves the admin log browser and the retention sweep.
type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page      int    `form:"page" binding:"min=1"`
	PageSize  int    `form:"page_size" binding:"min=1,max=100"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

// normalize bounds paging for callers that bypass gin binding.
func (r *SystemLogListRequest) normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 || r.PageSize > 100 {
		r.PageSize = 20
	}
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func logFilters(req *SystemLogListRequest) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if req.Level != "" {
			q = q.Where("level = ?", req.Level)
		}
		if req.Module != "" {
			q = q.Where("module = ?", req.Module)
		}
		if req.Action != "" {
			q = q.Where("action LIKE ?", "%"+req.Action+"%")
		}
		if req.StartDate != "" {
			q = q.Where("created_at >= ?", req.StartDate)
		}
		if req.EndDate != "" {
			q = q.Where("created_at <= ?", req.EndDate+" 23:59:59")
		}
		if req.Search != "" {
			q = q.Where("message LIKE ?", "%"+req.Search+"%")
		}
		return q
	}
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	req.normalize()

	query := s.db.Model(&models.SystemLog{}).Scopes(logFilters(req))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	items := make([]models.SystemLog, 0, req.PageSize)
	err := query.Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

// GetModules lists the distinct modules seen in the log, for filter dropdowns.
func (s *SystemLogService) GetModules() ([]string, error) {
	var modules []string
	err := s.db.Model(&models.SystemLog{}).Distinct("module").Pluck("module", &modules).Error
	if err != nil {
		return nil, err
	}
	return modules, nil
}

func (s *SystemLogService) Create(entry *models.SystemLog) error {
	return s.db.Create(entry).Error
}

// CleanupOldLogs deletes logs older than the retention window and returns
// how many rows went.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GetRetentionDays reads the retention window from system config. Zero or
// negative disables the sweep.
func (s *SystemLogService) GetRetentionDays() int {
	return NewSystemConfigService(s.db).GetInt("log_retention_days", 30)
}

var logCleanupStop chan struct{}

// StartLogCleanupScheduler purges expired audit and usage rows once at
// startup and then daily.
func StartLogCleanupScheduler(db *gorm.DB) {
	logCleanupStop = make(chan struct{})
	stop := logCleanupStop

	go func() {
		service := NewSystemLogService(db)
		log := logger.Component("retention")

		runLogCleanup(service, log)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runLogCleanup(service, log)
			case <-stop:
				return
			}
		}
	}()
}

// StopLogCleanupScheduler stops the cleanup goroutine.
func StopLogCleanupScheduler() {
	if logCleanupStop != nil {
		close(logCleanupStop)
		logCleanupStop = nil
	}
}

func runLogCleanup(service *SystemLogService, log zerolog.Logger) {
	retentionDays := service.GetRetentionDays()
	if retentionDays <= 0 {
		log.Info().Msg("log cleanup disabled (retention_days <= 0)")
		return
	}

	deleted, err := service.CleanupOldLogs(retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("system log cleanup failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("system logs cleaned up")
	}

	// Usage logs follow the same retention window.
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	purged, err := NewAIUsageService(service.db).CleanupBefore(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("ai usage cleanup failed")
		return
	}
	if purged > 0 {
		log.Info().Int64("deleted", purged).Msg("ai usage logs cleaned up")
	}
}
