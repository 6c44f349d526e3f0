package services

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

func newLogService(t *testing.T) (*SystemLogService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "logs.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.SystemLog{}, &models.SystemConfig{}, &models.AIUsageLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSystemLogService(db), db
}

func seedLogRow(t *testing.T, db *gorm.DB, level, module, message string, age time.Duration) {
	t.Helper()
	row := models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    "test",
		Message:   message,
		CreatedAt: time.Now().Add(-age),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed log row: %v", err)
	}
}

func TestSystemLogList_Filters(t *testing.T) {
	svc, db := newLogService(t)

	seedLogRow(t, db, "info", "Generation", "generated 12 questions for NL", time.Hour)
	seedLogRow(t, db, "info", "Generation", "generated 8 questions for DE", 2*time.Hour)
	seedLogRow(t, db, "error", "Notification", "webhook delivery timeout", 3*time.Hour)
	seedLogRow(t, db, "warning", "Lifecycle", "approval without responses", 4*time.Hour)
	seedLogRow(t, db, "info", "Auth", "login", 5*time.Hour)

	tests := []struct {
		name string
		req  SystemLogListRequest
		want int64
	}{
		{"no filter", SystemLogListRequest{}, 5},
		{"by level", SystemLogListRequest{Level: "error"}, 1},
		{"by module", SystemLogListRequest{Module: "Generation"}, 2},
		{"by message search", SystemLogListRequest{Search: "timeout"}, 1},
		{"level and module", SystemLogListRequest{Level: "info", Module: "Auth"}, 1},
		{"no match", SystemLogListRequest{Module: "Scheduler"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.List(&tt.req)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if resp.Total != tt.want {
				t.Errorf("Total = %d, expected %d", resp.Total, tt.want)
			}
			if int64(len(resp.Items)) != tt.want {
				t.Errorf("len(Items) = %d, expected %d", len(resp.Items), tt.want)
			}
		})
	}
}

func TestSystemLogList_PagesNewestFirst(t *testing.T) {
	svc, db := newLogService(t)
	for i := 0; i < 5; i++ {
		seedLogRow(t, db, "info", "Generation", "run", time.Duration(i)*time.Hour)
	}

	resp, err := svc.List(&SystemLogListRequest{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 5 || len(resp.Items) != 2 {
		t.Fatalf("Total = %d, len(Items) = %d, expected 5 and 2", resp.Total, len(resp.Items))
	}
	if !resp.Items[0].CreatedAt.After(resp.Items[1].CreatedAt) {
		t.Error("items not ordered newest first")
	}
}

func TestSystemLogList_BoundsPaging(t *testing.T) {
	svc, _ := newLogService(t)

	resp, err := svc.List(&SystemLogListRequest{Page: 0, PageSize: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Page != 1 {
		t.Errorf("Page = %d, expected 1", resp.Page)
	}
	if resp.PageSize != 20 {
		t.Errorf("PageSize = %d, expected default 20", resp.PageSize)
	}
}

func TestGetModules_Distinct(t *testing.T) {
	svc, db := newLogService(t)
	seedLogRow(t, db, "info", "Generation", "a", time.Hour)
	seedLogRow(t, db, "info", "Generation", "b", time.Hour)
	seedLogRow(t, db, "info", "Auth", "c", time.Hour)

	modules, err := svc.GetModules()
	if err != nil {
		t.Fatalf("GetModules: %v", err)
	}
	if len(modules) != 2 {
		t.Errorf("modules = %v, expected 2 distinct", modules)
	}
}

func TestLogHelpers_WriteThroughGlobal(t *testing.T) {
	_, db := newLogService(t)

	// Uninitialized writer drops entries silently.
	InitSystemLogger(nil)
	LogInfo("Generation", "generate", "dropped", nil, "", nil)

	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	uid := uint(7)
	LogWarning("Lifecycle", "approve", "approved with 2 open questions", &uid, "10.0.0.5",
		map[string]interface{}{"questionnaire_id": 31})

	var rows []models.SystemLog
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, expected 1", len(rows))
	}
	row := rows[0]
	if row.Level != "warning" || row.Module != "Lifecycle" || row.Action != "approve" {
		t.Errorf("row = %+v", row)
	}
	if row.UserID == nil || *row.UserID != 7 {
		t.Errorf("UserID = %v, expected 7", row.UserID)
	}
	if !strings.Contains(row.Extra, "questionnaire_id") {
		t.Errorf("Extra = %q, expected encoded map", row.Extra)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	svc, db := newLogService(t)
	seedLogRow(t, db, "info", "Generation", "old", 40*24*time.Hour)
	seedLogRow(t, db, "info", "Generation", "older", 60*24*time.Hour)
	seedLogRow(t, db, "info", "Generation", "recent", 24*time.Hour)

	deleted, err := svc.CleanupOldLogs(30)
	if err != nil {
		t.Fatalf("CleanupOldLogs: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, expected 2", deleted)
	}

	var remaining int64
	db.Model(&models.SystemLog{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("remaining = %d, expected 1", remaining)
	}

	// Retention disabled means nothing is touched.
	deleted, err = svc.CleanupOldLogs(0)
	if err != nil || deleted != 0 {
		t.Errorf("CleanupOldLogs(0) = (%d, %v), expected (0, nil)", deleted, err)
	}
}

func TestGetRetentionDays(t *testing.T) {
	svc, db := newLogService(t)

	if got := svc.GetRetentionDays(); got != 30 {
		t.Errorf("default retention = %d, expected 30", got)
	}

	cfg := NewSystemConfigService(db)
	if err := cfg.Set("log_retention_days", "90"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := svc.GetRetentionDays(); got != 90 {
		t.Errorf("retention = %d, expected 90", got)
	}

	if err := cfg.Set("log_retention_days", "forever"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := svc.GetRetentionDays(); got != 30 {
		t.Errorf("unparsable retention = %d, expected fallback 30", got)
	}
}

func TestRunLogCleanup_PurgesUsageLogs(t *testing.T) {
	svc, db := newLogService(t)

	if err := NewSystemConfigService(db).Set("log_retention_days", "10"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	seedLogRow(t, db, "info", "Generation", "stale", 20*24*time.Hour)
	old := models.AIUsageLog{Provider: "anthropic", Country: "NL", CreatedAt: time.Now().AddDate(0, 0, -20)}
	fresh := models.AIUsageLog{Provider: "anthropic", Country: "NL", CreatedAt: time.Now()}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}
	if err := db.Create(&fresh).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	runLogCleanup(svc, logger.Component("retention"))

	var logs, usage int64
	db.Model(&models.SystemLog{}).Count(&logs)
	db.Model(&models.AIUsageLog{}).Count(&usage)
	if logs != 0 {
		t.Errorf("system logs remaining = %d, expected 0", logs)
	}
	if usage != 1 {
		t.Errorf("usage logs remaining = %d, expected 1", usage)
	}
}
