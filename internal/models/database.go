package models

import (
	"fmt"

	"github.com/aravindsuri/dqagent/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return DB.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Country{},
		&Questionnaire{},
		&Question{},
		&QuestionResponse{},
		&AIProviderConfig{},
		&PromptTemplate{},
		&SystemConfig{},
		&SystemLog{},
		&AIUsageLog{},
		&SchedulerLock{},
	)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData creates the baseline rows a fresh installation needs:
// supported markets, the default generation prompt, and tunable defaults.
func SeedDefaultData() error {
	defaultCountries := []Country{
		{Code: "NL", Name: "Netherlands", EntityID: "76", EntityName: "Daimler Truck FS", Region: "Europe", Active: true},
		{Code: "DE", Name: "Germany", EntityID: "77", EntityName: "Daimler Truck FS", Region: "Europe", Active: true},
		{Code: "ES", Name: "Spain", EntityID: "78", EntityName: "Daimler Truck FS", Region: "Europe", Active: true},
	}
	for _, c := range defaultCountries {
		var count int64
		DB.Model(&Country{}).Where("code = ?", c.Code).Count(&count)
		if count == 0 {
			if err := DB.Create(&c).Error; err != nil {
				return err
			}
		}
	}

	var promptCount int64
	DB.Model(&PromptTemplate{}).Where("is_system = ?", true).Count(&promptCount)
	if promptCount == 0 {
		defaultPrompt := PromptTemplate{
			Name:        "Default Question Generation",
			Description: "Generates data-quality questionnaire candidates from monthly report findings",
			Content: `You are a senior risk analyst preparing a data-quality questionnaire for the {{COUNTRY}} market, reporting period {{REPORT_DATE}}.

Below are the findings extracted from the monthly data-quality report:

{{REPORT_FINDINGS}}

Focus areas requested by the reviewer (may be empty): {{FOCUS_AREAS}}

Write questions the market team must answer before the report can be signed off. For every anomaly produce one question. Respond with a JSON array only, no prose, where each element has these fields:

- "category": section of the report ("Overview", "Additional Information", "Writeoffs", "Warnings")
- "priority": "low", "medium", "high" or "critical"
- "question_text": the question, addressed to the market team, citing the concrete figures
- "context": one sentence on why the question was raised
- "expected_response_type": "text" or "structured"
- "validation_rules": array chosen from "min_length:N", "requires_explanation", "requires_timeline", "requires_action_plan", "requires_confirmation"
- "related_data": object with the source figures the question refers to
- "follow_up_questions": optional array of strings
- "confidence_score": number between 0 and 1

Rules:
- Only raise questions for findings that are actually present.
- Use "critical" only for delinquency threshold breaches.
- Cite amounts with two decimals.`,
			Variables: `["COUNTRY", "REPORT_DATE", "REPORT_FINDINGS", "FOCUS_AREAS"]`,
			IsDefault: true,
			IsSystem:  true,
		}
		if err := DB.Create(&defaultPrompt).Error; err != nil {
			return err
		}
	}

	defaultConfigs := []SystemConfig{
		{Key: "ai_generation_enabled", Value: "true", Type: "bool", Group: "generation", Label: "Use AI providers for question generation"},
		{Key: "delinquency_threshold", Value: "500000", Type: "float", Group: "generation", Label: "Delinquent amount that raises a critical question"},
		{Key: "significant_change_count", Value: "10", Type: "int", Group: "generation", Label: "Change count considered significant"},
		{Key: "high_impact_change_count", Value: "50", Type: "int", Group: "generation", Label: "Change count considered high impact"},
		{Key: "due_date_business_days", Value: "35", Type: "int", Group: "generation", Label: "Business days from report date to due date"},
		{Key: "reminder_enabled", Value: "true", Type: "bool", Group: "schedule", Label: "Send due-date reminders"},
		{Key: "reminder_cron", Value: "0 8 * * *", Type: "string", Group: "schedule", Label: "Due-date reminder schedule"},
		{Key: "reminder_days_before", Value: "7", Type: "int", Group: "schedule", Label: "Days before due date to start reminders"},
		{Key: "log_retention_days", Value: "30", Type: "int", Group: "system", Label: "System log retention days"},
	}

	for _, cfg := range defaultConfigs {
		var count int64
		DB.Model(&SystemConfig{}).Where("`key` = ?", cfg.Key).Count(&count)
		if count == 0 {
			if err := DB.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
