package models

import "time"

// AIUsageLog records each provider call made while generating a
// questionnaire, for cost tracking and provider health monitoring.
type AIUsageLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	QuestionnaireID *uint     `gorm:"index" json:"questionnaire_id"`
	Provider        string    `gorm:"size:50" json:"provider"`
	Model           string    `gorm:"size:100" json:"model"`
	Country         string    `gorm:"size:10;index" json:"country"`
	ReportDate      string    `gorm:"size:10" json:"report_date"`
	Candidates      int       `json:"candidates"`
	LatencyMs       int64     `json:"latency_ms"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

func (AIUsageLog) TableName() string { return "ai_usage_logs" }
