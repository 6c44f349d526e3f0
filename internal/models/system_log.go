package models

import "time"

// SystemLog is one operational event record: generation runs, autosave
// retries, notifications, auth events. Level is info, warning or error.
// Old rows are purged on the retention schedule.
type SystemLog struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Level   string `gorm:"size:20;index" json:"level"`
	Module  string `gorm:"size:100;index" json:"module"`
	Action  string `gorm:"size:200;index" json:"action"`
	Message string `gorm:"type:text" json:"message"`

	UserID *uint  `json:"user_id,omitempty"`
	IP     string `gorm:"size:50" json:"ip,omitempty"`

	// Extra carries request detail as JSON; the audit middleware redacts
	// and caps it before it gets here.
	Extra string `gorm:"type:text" json:"extra,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
