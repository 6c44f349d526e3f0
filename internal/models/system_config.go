package models

import "time"

// SystemConfig is a runtime-tunable setting (stored in database). Settings
// here can change without a restart: analyzer thresholds, reminder schedule,
// log retention. Key and Group carry explicit column tags because both are
// reserved words on some databases.
type SystemConfig struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Key   string `gorm:"column:key;uniqueIndex;size:100;not null" json:"key"`
	Value string `gorm:"type:text" json:"value"`

	// Type hints the admin UI input widget: string, int, float, bool, json.
	Type  string `gorm:"size:20;default:string" json:"type"`
	Group string `gorm:"column:group;size:50;index" json:"group"`
	Label string `gorm:"size:200" json:"label"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }
