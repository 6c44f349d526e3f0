package models

import (
	"time"

	"gorm.io/gorm"
)

// PromptTemplate is a reusable question-generation prompt (stored in
// database). Content carries placeholders like {{COUNTRY}} that are
// substituted at call time; Variables lists them as a JSON array so the
// editor can show which ones a template uses.
type PromptTemplate struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"size:500" json:"description"`

	Content   string `gorm:"type:text;not null" json:"content"`
	Variables string `gorm:"size:500" json:"variables"`

	// At most one template is the default; system templates ship with the
	// seed data and cannot be deleted.
	IsDefault bool `gorm:"default:false" json:"is_default"`
	IsSystem  bool `gorm:"default:false" json:"is_system"`

	CreatedBy uint           `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (PromptTemplate) TableName() string { return "prompt_templates" }
