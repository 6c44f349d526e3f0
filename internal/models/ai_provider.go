package models

import (
	"time"

	"gorm.io/gorm"
)

// AIProviderConfig is one question-generation provider (stored in database).
// Providers are tried in ascending priority order until one yields candidates.
type AIProviderConfig struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Provider    string         `gorm:"size:50;default:openai" json:"provider"` // openai, azure, anthropic, ollama, gemini
	BaseURL     string         `gorm:"size:500" json:"base_url"`
	APIKey      string         `gorm:"size:500" json:"-"`
	APIKeyMask  string         `gorm:"-" json:"api_key_mask"`
	Model       string         `gorm:"size:100" json:"model"`
	MaxTokens   int            `gorm:"default:4096" json:"max_tokens"`
	Temperature float64        `gorm:"default:0.3" json:"temperature"`
	Priority    int            `gorm:"default:100" json:"priority"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (AIProviderConfig) TableName() string { return "ai_provider_configs" }

// MaskAPIKey returns a masked API key for display.
func (p *AIProviderConfig) MaskAPIKey() string {
	if len(p.APIKey) <= 8 {
		return "****"
	}
	return p.APIKey[:4] + "****" + p.APIKey[len(p.APIKey)-4:]
}
