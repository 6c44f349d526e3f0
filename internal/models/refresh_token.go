package models

import "time"

// RefreshToken stores one rotation link of a refresh-token chain. Only the
// SHA-256 hash of the token is kept.
type RefreshToken struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"index;not null" json:"user_id"`
	TokenHash       string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt       *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	ReplacedByToken *uint      `gorm:"column:replaced_by_token_id" json:"-"`
	CreatedByIP     string     `gorm:"size:64" json:"created_by_ip,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

// Valid reports whether the token can still be exchanged.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
