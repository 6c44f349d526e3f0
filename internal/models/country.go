package models

import "time"

// Country is a supported reporting market. Seeded on first start; admins can
// activate or deactivate markets without code changes.
type Country struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Code       string    `gorm:"uniqueIndex;size:8;not null" json:"code"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	EntityID   string    `gorm:"size:20" json:"entity_id"`
	EntityName string    `gorm:"size:200" json:"entity_name"`
	Region     string    `gorm:"size:50" json:"region"`
	Active     bool      `gorm:"default:true" json:"active"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

func (Country) TableName() string { return "countries" }
