package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles. Market team members answer questionnaires for their country;
// risk analysts review and approve; admins manage the system.
const (
	RoleMarketTeam  = "market_team"
	RoleRiskAnalyst = "risk_analyst"
	RoleAdmin       = "admin"
)

// ValidRole reports whether role names one of the three known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleMarketTeam, RoleRiskAnalyst, RoleAdmin:
		return true
	}
	return false
}

// User represents a dashboard user.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password  string         `gorm:"size:255" json:"-"` // bcrypt hash, empty for LDAP users
	Email     string         `gorm:"size:255" json:"email"`
	FullName  string         `gorm:"size:100" json:"full_name"`
	Country   string         `gorm:"size:8;index" json:"country"` // home market, empty for analysts/admins
	Role      string         `gorm:"size:50;default:market_team" json:"role"`
	AuthType  string         `gorm:"size:20;default:local" json:"auth_type"` // local, ldap
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// CanApprove reports whether the user may approve responses.
func (u *User) CanApprove() bool {
	return u.Role == RoleRiskAnalyst || u.Role == RoleAdmin
}
