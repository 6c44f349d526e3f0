package services

import (
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aravindsuri/dqagent/internal/models"
)

// SystemConfigService reads and writes runtime-tunable settings. Values live
// in the database so analyzer thresholds and schedules can change without a
// restart.
type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where("`key` = ?", key).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetInt returns the setting parsed as an integer, or the fallback when the
// key is missing or malformed.
func (s *SystemConfigService) GetInt(key string, fallback int) int {
	value, err := s.Get(key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

// GetFloat returns the setting parsed as a float, or the fallback when the
// key is missing or malformed.
func (s *SystemConfigService) GetFloat(key string, fallback float64) float64 {
	value, err := s.Get(key)
	if err != nil {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (s *SystemConfigService) GetBool(key string, fallback bool) bool {
	value, err := s.Get(key)
	if err != nil {
		return fallback
	}
	return value == "true"
}

// Set stores a value, inserting the key on first write.
func (s *SystemConfigService) Set(key, value string) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemConfig{Key: key, Value: value}).Error
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where("`group` = ?", group).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

type LDAPConfigResponse struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	BaseDN      string `json:"base_dn"`
	BindDN      string `json:"bind_dn"`
	UserFilter  string `json:"user_filter"`
	UseSSL      bool   `json:"use_ssl"`
	PasswordSet bool   `json:"password_set"`
}

// GetLDAPConfig assembles the directory settings for the admin UI. The bind
// password itself is never returned, only whether one is stored.
func (s *SystemConfigService) GetLDAPConfig() *LDAPConfigResponse {
	port, _ := strconv.Atoi(s.GetWithDefault("ldap_port", "389"))
	return &LDAPConfigResponse{
		Enabled:     s.GetBool("ldap_enabled", false),
		Host:        s.GetWithDefault("ldap_host", ""),
		Port:        port,
		BaseDN:      s.GetWithDefault("ldap_base_dn", ""),
		BindDN:      s.GetWithDefault("ldap_bind_dn", ""),
		UserFilter:  s.GetWithDefault("ldap_user_filter", "(uid=%s)"),
		UseSSL:      s.GetBool("ldap_use_ssl", false),
		PasswordSet: s.GetWithDefault("ldap_bind_password", "") != "",
	}
}

type UpdateLDAPConfigRequest struct {
	Enabled      *bool   `json:"enabled"`
	Host         *string `json:"host"`
	Port         *int    `json:"port"`
	BaseDN       *string `json:"base_dn"`
	BindDN       *string `json:"bind_dn"`
	BindPassword *string `json:"bind_password"`
	UserFilter   *string `json:"user_filter"`
	UseSSL       *bool   `json:"use_ssl"`
}

// UpdateLDAPConfig applies a partial directory-settings update. Omitted
// fields keep their stored value; an empty bind password means "keep the
// current one".
func (s *SystemConfigService) UpdateLDAPConfig(req *UpdateLDAPConfigRequest) error {
	pending := make(map[string]string)
	if req.Enabled != nil {
		pending["ldap_enabled"] = strconv.FormatBool(*req.Enabled)
	}
	if req.Host != nil {
		pending["ldap_host"] = *req.Host
	}
	if req.Port != nil {
		pending["ldap_port"] = strconv.Itoa(*req.Port)
	}
	if req.BaseDN != nil {
		pending["ldap_base_dn"] = *req.BaseDN
	}
	if req.BindDN != nil {
		pending["ldap_bind_dn"] = *req.BindDN
	}
	if req.BindPassword != nil && *req.BindPassword != "" {
		pending["ldap_bind_password"] = *req.BindPassword
	}
	if req.UserFilter != nil {
		pending["ldap_user_filter"] = *req.UserFilter
	}
	if req.UseSSL != nil {
		pending["ldap_use_ssl"] = strconv.FormatBool(*req.UseSSL)
	}

	for key, value := range pending {
		if err := s.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}
