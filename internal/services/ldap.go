package services

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"gorm.io/gorm"

	"github.com/aravindsuri/dqagent/internal/config"
)

// LDAPService authenticates users against a directory. Connection settings
// are admin-editable in system config; the config file seeds the initial
// values and serves as fallback.
type LDAPService struct {
	db       *gorm.DB
	fallback *config.LDAPConfig
}

func NewLDAPService(db *gorm.DB, fallback *config.LDAPConfig) *LDAPService {
	return &LDAPService{db: db, fallback: fallback}
}

type LDAPUser struct {
	DN       string
	Username string
	Email    string
	FullName string
	Country  string
}

// IsEnabled reports whether directory login is currently switched on.
func (s *LDAPService) IsEnabled() bool {
	return s.settings().Enabled
}

// Authenticate binds as the user after locating the entry with the service
// account.
func (s *LDAPService) Authenticate(username, password string) (*LDAPUser, error) {
	cfg := s.settings()
	if !cfg.Enabled {
		return nil, fmt.Errorf("LDAP is not enabled")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var conn *ldap.Conn
	var err error

	if cfg.UseSSL {
		conn, err = ldap.DialTLS("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	} else {
		conn, err = ldap.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LDAP server: %w", err)
	}
	defer conn.Close()

	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("failed to bind with service account: %w", err)
		}
	}

	searchFilter := fmt.Sprintf(cfg.UserFilter, ldap.EscapeFilter(username))
	searchRequest := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		searchFilter,
		[]string{"dn", "cn", "mail", "uid", "sAMAccountName", "c"},
		nil,
	)

	result, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("LDAP search failed: %w", err)
	}

	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("user not found in LDAP")
	}
	if len(result.Entries) > 1 {
		return nil, fmt.Errorf("multiple users found in LDAP")
	}

	userDN := result.Entries[0].DN

	// Bind as the user to verify the password.
	if err := conn.Bind(userDN, password); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	entry := result.Entries[0]
	user := &LDAPUser{
		DN:       userDN,
		Username: entry.GetAttributeValue("uid"),
		Email:    entry.GetAttributeValue("mail"),
		FullName: entry.GetAttributeValue("cn"),
		Country:  strings.ToUpper(entry.GetAttributeValue("c")),
	}

	// Active Directory stores the login name in sAMAccountName.
	if user.Username == "" {
		user.Username = entry.GetAttributeValue("sAMAccountName")
	}

	return user, nil
}

// settings layers system-config overrides on the file config.
func (s *LDAPService) settings() *config.LDAPConfig {
	cfg := config.LDAPConfig{}
	if s.fallback != nil {
		cfg = *s.fallback
	}

	if s.db != nil {
		sys := NewSystemConfigService(s.db)
		if v, err := sys.Get("ldap_enabled"); err == nil {
			cfg.Enabled = v == "true"
		}
		if v, err := sys.Get("ldap_host"); err == nil && v != "" {
			cfg.Host = v
		}
		if v, err := sys.Get("ldap_port"); err == nil {
			if port, err := strconv.Atoi(v); err == nil && port > 0 {
				cfg.Port = port
			}
		}
		if v, err := sys.Get("ldap_base_dn"); err == nil && v != "" {
			cfg.BaseDN = v
		}
		if v, err := sys.Get("ldap_bind_dn"); err == nil && v != "" {
			cfg.BindDN = v
		}
		if v, err := sys.Get("ldap_bind_password"); err == nil && v != "" {
			cfg.BindPassword = v
		}
		if v, err := sys.Get("ldap_user_filter"); err == nil && v != "" {
			cfg.UserFilter = v
		}
		if v, err := sys.Get("ldap_use_ssl"); err == nil {
			cfg.UseSSL = v == "true"
		}
	}

	if cfg.Port == 0 {
		cfg.Port = 389
	}
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(uid=%s)"
	}
	return &cfg
}
