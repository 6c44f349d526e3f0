package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	LDAP       LDAPConfig       `yaml:"ldap"`
	Redis      RedisConfig      `yaml:"redis"`
	AI         AIConfig         `yaml:"ai"`
	Generation GenerationConfig `yaml:"generation"`
	Autosave   AutosaveConfig   `yaml:"autosave"`
	Reports    ReportsConfig    `yaml:"reports"`
	Notify     NotifyConfig     `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// RedisConfig backs the async task queue and the snapshot fallback cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AIConfig lists question-generation providers. Entries are seeded into the
// provider table on first start; after that the table is authoritative.
type AIConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	Provider string `yaml:"provider"` // openai, azure, anthropic, ollama, gemini
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Priority int    `yaml:"priority"`
	Enabled  bool   `yaml:"enabled"`
}

// GenerationConfig tunes the generation retry policy and the report
// analyzer thresholds.
type GenerationConfig struct {
	MaxAttempts          int     `yaml:"max_attempts"`
	BackoffBaseMs        int     `yaml:"backoff_base_ms"`
	BackoffCapMs         int     `yaml:"backoff_cap_ms"`
	DelinquencyThreshold float64 `yaml:"delinquency_threshold"`
	SignificantChanges   int     `yaml:"significant_changes"`
	HighImpactChanges    int     `yaml:"high_impact_changes"`
	DueDateBusinessDays  int     `yaml:"due_date_business_days"`
}

type AutosaveConfig struct {
	DebounceSeconds int `yaml:"debounce_seconds"`
	CeilingSeconds  int `yaml:"ceiling_seconds"`
}

type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"` // teams, slack, generic
	URL      string `yaml:"url"`
	Enabled  bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

var GlobalConfig *Config

// Load reads configPath (default config.yaml), layers it over the built-in
// defaults, applies environment overrides, and publishes the result as
// GlobalConfig. A missing file is not an error; defaults plus environment
// cover the common container deployment.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "dqagent.db",
		},
		JWT: JWTConfig{
			Secret:     "dqagent-secret-key-change-in-production",
			ExpireHour: 24,
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(uid=%s)",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Generation: GenerationConfig{
			MaxAttempts:          3,
			BackoffBaseMs:        1000,
			BackoffCapMs:         8000,
			DelinquencyThreshold: 500000,
			SignificantChanges:   10,
			HighImpactChanges:    50,
			DueDateBusinessDays:  35,
		},
		Autosave: AutosaveConfig{
			DebounceSeconds: 2,
			CeilingSeconds:  30,
		},
		Reports: ReportsConfig{
			Dir: "data/reports",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func (c *Config) overrideFromEnv() {
	for env, target := range map[string]*string{
		"SERVER_HOST": &c.Server.Host,
		"SERVER_PORT": &c.Server.Port,
		"SERVER_MODE": &c.Server.Mode,
		"DB_DRIVER":   &c.Database.Driver,
		"DB_DSN":      &c.Database.DSN,
		"JWT_SECRET":  &c.JWT.Secret,
		"REPORTS_DIR": &c.Reports.Dir,
		"LOG_LEVEL":   &c.Log.Level,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}

	// Convenience override: a single OpenAI-compatible provider from env.
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		p := ProviderConfig{
			Provider: "openai",
			Model:    "gpt-4",
			APIKey:   apiKey,
			BaseURL:  "https://api.openai.com/v1",
			Priority: 1,
			Enabled:  true,
		}
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			p.Model = model
		}
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			p.BaseURL = baseURL
		}
		c.AI.Providers = append(c.AI.Providers, p)
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL applies a redis://:password@host:port/db URL. A bare
// host:port also works.
func (c *Config) parseRedisURL(raw string) {
	if !strings.Contains(raw, "://") {
		raw = "redis://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}

	c.Redis.Addr = u.Host
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Redis.Password = pw
		}
	}
	if db, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/")); err == nil {
		c.Redis.DB = db
	}
}
