package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Server.Mode != "debug" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "dqagent.db" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Generation.MaxAttempts != 3 || cfg.Generation.DueDateBusinessDays != 35 {
		t.Errorf("generation defaults = %+v", cfg.Generation)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should default to disabled")
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
redis:
  enabled: true
  addr: "redis-prod:6379"
generation:
  delinquency_threshold: 750000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, expected 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, expected default to survive partial file", cfg.Server.Host)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis-prod:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Generation.DelinquencyThreshold != 750000 {
		t.Errorf("DelinquencyThreshold = %v, expected 750000", cfg.Generation.DelinquencyThreshold)
	}
	if cfg.Generation.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, expected default to survive partial file", cfg.Generation.MaxAttempts)
	}
}

func TestLoad_RejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on malformed yaml")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("DB_DSN", "/data/dq.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("Port = %q, expected env override", cfg.Server.Port)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("Secret = %q, expected env override", cfg.JWT.Secret)
	}
	if cfg.Database.DSN != "/data/dq.db" {
		t.Errorf("DSN = %q, expected env override", cfg.Database.DSN)
	}
}

func TestLoad_ProviderFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AI.Providers) != 1 {
		t.Fatalf("providers = %d, expected 1", len(cfg.AI.Providers))
	}
	p := cfg.AI.Providers[0]
	if p.Provider != "openai" || p.APIKey != "sk-test" || p.Model != "gpt-4o-mini" {
		t.Errorf("provider = %+v", p)
	}
	if !p.Enabled {
		t.Error("env provider should be enabled")
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
	}{
		{"full", "redis://:secretpw@cache.internal:6380/2", "cache.internal:6380", "secretpw", 2},
		{"no auth no db", "redis://cache.internal:6379", "cache.internal:6379", "", 0},
		{"bare host port", "cache.internal:6400", "cache.internal:6400", "", 0},
		{"user and password", "redis://app:pw@cache:6379/5", "cache:6379", "pw", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.parseRedisURL(tt.url)
			if cfg.Redis.Addr != tt.addr {
				t.Errorf("Addr = %q, expected %q", cfg.Redis.Addr, tt.addr)
			}
			if cfg.Redis.Password != tt.password {
				t.Errorf("Password = %q, expected %q", cfg.Redis.Password, tt.password)
			}
			if cfg.Redis.DB != tt.db {
				t.Errorf("DB = %d, expected %d", cfg.Redis.DB, tt.db)
			}
		})
	}
}

func TestParseRedisURL_GarbageKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.parseRedisURL("redis://")
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Addr = %q, expected default kept", cfg.Redis.Addr)
	}
}
