package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:       AppConfig{Env: "local", Port: 8080},
		DB:        DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "classroom"},
		Auth:      AuthConfig{JWTSecret: "secret"},
		Blocklist: BlocklistConfig{Store: StorePostgres},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Blocklist.AccessRetention != 7*24*time.Hour {
		t.Fatalf("unexpected access retention %v", c.Blocklist.AccessRetention)
	}
	if c.Blocklist.RefreshRetention != 30*24*time.Hour {
		t.Fatalf("unexpected refresh retention %v", c.Blocklist.RefreshRetention)
	}
	if c.Guard.VerifyURI != "/verify?callbackURI=%s" || c.Guard.APIPrefix != "/v1/" {
		t.Fatalf("unexpected guard defaults: %+v", c.Guard)
	}
}

func TestValidate_RetentionShorterThanTTL(t *testing.T) {
	c := validLocal()
	c.Auth.RefreshTokenTTL = 60 * 24 * time.Hour
	c.Blocklist.RefreshRetention = 30 * 24 * time.Hour
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "BLOCKLIST_REFRESH_RETENTION") {
		t.Fatalf("expected retention error, got %v", err)
	}
}

func TestValidate_MemoryStoreRejectedInProduction(t *testing.T) {
	c := Config{
		App:       AppConfig{Env: "production", Port: 8080},
		Auth:      AuthConfig{JWTSecret: "s", JWTIssuer: "i", JWTAudience: "a"},
		Blocklist: BlocklistConfig{Store: StoreMemory},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for memory store in production")
	}
}

func TestValidate_RedisStoreSkipsDB(t *testing.T) {
	c := Config{
		App:       AppConfig{Env: "dev", Port: 8080},
		Redis:     RedisConfig{Host: "localhost", Port: 6379},
		Auth:      AuthConfig{JWTSecret: "s"},
		Blocklist: BlocklistConfig{Store: StoreRedis},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_VerifyURIPlaceholder(t *testing.T) {
	c := validLocal()
	c.Guard.VerifyURI = "/verify"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for verify uri without placeholder")
	}
}

func TestLoad_ParsesEnv(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("TOKEN_STORE", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BLOCKLIST_SWEEP_INTERVAL", "10m")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9000 || c.Blocklist.Store != StoreMemory {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Blocklist.SweepInterval != 10*time.Minute {
		t.Fatalf("unexpected sweep interval %v", c.Blocklist.SweepInterval)
	}
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("TOKEN_STORE", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BLOCKLIST_REFRESH_RETENTION", "1week1")

	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed duration error")
	}
}
