package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME", "STRACA_RPC_SUBJECT", "STRACA_EVENT_SUBJECT",
	"STRACA_REQUEST_TIMEOUT", "MANIFEST_FILE",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"STRACA_HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "MAX_UPLOAD_BYTES",
	"CAW_PING_INTERVAL", "STORE_EVENTS",
	"AUTH_ENABLED", "SESSION_SECRET", "SESSION_EXPIRATION", "ADMIN_USER", "ADMIN_HASH",
	"LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range configEnvVars {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "" {
		t.Errorf("config:config_test - COMMSURL = %q, want empty", cfg.COMMSURL)
	}
	if cfg.COMMSName != "straca" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "straca")
	}
	if cfg.RPCSubject != "straca.rpc" || cfg.EventSubject != "straca.caw.fire" {
		t.Errorf("config:config_test - subjects = %q/%q", cfg.RPCSubject, cfg.EventSubject)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.ListenAddr() != ":8080" {
		t.Errorf("config:config_test - ListenAddr = %q, want :8080", cfg.ListenAddr())
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.MaxUploadBytes != 32<<20 {
		t.Errorf("config:config_test - MaxUploadBytes = %d, want 32MiB", cfg.MaxUploadBytes)
	}
	if cfg.CawPingInterval != 10*time.Second {
		t.Errorf("config:config_test - CawPingInterval = %v, want 10s", cfg.CawPingInterval)
	}
	if !cfg.StoreEvents {
		t.Error("config:config_test - expected StoreEvents=true by default")
	}
	if cfg.AuthEnabled || cfg.SessionSecret != "default" || cfg.SessionExpiration != time.Hour || cfg.AdminUser != "admin" {
		t.Errorf("config:config_test - auth defaults = %v/%q/%v/%q", cfg.AuthEnabled, cfg.SessionSecret, cfg.SessionExpiration, cfg.AdminUser)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":              "nats://custom:4222",
		"SERVICE_NAME":           "test-server",
		"STRACA_RPC_SUBJECT":     "custom.rpc",
		"STRACA_REQUEST_TIMEOUT": "10s",
		"DATABASE_URL":           "postgres://test@localhost/test",
		"RUN_MIGRATIONS":         "true",
		"STRACA_HTTP_ADDR":       "127.0.0.1:9999",
		"HTTP_PORT":              "9090",
		"CAW_PING_INTERVAL":      "250ms",
		"STORE_EVENTS":           "false",
		"AUTH_ENABLED":           "true",
		"SESSION_EXPIRATION":     "15m",
		"LOG_LEVEL":              "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "test-server" {
		t.Errorf("config:config_test - comms = %q/%q", cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.RPCSubject != "custom.rpc" {
		t.Errorf("config:config_test - RPCSubject = %q", cfg.RPCSubject)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if !cfg.RunMigrations || cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - db = %v/%q", cfg.RunMigrations, cfg.DatabaseURL)
	}
	if cfg.ListenAddr() != "127.0.0.1:9999" {
		t.Errorf("config:config_test - ListenAddr = %q, addr should win over port", cfg.ListenAddr())
	}
	if cfg.CawPingInterval != 250*time.Millisecond {
		t.Errorf("config:config_test - CawPingInterval = %v", cfg.CawPingInterval)
	}
	if cfg.StoreEvents {
		t.Error("config:config_test - expected StoreEvents=false")
	}
	if !cfg.AuthEnabled || cfg.SessionExpiration != 15*time.Minute {
		t.Errorf("config:config_test - auth = %v/%v", cfg.AuthEnabled, cfg.SessionExpiration)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestValidateForServe(t *testing.T) {
	base := func() *Config {
		return &Config{
			RequestTimeout:     time.Second,
			HealthCheckTimeout: time.Second,
			CawPingInterval:    time.Second,
			MaxUploadBytes:     1,
			SessionSecret:      "s",
			SessionExpiration:  time.Hour,
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
		{"zero ping", func(c *Config) { c.CawPingInterval = 0 }, true},
		{"zero upload", func(c *Config) { c.MaxUploadBytes = 0 }, true},
		{"auth without secret", func(c *Config) { c.AuthEnabled = true; c.SessionSecret = "" }, true},
		{"auth zero expiration", func(c *Config) { c.AuthEnabled = true; c.SessionExpiration = 0 }, true},
		{"secret unused without auth", func(c *Config) { c.SessionSecret = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.ValidateForServe(); (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	if err := (&Config{}).ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
	if err := (&Config{DatabaseURL: "postgres://x"}).ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
}
