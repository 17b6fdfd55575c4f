// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds straca configuration.
type Config struct {
	// COMMS: NATS transport and cross-instance event relay. Empty disables both.
	COMMSURL  string `envconfig:"COMMS_URL"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"straca"`

	RPCSubject   string `envconfig:"STRACA_RPC_SUBJECT" default:"straca.rpc"`
	EventSubject string `envconfig:"STRACA_EVENT_SUBJECT" default:"straca.caw.fire"`

	// RequestTimeout bounds one envelope on the NATS transport.
	RequestTimeout time.Duration `envconfig:"STRACA_REQUEST_TIMEOUT" default:"25s"`

	ManifestFile string `envconfig:"MANIFEST_FILE"`

	// Database. Empty DATABASE_URL selects the in-memory message store.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP (STRACA_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"STRACA_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	MaxUploadBytes     int64         `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"`

	CawPingInterval time.Duration `envconfig:"CAW_PING_INTERVAL" default:"10s"`
	StoreEvents     bool          `envconfig:"STORE_EVENTS" default:"true"`

	// Security service
	AuthEnabled       bool          `envconfig:"AUTH_ENABLED" default:"false"`
	SessionSecret     string        `envconfig:"SESSION_SECRET" default:"default"`
	SessionExpiration time.Duration `envconfig:"SESSION_EXPIRATION" default:"1h"`
	AdminUser         string        `envconfig:"ADMIN_USER" default:"admin"`
	AdminHash         string        `envconfig:"ADMIN_HASH"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListenAddr returns HTTPAddr when set, otherwise ":<HTTPPort>".
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - STRACA_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.CawPingInterval <= 0 {
		return fmt.Errorf("%s - CAW_PING_INTERVAL must be positive", logPrefix)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%s - MAX_UPLOAD_BYTES must be positive", logPrefix)
	}
	if c.AuthEnabled {
		if c.SessionSecret == "" {
			return fmt.Errorf("%s - SESSION_SECRET is required when AUTH_ENABLED", logPrefix)
		}
		if c.SessionExpiration <= 0 {
			return fmt.Errorf("%s - SESSION_EXPIRATION must be positive", logPrefix)
		}
	}
	return nil
}

// ValidateForDB checks required config when running DB commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
