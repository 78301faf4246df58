package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string   `mapstructure:"PORT"`
	Env                    string   `mapstructure:"ENV"`
	DatabaseURL            string   `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer             string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience           string   `mapstructure:"AUTH_AUDIENCE"`
	JWTSigningKey          string   `mapstructure:"JWT_SIGNING_KEY"`
	CORSOrigins            []string `mapstructure:"CORS_ORIGINS"`
	ClinicTimezone         string   `mapstructure:"CLINIC_TIMEZONE"`
	NoShowGraceHours       int      `mapstructure:"NO_SHOW_GRACE_HOURS"`
	ArchiveAfterHours      int      `mapstructure:"ARCHIVE_AFTER_HOURS"`
	DefaultAppointmentHour int      `mapstructure:"DEFAULT_APPOINTMENT_HOUR"`
	RateLimitRPS           float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst         int      `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit              string   `mapstructure:"BODY_LIMIT"`
	RequestTimeoutSeconds  int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	TLSEnabled             bool     `mapstructure:"TLS_ENABLED"`
	TLSCertFile            string   `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile             string   `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "JWT_SIGNING_KEY", "CORS_ORIGINS",
	"CLINIC_TIMEZONE", "NO_SHOW_GRACE_HOURS", "ARCHIVE_AFTER_HOURS", "DEFAULT_APPOINTMENT_HOUR",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT", "REQUEST_TIMEOUT_SECONDS",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads .env (optional) and the environment. DATABASE_URL is the only
// required key; everything else has a default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUTH_ISSUER", "rabiesresq")
	v.SetDefault("AUTH_AUDIENCE", "rabiesresq-api")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CLINIC_TIMEZONE", "Asia/Manila")
	v.SetDefault("NO_SHOW_GRACE_HOURS", 10)
	v.SetDefault("ARCHIVE_AFTER_HOURS", 24)
	v.SetDefault("DEFAULT_APPOINTMENT_HOUR", 9)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)

	// Unmarshal only sees env vars that were bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CLINIC_TIMEZONE. Appointment dates typed by staff and the
// default intake slot are interpreted in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

func (c *Config) NoShowGrace() time.Duration {
	return time.Duration(c.NoShowGraceHours) * time.Hour
}

func (c *Config) ArchiveAfter() time.Duration {
	return time.Duration(c.ArchiveAfterHours) * time.Hour
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key is required; in development unauthenticated requests get a
// fixed dev identity.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.JWTSigningKey != "" && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes, got %d", len(c.JWTSigningKey))
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.NoShowGraceHours <= 0 {
		return fmt.Errorf("NO_SHOW_GRACE_HOURS must be positive, got %d", c.NoShowGraceHours)
	}
	if c.ArchiveAfterHours < c.NoShowGraceHours {
		return fmt.Errorf("ARCHIVE_AFTER_HOURS (%d) must not be shorter than NO_SHOW_GRACE_HOURS (%d)",
			c.ArchiveAfterHours, c.NoShowGraceHours)
	}
	if c.DefaultAppointmentHour < 0 || c.DefaultAppointmentHour > 23 {
		return fmt.Errorf("DEFAULT_APPOINTMENT_HOUR must be 0-23, got %d", c.DefaultAppointmentHour)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}

	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
