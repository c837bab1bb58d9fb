// Package config loads the server configuration from .env, config.yml and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultSessionSecret = "change-me-session-secret"

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	SiteURL       string `mapstructure:"SITE_URL"`

	DBDriver string `mapstructure:"DB_DRIVER"`
	DBDSN    string `mapstructure:"DB_DSN"`
	RedisURL string `mapstructure:"REDIS_URL"`

	AssetDriver     string `mapstructure:"ASSET_DRIVER"`
	AssetDir        string `mapstructure:"ASSET_DIR"`
	S3Bucket        string `mapstructure:"S3_BUCKET"`
	S3PublicBaseURL string `mapstructure:"S3_PUBLIC_BASE_URL"`
	AWSRegion       string `mapstructure:"AWS_REGION"`

	MailDriver   string `mapstructure:"MAIL_DRIVER"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	// AdminEmails are promoted to admin when they sign up.
	AdminEmails string `mapstructure:"ADMIN_EMAILS"`

	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SESSION_SECRET", defaultSessionSecret)
	v.SetDefault("SITE_URL", "http://localhost:8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "garden.db")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ASSET_DRIVER", "disk")
	v.SetDefault("ASSET_DIR", "uploads")
	v.SetDefault("S3_BUCKET", "images")
	v.SetDefault("S3_PUBLIC_BASE_URL", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("MAIL_DRIVER", "log")
	v.SetDefault("MAIL_FROM", "Garden <newsletter@localhost>")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("ADMIN_EMAILS", "")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads .env (if present), then config.yml (if present), then the environment.
// Environment variables win over the file.
func Load(paths ...string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate checks required values and production-only constraints.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}

	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}

	switch c.AssetDriver {
	case "disk":
		if c.AssetDir == "" {
			return errors.New("ASSET_DIR is required for the disk asset driver")
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 asset driver")
		}
	default:
		return fmt.Errorf("ASSET_DRIVER must be disk or s3, got %q", c.AssetDriver)
	}

	switch c.MailDriver {
	case "log", "ses":
	case "smtp":
		if c.SMTPHost == "" {
			return errors.New("SMTP_HOST is required for the smtp mail driver")
		}
	default:
		return fmt.Errorf("MAIL_DRIVER must be log, smtp or ses, got %q", c.MailDriver)
	}

	if c.IsProduction() {
		if c.SessionSecret == defaultSessionSecret {
			return errors.New("SESSION_SECRET must be changed from the default value in production")
		}
		if len(c.SessionSecret) < 32 {
			return errors.New("SESSION_SECRET must be at least 32 characters in production")
		}
	}
	return nil
}

// AdminEmailList returns the normalized bootstrap admin addresses.
func (c *Config) AdminEmailList() []string {
	var out []string
	for _, e := range strings.Split(c.AdminEmails, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
