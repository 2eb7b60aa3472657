// Package config loads service configuration from a YAML file, environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Email    EmailConfig
	Storage  StorageConfig
	Media    MediaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port         int
	CORSOrigins  []string
	MaxBodyBytes int64
	FrontendURL  string
}

type DatabaseConfig struct {
	// URL is a PostgreSQL connection string. Empty selects the in-memory
	// store, which is only meant for development.
	URL         string
	AutoMigrate bool
}

type SecurityConfig struct {
	SecretKey         string
	VerificationTTL   time.Duration
	BcryptCost        int
	PasswordMinLength int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	Async        bool
	Timeout      time.Duration
}

type StorageConfig struct {
	Type      string // local, s3 or minio
	BasePath  string
	BaseURL   string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type MediaConfig struct {
	MaxImageBytes int64
}

type LogConfig struct {
	Level       string
	Development bool
}

// Load reads configuration. file may name an explicit config file; when
// empty, profilehub.yaml is searched in ./configs and the working directory
// and a missing file is not an error. Environment variables override file
// values using upper-case keys with "." replaced by "_"
// (e.g. SECURITY_SECRET_KEY).
func Load(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("profilehub")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetInt("server.port"),
			CORSOrigins:  v.GetStringSlice("server.cors_origins"),
			MaxBodyBytes: v.GetInt64("server.max_body_bytes"),
			FrontendURL:  v.GetString("server.frontend_url"),
		},
		Database: DatabaseConfig{
			URL:         v.GetString("database.url"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		Security: SecurityConfig{
			SecretKey:         v.GetString("security.secret_key"),
			VerificationTTL:   v.GetDuration("security.verification_ttl"),
			BcryptCost:        v.GetInt("security.bcrypt_cost"),
			PasswordMinLength: v.GetInt("security.password_min_length"),
		},
		Email: EmailConfig{
			SMTPHost:     v.GetString("email.smtp_host"),
			SMTPPort:     v.GetInt("email.smtp_port"),
			SMTPUsername: v.GetString("email.smtp_username"),
			SMTPPassword: v.GetString("email.smtp_password"),
			FromAddress:  v.GetString("email.from_address"),
			Async:        v.GetBool("email.async"),
			Timeout:      v.GetDuration("email.timeout"),
		},
		Storage: StorageConfig{
			Type:      v.GetString("storage.type"),
			BasePath:  v.GetString("storage.base_path"),
			BaseURL:   v.GetString("storage.base_url"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			UseSSL:    v.GetBool("storage.use_ssl"),
		},
		Media: MediaConfig{
			MaxImageBytes: v.GetInt64("media.max_image_bytes"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_body_bytes", 12<<20)
	v.SetDefault("server.frontend_url", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("security.secret_key", "")
	v.SetDefault("security.verification_ttl", "72h")
	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("security.password_min_length", 8)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_username", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.from_address", "Application <noreply@app-com>")
	v.SetDefault("email.async", false)
	v.SetDefault("email.timeout", "10s")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "media")
	v.SetDefault("storage.base_url", "/media")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("media.max_image_bytes", 5<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Security.SecretKey == "" {
		errs = append(errs, errors.New("security.secret_key is required"))
	}
	if c.Security.VerificationTTL <= 0 {
		errs = append(errs, errors.New("security.verification_ttl must be positive"))
	}
	if c.Security.PasswordMinLength < 1 {
		errs = append(errs, errors.New("security.password_min_length must be at least 1"))
	}
	switch c.Storage.Type {
	case "", "local":
	case "s3", "minio":
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage.bucket is required for %s storage", c.Storage.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Media.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("media.max_image_bytes must be positive"))
	}
	return errors.Join(errs...)
}

// NewLogger builds a zap logger for the configured level and mode.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		lvl, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log.level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
