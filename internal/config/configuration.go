package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	RecordStorePostgres = "postgres"
	RecordStoreMemory   = "memory"
)

type Config struct {
	// WebServer Configuration
	WebServerPort    int           `mapstructure:"WEBSERVER_PORT"`
	SessionSecret    string        `mapstructure:"SESSION_SECRET" validate:"required"`
	BatchIdleTimeout time.Duration `mapstructure:"BATCH_IDLE_TIMEOUT"`
	UploadLimit      string        `mapstructure:"UPLOAD_LIMIT"`

	// Record Store Configuration
	RecordStore     string `mapstructure:"RECORD_STORE" validate:"oneof=postgres memory"`
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required_if=RecordStore postgres"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Media Services Configuration
	MediaServicesURL          string        `mapstructure:"MEDIA_SERVICES_URL" validate:"required,url"`
	MediaServicesAccount      string        `mapstructure:"MEDIA_SERVICES_ACCOUNT"`
	MediaServicesKey          string        `mapstructure:"MEDIA_SERVICES_KEY"`
	MediaServicesPollInterval time.Duration `mapstructure:"MEDIA_SERVICES_POLL_INTERVAL" validate:"gt=0"`
	DefaultProcessor          string        `mapstructure:"DEFAULT_PROCESSOR" validate:"required"`
	MaxCopyTimeout            int           `mapstructure:"MAX_COPY_TIMEOUT" validate:"min=1"`

	// Blob Storage Configuration
	S3Bucket       string `mapstructure:"S3_BUCKET" validate:"required"`
	S3Region       string `mapstructure:"S3_REGION"`
	S3Endpoint     string `mapstructure:"S3_ENDPOINT" validate:"omitempty,url"`
	S3UploadPrefix string `mapstructure:"S3_UPLOAD_PREFIX"`

	// Preset Configuration
	PresetCatalog   string `mapstructure:"PRESET_CATALOG"`
	PresetConfigDir string `mapstructure:"PRESET_CONFIG_DIR"`
}

// CopyTimeout is the lifetime of write locators used while ingesting.
func (c *Config) CopyTimeout() time.Duration {
	return time.Duration(c.MaxCopyTimeout) * time.Hour
}

// UploadLimitBytes parses UPLOAD_LIMIT, e.g. "2G" or "500 MiB".
func (c *Config) UploadLimitBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.UploadLimit)
	if err != nil {
		return 0, fmt.Errorf("parse upload limit %q: %w", c.UploadLimit, err)
	}
	return int64(n), nil
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" {
			viper.BindEnv(tag)
		}

		// Handle nested structs
		if field.Type.Kind() == reflect.Struct && tag == "" {
			nestedTyp := fieldVal.Type()
			for j := 0; j < fieldVal.NumField(); j++ {
				nestedField := nestedTyp.Field(j)
				nestedTag := nestedField.Tag.Get("mapstructure")
				if nestedTag != "" {
					viper.BindEnv(nestedTag)
				}
			}
		}
	}
}

func setDefaults() {
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("BATCH_IDLE_TIMEOUT", 2*time.Hour)
	viper.SetDefault("UPLOAD_LIMIT", "2G")
	viper.SetDefault("RECORD_STORE", RecordStorePostgres)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("MEDIA_SERVICES_POLL_INTERVAL", 5*time.Second)
	viper.SetDefault("DEFAULT_PROCESSOR", "Windows Azure Media Encoder")
	viper.SetDefault("MAX_COPY_TIMEOUT", 8)
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("S3_UPLOAD_PREFIX", "uploads/")
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()
	setDefaults()

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if _, err := cfg.UploadLimitBytes(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.Info("Loaded configuration",
		"port", cfg.WebServerPort,
		"record_store", cfg.RecordStore,
		"media_services_url", cfg.MediaServicesURL,
		"s3_bucket", cfg.S3Bucket,
		"s3_region", cfg.S3Region,
	)

	return &cfg, nil
}
