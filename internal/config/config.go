// Package config loads service configuration from config.yaml and
// FORMFILLER_* environment variables.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Oracle   OracleConfig   `yaml:"oracle" mapstructure:"oracle"`
	Fields   FieldsConfig   `yaml:"fields" mapstructure:"fields"`
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxFileSize int64  `yaml:"max_file_size" mapstructure:"max_file_size"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
}

// StorageConfig selects where PDF documents are kept.
type StorageConfig struct {
	Backend      string `yaml:"backend" mapstructure:"backend"`
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`
	IngestPrefix string `yaml:"ingest_prefix" mapstructure:"ingest_prefix"`
}

// StoreConfig configures the session record store.
type StoreConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	ProjectID  string `yaml:"project_id" mapstructure:"project_id"`
	Database   string `yaml:"database" mapstructure:"database"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// OracleConfig configures the text-generation provider.
type OracleConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Model     string        `yaml:"model" mapstructure:"model"`
	ProjectID string        `yaml:"project_id" mapstructure:"project_id"`
	Region    string        `yaml:"region" mapstructure:"region"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Rate      float64       `yaml:"rate" mapstructure:"rate"`
	Burst     int           `yaml:"burst" mapstructure:"burst"`
}

// FieldsConfig configures field extraction.
type FieldsConfig struct {
	DuplicatePolicy string `yaml:"duplicate_policy" mapstructure:"duplicate_policy"`
}

// SessionConfig configures session expiry.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// WorkflowConfig names an optional Cloud Workflows workflow started after
// each completed form. Leave ID empty to disable.
type WorkflowConfig struct {
	ProjectID string `yaml:"project_id" mapstructure:"project_id"`
	Location  string `yaml:"location" mapstructure:"location"`
	ID        string `yaml:"id" mapstructure:"id"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORMFILLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.ingest_prefix", "incoming/")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "formfiller.db")
	v.SetDefault("store.collection", "formSessions")
	v.SetDefault("oracle.provider", "none")
	v.SetDefault("oracle.region", "us-central1")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.rate", 5.0)
	v.SetDefault("oracle.burst", 5)
	v.SetDefault("fields.duplicate_policy", "collapse")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.sweep_interval", 10*time.Minute)
	v.SetDefault("workflow.location", "us-central1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects unknown backends and settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return eris.New("config: storage.bucket is required for the gcs backend")
		}
	default:
		return eris.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DSN == "" {
			return eris.New("config: store.dsn is required for the sqlite driver")
		}
	case "firestore":
		if c.Store.ProjectID == "" {
			return eris.New("config: store.project_id is required for the firestore driver")
		}
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	switch c.Oracle.Provider {
	case "none":
	case "vertex":
		if c.Oracle.ProjectID == "" {
			return eris.New("config: oracle.project_id is required for the vertex provider")
		}
	case "anthropic":
		if c.Oracle.APIKey == "" {
			return eris.New("config: oracle.api_key is required for the anthropic provider")
		}
	default:
		return eris.Errorf("config: unknown oracle.provider %q", c.Oracle.Provider)
	}

	switch c.Fields.DuplicatePolicy {
	case "collapse", "per_page":
	default:
		return eris.Errorf("config: unknown fields.duplicate_policy %q", c.Fields.DuplicatePolicy)
	}

	if c.Upload.MaxFileSize <= 0 {
		return eris.New("config: upload.max_file_size must be positive")
	}
	if c.Workflow.ID != "" && c.Workflow.ProjectID == "" {
		return eris.New("config: workflow.project_id is required when workflow.id is set")
	}
	return nil
}

// InitLogger installs the process-wide slog logger.
func InitLogger(cfg LogConfig) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text", "console":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
