// Package config loads service and CLI configuration from a YAML file,
// GSTFILE_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. GSTFILE_GEMINI_MODEL.
const EnvPrefix = "GSTFILE"

// Config is the resolved configuration.
type Config struct {
	Port           string        `mapstructure:"port"`
	Env            string        `mapstructure:"env"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Store          StoreConfig   `mapstructure:"store"`
	Gemini         GeminiConfig  `mapstructure:"gemini"`
	Redis          RedisConfig   `mapstructure:"redis"`
	Pipeline       PipelineCfg   `mapstructure:"pipeline"`
	Logging        LoggingConfig `mapstructure:"logging"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"` // memory or firestore
	ProjectID       string        `mapstructure:"project_id"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	RetentionTTL    time.Duration `mapstructure:"retention_ttl"`
}

type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// RedisConfig enables the model response cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PipelineCfg struct {
	ChunkSize             int     `mapstructure:"chunk_size"`
	ChunkOverlap          int     `mapstructure:"chunk_overlap"`
	RulesPath             string  `mapstructure:"rules_path"`
	LargeInvoiceThreshold float64 `mapstructure:"large_invoice_threshold"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on v. Every key gets a default so that
// AutomaticEnv overrides are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8111")
	v.SetDefault("env", "local")
	v.SetDefault("allowed_origins", []string{"http://localhost:1234", "http://127.0.0.1:1234"})

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.project_id", "")
	v.SetDefault("store.credentials_file", "")
	v.SetDefault("store.retention_ttl", 24*time.Hour)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.timeout", 60*time.Second)
	v.SetDefault("gemini.max_retries", 0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("pipeline.chunk_size", 1500)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.rules_path", "")
	v.SetDefault("pipeline.large_invoice_threshold", 250000.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads configuration into a Config. cfgFile may be empty, in which case
// ./gstfile.yaml and ~/.config/gstfile/config.yaml are searched and a missing
// file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(ExpandPath(cfgFile))
	} else {
		v.SetConfigName("gstfile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "gstfile"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Conventional variables shared with other tooling.
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if p := os.Getenv("PORT"); p != "" && os.Getenv(EnvPrefix+"_PORT") == "" && !v.InConfig("port") {
		cfg.Port = p
	}
	if cfg.Store.ProjectID == "" {
		cfg.Store.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}

	cfg.Store.CredentialsFile = ExpandPath(cfg.Store.CredentialsFile)
	cfg.Pipeline.RulesPath = ExpandPath(cfg.Pipeline.RulesPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "firestore":
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be positive, got %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("pipeline.chunk_overlap must be in [0, chunk_size), got %d", c.Pipeline.ChunkOverlap)
	}
	if c.Pipeline.LargeInvoiceThreshold <= 0 {
		return fmt.Errorf("pipeline.large_invoice_threshold must be positive")
	}
	if c.Gemini.MaxRetries < 0 {
		return fmt.Errorf("gemini.max_retries must not be negative")
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
