package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config is the engine configuration, loaded from portfolio-db.config.json
// (or the file given with --config) plus environment overrides.
type Config struct {
	Version         string   `json:"version" mapstructure:"version"`
	DeclarationsDir string   `json:"declarations_dir" mapstructure:"declarations_dir"`
	ReportPath      string   `json:"report_path" mapstructure:"report_path"`
	Workers         int      `json:"workers" mapstructure:"workers"`
	Database        Database `json:"database" mapstructure:"database"`
	Log             Log      `json:"log" mapstructure:"log"`
}

// Database names the provider and the environment variable holding the URL.
type Database struct {
	Provider string `json:"provider" mapstructure:"provider"`
	URLEnv   string `json:"url_env" mapstructure:"url_env"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// DefaultWorkers bounds concurrent seed transactions; conservative so the
// engine never exhausts a small connection limit.
const DefaultWorkers = 4

func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.DeclarationsDir == "" {
		cfg.DeclarationsDir = "db/declarations"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Database.Provider == "" {
		cfg.Database.Provider = "postgresql"
	}
	if cfg.Database.URLEnv == "" {
		cfg.Database.URLEnv = "DATABASE_URL"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	supportedProviders := []string{"postgresql", "postgres", "mysql", "sqlite", "sqlite3"}
	supported := false
	for _, provider := range supportedProviders {
		if c.Database.Provider == provider {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported database provider: %s. Supported providers: %v", c.Database.Provider, supportedProviders)
	}

	if c.DeclarationsDir == "" {
		return fmt.Errorf("declarations_dir cannot be empty")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	return nil
}

// GetDatabaseURL resolves the datastore URL from the configured env var.
func (c *Config) GetDatabaseURL() (string, error) {
	dbURL := os.Getenv(c.Database.URLEnv)
	if dbURL == "" {
		return "", fmt.Errorf("database URL not found in environment variable %s", c.Database.URLEnv)
	}
	return dbURL, nil
}
