// Package config loads and validates tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ratectl/ratectl/internal/common"
)

// Defaults applied when neither config file, environment, nor flags set a
// value.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 50
)

// Server holds the connection settings for the platform API.
type Server struct {
	URL                string
	Username           string
	Password           string
	Token              string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Import holds CSV import settings.
type Import struct {
	CSVDir    string
	BatchSize int
}

// Config is the full tool configuration.
type Config struct {
	Server Server
	Import Import
}

// Load assembles configuration from viper (config file, RATECTL_* env vars,
// bound flags) and validates it.
func Load() (*Config, error) {
	viper.SetDefault("server.timeout", DefaultTimeout)
	viper.SetDefault("import.batch_size", DefaultBatchSize)
	viper.SetDefault("import.csv_dir", ".")

	cfg := &Config{
		Server: Server{
			URL:                strings.TrimRight(viper.GetString("server.url"), "/"),
			Username:           viper.GetString("server.username"),
			Password:           viper.GetString("server.password"),
			Token:              viper.GetString("server.token"),
			Timeout:            viper.GetDuration("server.timeout"),
			InsecureSkipVerify: viper.GetBool("server.insecure_skip_verify"),
		},
		Import: Import{
			CSVDir:    expandPath(viper.GetString("import.csv_dir")),
			BatchSize: viper.GetInt("import.batch_size"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable before any network call.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("%w: server.url is required", common.ErrMissingConfig)
	}
	if c.Server.Token == "" && (c.Server.Username == "" || c.Server.Password == "") {
		return fmt.Errorf("%w: server.username and server.password (or server.token) are required", common.ErrMissingConfig)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("%w: server.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.Import.BatchSize < 1 {
		return fmt.Errorf("%w: import.batch_size must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}

// expandPath expands ~ and environment variables in a file path.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
