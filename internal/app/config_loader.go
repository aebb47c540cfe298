package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/trackfetch-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	// Set up viper
	v := viper.New()
	v.SetConfigType("yaml")

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.trackfetch")
		v.AddConfigPath("/etc/trackfetch")
	}

	// Read environment variables, e.g. TRACKFETCH_SLSKD_API_KEY
	v.SetEnvPrefix("TRACKFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables in paths
	config = expandPaths(config)

	// Validate config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers the keys that are commonly set from the environment
// so AutomaticEnv picks them up even when no config file mentions them.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.host",
		"server.port",
		"download.base_dir",
		"download.completed_dir",
		"download.max_concurrent",
		"search.priority",
		"slskd.url",
		"slskd.api_key",
		"slskd.downloads_dir",
		"storage.database_path",
		"logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.BaseDir = expandPath(config.Download.BaseDir)
	config.Download.CompletedDir = expandPath(config.Download.CompletedDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Slskd.DownloadsDir = expandPath(config.Slskd.DownloadsDir)
	config.Storage.DatabasePath = expandPath(config.Storage.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// Replace $HOME even when HOME is unset in the environment
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	// Expand remaining environment variables
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.CompletedDir == "" {
		return fmt.Errorf("download completed directory not configured")
	}

	if config.Download.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent downloads must be at least 1")
	}

	if err := config.Search.Validate(); err != nil {
		return fmt.Errorf("search policy: %w", err)
	}

	if config.Discovery.SearchTimeout <= 0 {
		return fmt.Errorf("discovery search timeout must be positive")
	}

	if config.Health.TickInterval <= 0 {
		return fmt.Errorf("health tick interval must be positive")
	}
	if config.Health.StallTicksBeforeRetry < 1 {
		return fmt.Errorf("stall ticks before retry must be at least 1")
	}
	if config.Health.MaxAutoRetries < 0 {
		return fmt.Errorf("max auto retries cannot be negative")
	}
	if config.Health.ZombieThreshold <= 0 {
		return fmt.Errorf("zombie threshold must be positive")
	}

	if config.Slskd.URL == "" {
		return fmt.Errorf("slskd url not configured")
	}
	if config.Slskd.PollInterval <= 0 {
		return fmt.Errorf("slskd poll interval must be positive")
	}

	if config.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %q", config.Metrics.Path)
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Marshal config to viper
	v.Set("server", config.Server)
	v.Set("download", config.Download)
	v.Set("search", config.Search)
	v.Set("discovery", config.Discovery)
	v.Set("health", config.Health)
	v.Set("slskd", config.Slskd)
	v.Set("storage", config.Storage)
	v.Set("notification", config.Notification)
	v.Set("logging", config.Logging)
	v.Set("metrics", config.Metrics)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
