package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Download     DownloadConfig     `mapstructure:"download" yaml:"download"`
	Search       SearchPolicy       `mapstructure:"search" yaml:"search"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery" yaml:"discovery"`
	Health       HealthConfig       `mapstructure:"health" yaml:"health"`
	Slskd        SlskdConfig        `mapstructure:"slskd" yaml:"slskd"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir          string `mapstructure:"base_dir" yaml:"base_dir"`
	CompletedDir     string `mapstructure:"completed_dir" yaml:"completed_dir"`
	LogsDir          string `mapstructure:"logs_dir" yaml:"logs_dir"`
	MaxConcurrent    int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	AutoStartWorkers bool   `mapstructure:"auto_start_workers" yaml:"auto_start_workers"`
}

// DiscoveryConfig bounds the raw network search
type DiscoveryConfig struct {
	SearchTimeout time.Duration `mapstructure:"search_timeout" yaml:"search_timeout"`
	ResponseLimit int           `mapstructure:"response_limit" yaml:"response_limit"`
	FileLimit     int           `mapstructure:"file_limit" yaml:"file_limit"`
}

// HealthConfig contains the stall watchdog tunables
type HealthConfig struct {
	TickInterval          time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	StallTicksBeforeRetry int           `mapstructure:"stall_ticks_before_retry" yaml:"stall_ticks_before_retry"`
	MaxAutoRetries        int           `mapstructure:"max_auto_retries" yaml:"max_auto_retries"`
	ZombieThreshold       time.Duration `mapstructure:"zombie_threshold" yaml:"zombie_threshold"`
}

// SlskdConfig contains the Soulseek daemon connection
type SlskdConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	DownloadsDir      string        `mapstructure:"downloads_dir" yaml:"downloads_dir"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// StorageConfig contains the outcome store location
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Method  string `mapstructure:"method" yaml:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json, console
	OutputPath string `mapstructure:"output_path" yaml:"output_path"` // stdout, stderr, or file path
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8686,
		},
		Download: DownloadConfig{
			BaseDir:          "$HOME/Music/trackfetch",
			CompletedDir:     "$HOME/Music/trackfetch/completed",
			LogsDir:          "$HOME/Music/trackfetch/logs",
			MaxConcurrent:    2,
			AutoStartWorkers: true,
		},
		Search: DefaultSearchPolicy(),
		Discovery: DiscoveryConfig{
			SearchTimeout: 45 * time.Second,
			ResponseLimit: 250,
			FileLimit:     5000,
		},
		Health: HealthConfig{
			TickInterval:          15 * time.Second,
			StallTicksBeforeRetry: 4,
			MaxAutoRetries:        3,
			ZombieThreshold:       5 * time.Minute,
		},
		Slskd: SlskdConfig{
			URL:               "http://localhost:5030",
			DownloadsDir:      "$HOME/.local/share/slskd/downloads",
			PollInterval:      2 * time.Second,
			RequestsPerSecond: 5,
			RequestTimeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "$HOME/Music/trackfetch/trackfetch.db",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
