package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig       `yaml:"log"`
	Tool            ToolConfig      `yaml:"tool"`
	Paths           PathsConfig     `yaml:"paths"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Database        DatabaseConfig  `yaml:"database"`
	Ledger          LedgerConfig    `yaml:"ledger"`
	Control         ControlConfig   `yaml:"control"`
	Watch           WatchConfig     `yaml:"watch"`
	Script          string          `yaml:"script"`           // Optional Lua adjust script, empty = disabled
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level         string   `yaml:"level"`
	Colors        bool     `yaml:"colors"`
	JSON          bool     `yaml:"json"`
	PrintSchedule Duration `yaml:"print_schedule"` // Interval to print schedule (0 = disabled)
}

// ToolConfig points at the ControlMyMonitor executable
type ToolConfig struct {
	Path    string   `yaml:"path"`
	Timeout Duration `yaml:"timeout"` // Per invocation
}

// PathsConfig contains working directories
type PathsConfig struct {
	Config string `yaml:"config"` // Per-display schedule files
	Temp   string `yaml:"temp"`   // Tool dumps
}

// SchedulerConfig contains apply loop settings
type SchedulerConfig struct {
	Period       Duration `yaml:"period"`
	Timezone     string   `yaml:"timezone"`
	ApplyTimeout Duration `yaml:"apply_timeout"`
	Autostart    *bool    `yaml:"autostart"`
}

// IsAutostart returns true unless autostart is explicitly disabled
func (c *SchedulerConfig) IsAutostart() bool {
	return c.Autostart == nil || *c.Autostart
}

// Location resolves the configured timezone
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains apply history settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	RetentionPeriod Duration `yaml:"retention_period"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// IsEnabled returns true unless the ledger is explicitly disabled
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ControlConfig contains local HTTP control API settings
type ControlConfig struct {
	Enabled        *bool   `yaml:"enabled"`
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	ApplyRateLimit float64 `yaml:"apply_rate_limit"` // Manual applies per second
}

// IsEnabled returns true unless the control API is explicitly disabled
func (c *ControlConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// WatchConfig contains schedule file watcher settings
type WatchConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Debounce Duration `yaml:"debounce"`
}

// IsEnabled returns true unless watching is explicitly disabled
func (c *WatchConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

func setDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Tool defaults
	if cfg.Tool.Path == "" {
		cfg.Tool.Path = "ControlMyMonitor.exe"
	}
	if cfg.Tool.Timeout == 0 {
		cfg.Tool.Timeout = Duration(30 * time.Second)
	}

	if cfg.Paths.Config == "" {
		cfg.Paths.Config = "./Config"
	}
	if cfg.Paths.Temp == "" {
		cfg.Paths.Temp = "./Temp"
	}

	// Scheduler defaults
	if cfg.Scheduler.Period == 0 {
		cfg.Scheduler.Period = Duration(time.Minute)
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}
	if cfg.Scheduler.ApplyTimeout == 0 {
		cfg.Scheduler.ApplyTimeout = Duration(30 * time.Second)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./monitord.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.RetentionPeriod == 0 {
		cfg.Ledger.RetentionPeriod = Duration(30 * 24 * time.Hour)
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	// Control API defaults
	if cfg.Control.Host == "" {
		cfg.Control.Host = "127.0.0.1"
	}
	if cfg.Control.Port == 0 {
		cfg.Control.Port = 9240
	}
	if cfg.Control.ApplyRateLimit == 0 {
		cfg.Control.ApplyRateLimit = 1.0
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(500 * time.Millisecond)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
