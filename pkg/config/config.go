package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the full service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Driver   DriverConfig   `yaml:"driver" json:"driver"`
	Sessions SessionsConfig `yaml:"sessions" json:"sessions"`
	Actions  ActionsConfig  `yaml:"actions" json:"actions"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig defines the HTTP listener
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// Mode is the gin mode: release, debug or test
	Mode string `yaml:"mode" json:"mode"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Backend names the automation driver implementation
type Backend string

const (
	// BackendPlaywright drives Chromium through the Playwright driver
	BackendPlaywright Backend = "playwright"
	// BackendChromedp drives Chromium directly over the DevTools protocol
	BackendChromedp Backend = "chromedp"
)

// DriverConfig defines how the shared browser process is launched
type DriverConfig struct {
	Backend  Backend `yaml:"backend" json:"backend"`
	Headless bool    `yaml:"headless" json:"headless"`

	// ExtraArgs are appended to the fixed launch flags
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`

	// ExecutablePath overrides the bundled browser binary
	ExecutablePath string `yaml:"executable_path" json:"executable_path"`

	// InstallBrowsers downloads the Playwright driver and Chromium on startup
	InstallBrowsers bool `yaml:"install_browsers" json:"install_browsers"`

	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	ViewportWidth  int    `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" json:"viewport_height"`

	// Stealth attaches the automation-detection suppression script to every new page
	Stealth bool `yaml:"stealth" json:"stealth"`
}

// SessionsConfig defines registry limits
type SessionsConfig struct {
	// MaxSessions caps concurrently open sessions; 0 means unlimited
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`

	// IdleTimeout closes sessions unused for this long; 0 disables reaping
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	ReapInterval time.Duration `yaml:"reap_interval" json:"reap_interval"`
}

// ActionsConfig defines per-action timing
type ActionsConfig struct {
	NavigateTimeout    time.Duration `yaml:"navigate_timeout" json:"navigate_timeout"`
	ActionTimeout      time.Duration `yaml:"action_timeout" json:"action_timeout"`
	DefaultSettleDelay time.Duration `yaml:"default_settle_delay" json:"default_settle_delay"`
	MaxSettleDelay     time.Duration `yaml:"max_settle_delay" json:"max_settle_delay"`
	MaxExtractLength   int           `yaml:"max_extract_length" json:"max_extract_length"`
}

// SecurityConfig restricts navigation targets with glob patterns
type SecurityConfig struct {
	AllowedURLs []string `yaml:"allowed_urls" json:"allowed_urls"`
	DeniedURLs  []string `yaml:"denied_urls" json:"denied_urls"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// Default values
const (
	DefaultPort           = 8000
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultMaxSessions    = 50
	DefaultMaxExtract     = 10000
)

// DefaultConfig returns a configuration suitable for a single-host deployment
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultPort,
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Driver: DriverConfig{
			Backend:         BackendPlaywright,
			Headless:        true,
			InstallBrowsers: true,
			UserAgent:       DefaultUserAgent,
			ViewportWidth:   DefaultViewportWidth,
			ViewportHeight:  DefaultViewportHeight,
			Stealth:         true,
		},
		Sessions: SessionsConfig{
			MaxSessions:  DefaultMaxSessions,
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Actions: ActionsConfig{
			NavigateTimeout:    30 * time.Second,
			ActionTimeout:      30 * time.Second,
			DefaultSettleDelay: time.Second,
			MaxSettleDelay:     30 * time.Second,
			MaxExtractLength:   DefaultMaxExtract,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig, applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HAMMER_* variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	if v, ok := lookup("HAMMER_HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if v, ok := lookup("HAMMER_PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid HAMMER_PORT %q: %w", v, err))
		} else {
			c.Server.Port = p
		}
	}
	if v, ok := lookup("HAMMER_DRIVER"); ok && v != "" {
		c.Driver.Backend = Backend(strings.ToLower(v))
	}
	if v, ok := lookup("HAMMER_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid HAMMER_HEADLESS %q: %w", v, err))
		} else {
			c.Driver.Headless = b
		}
	}
	if v, ok := lookup("HAMMER_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("HAMMER_MAX_SESSIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid HAMMER_MAX_SESSIONS %q: %w", v, err))
		} else {
			c.Sessions.MaxSessions = n
		}
	}
	if v, ok := lookup("HAMMER_IDLE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid HAMMER_IDLE_TIMEOUT %q: %w", v, err))
		} else {
			c.Sessions.IdleTimeout = d
		}
	}

	return errors.Join(errs...)
}

// Address returns the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate validates the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Server.Port))
	}

	validModes := map[string]bool{
		"release": true,
		"debug":   true,
		"test":    true,
	}
	if !validModes[c.Server.Mode] {
		errs = append(errs, fmt.Errorf("invalid server mode: %s (must be 'release', 'debug', or 'test')", c.Server.Mode))
	}

	if c.Driver.Backend != BackendPlaywright && c.Driver.Backend != BackendChromedp {
		errs = append(errs, fmt.Errorf("invalid driver backend: %s (must be 'playwright' or 'chromedp')", c.Driver.Backend))
	}

	if c.Driver.ViewportWidth <= 0 || c.Driver.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport dimensions must be positive"))
	}

	if c.Sessions.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("max_sessions cannot be negative"))
	}

	if c.Sessions.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle_timeout cannot be negative"))
	}

	if c.Sessions.IdleTimeout > 0 && c.Sessions.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("reap_interval must be positive when idle_timeout is set"))
	}

	if c.Actions.NavigateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("navigate_timeout must be positive"))
	}

	if c.Actions.ActionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("action_timeout must be positive"))
	}

	if c.Actions.DefaultSettleDelay < 0 || c.Actions.MaxSettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delays cannot be negative"))
	}

	if c.Actions.DefaultSettleDelay > c.Actions.MaxSettleDelay {
		errs = append(errs, fmt.Errorf("default_settle_delay (%s) exceeds max_settle_delay (%s)", c.Actions.DefaultSettleDelay, c.Actions.MaxSettleDelay))
	}

	if c.Actions.MaxExtractLength <= 0 {
		errs = append(errs, fmt.Errorf("max_extract_length must be positive"))
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level))
	}

	return errors.Join(errs...)
}
