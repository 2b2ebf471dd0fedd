// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/digiready/internal/types"
	"gopkg.in/yaml.v3"
)

// Defaults for the endpoints and loop timings.
const (
	DefaultAPIURL            = "https://api.digiready.thepotentia.com/"
	DefaultPortalURL         = "http://localhost:5000/api/"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultPollSeconds       = 3
	DefaultTimerSyncSeconds  = 10
	DefaultHTTPTimeoutSecond = 30
)

// Expiry policies applied when the countdown reaches zero.
const (
	ExpirySoft   = "soft"
	ExpiryLock   = "lock"
	ExpirySubmit = "submit"
)

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Endpoints
	APIURL      string `json:"api_url,omitempty" yaml:"api_url,omitempty"`           // Scoring API base URL
	PortalURL   string `json:"portal_url,omitempty" yaml:"portal_url,omitempty"`     // Portal backend base URL
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL URL; stores results directly when set
	TokenFile   string `json:"token_file,omitempty" yaml:"token_file,omitempty"`     // Where the portal token is kept

	// Logging
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"` // console or json

	// Assessment behavior
	Expiry             string        `json:"expiry,omitempty" yaml:"expiry,omitempty"` // soft, lock or submit
	PollSeconds        int           `json:"poll_seconds,omitempty" yaml:"poll_seconds,omitempty"`
	TimerSyncSeconds   int           `json:"timer_sync_seconds,omitempty" yaml:"timer_sync_seconds,omitempty"`
	HTTPTimeoutSeconds int           `json:"http_timeout_seconds,omitempty" yaml:"http_timeout_seconds,omitempty"`
	Stage              int           `json:"stage,omitempty" yaml:"stage,omitempty"`
	AllocatedSeconds   int           `json:"allocated_seconds,omitempty" yaml:"allocated_seconds,omitempty"`
	Profile            types.Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIURL:             DefaultAPIURL,
		PortalURL:          DefaultPortalURL,
		TokenFile:          defaultTokenFile(),
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		Expiry:             ExpirySoft,
		PollSeconds:        DefaultPollSeconds,
		TimerSyncSeconds:   DefaultTimerSyncSeconds,
		HTTPTimeoutSeconds: DefaultHTTPTimeoutSecond,
	}
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".digiready", "token")
	}
	return filepath.Join(home, ".digiready", "token")
}

// LoadConfig loads configuration from a JSON file, or YAML when the extension is
// .yaml or .yml. Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	switch c.Expiry {
	case "", ExpirySoft, ExpiryLock, ExpirySubmit:
	default:
		return fmt.Errorf("config error: 'expiry' must be one of soft, lock, submit (got %q)", c.Expiry)
	}

	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("config error: 'log_format' must be console or json (got %q)", c.LogFormat)
	}

	if c.PollSeconds < 0 || c.TimerSyncSeconds < 0 || c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("config error: intervals must be non-negative")
	}
	if c.AllocatedSeconds < 0 {
		return fmt.Errorf("config error: 'allocated_seconds' must be non-negative")
	}
	if c.Stage != 0 && !types.StageCode(c.Stage).Valid() {
		return fmt.Errorf("config error: 'stage' must be 3, 4 or 34 (got %d)", c.Stage)
	}
	if c.Profile.Level < 0 || c.Profile.Level > 4 {
		return fmt.Errorf("config error: 'profile.level' must be between 1 and 4")
	}

	for name, raw := range map[string]string{"api_url": c.APIURL, "portal_url": c.PortalURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config error: '%s' is not a valid URL: %s", name, raw)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with unset fields filled from defaults.
// This is used to layer config file values over environment values over built-ins.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.APIURL == "" {
		result.APIURL = defaults.APIURL
	}
	if result.PortalURL == "" {
		result.PortalURL = defaults.PortalURL
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.TokenFile == "" {
		result.TokenFile = defaults.TokenFile
	}
	if result.LogLevel == "" {
		result.LogLevel = defaults.LogLevel
	}
	if result.LogFormat == "" {
		result.LogFormat = defaults.LogFormat
	}
	if result.Expiry == "" {
		result.Expiry = defaults.Expiry
	}

	// Int fields: use default if zero
	if result.PollSeconds == 0 {
		result.PollSeconds = defaults.PollSeconds
	}
	if result.TimerSyncSeconds == 0 {
		result.TimerSyncSeconds = defaults.TimerSyncSeconds
	}
	if result.HTTPTimeoutSeconds == 0 {
		result.HTTPTimeoutSeconds = defaults.HTTPTimeoutSeconds
	}
	if result.Stage == 0 {
		result.Stage = defaults.Stage
	}
	if result.AllocatedSeconds == 0 {
		result.AllocatedSeconds = defaults.AllocatedSeconds
	}

	// Profile fields merge individually
	p, d := &result.Profile, defaults.Profile
	if p.Level == 0 {
		p.Level = d.Level
	}
	if p.Industry == "" {
		p.Industry = d.Industry
	}
	if p.Company == "" {
		p.Company = d.Company
	}
	if p.Geography == "" {
		p.Geography = d.Geography
	}
	if p.Function == "" {
		p.Function = d.Function
	}
	if p.Division == "" {
		p.Division = d.Division
	}

	return result
}
