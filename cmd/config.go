package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/calendar/ics"
	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/reasoner"
)

// Reasoner kinds.
const (
	ReasonerRules  = "rules"
	ReasonerOpenAI = "openai"
)

// OpenAIConfig holds the settings of the OpenAI reasoner. The API key is
// never read from the file; it comes from OPENAI_API_KEY.
type OpenAIConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL     string  `yaml:"base_url,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// Config is the agent configuration shared by resolve and serve.
type Config struct {
	// Reasoner is "rules" (offline, deterministic) or "openai".
	Reasoner string       `yaml:"reasoner"`
	OpenAI   OpenAIConfig `yaml:"openai"`

	MaxRoundTrips int           `yaml:"max_round_trips"`
	CycleTimeout  time.Duration `yaml:"cycle_timeout"`
	// BridgeConcurrency bounds the calendar calls in flight across cycles.
	BridgeConcurrency int `yaml:"bridge_concurrency"`

	// Timezone is the IANA zone queries are interpreted in when the
	// caller gives none. Empty means the local zone.
	Timezone string `yaml:"timezone"`

	// Accounts are the Google accounts used from the token cache.
	Accounts []string `yaml:"accounts"`

	// ICS switches to the read-only ICS port when non-empty.
	ICS []ics.Source `yaml:"ics"`
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return &Config{
		Reasoner: ReasonerRules,
		OpenAI: OpenAIConfig{
			Model:       reasoner.DefaultModel,
			Temperature: reasoner.DefaultTemperature,
			MaxTokens:   reasoner.DefaultMaxTokens,
		},
		MaxRoundTrips:     agent.DefaultMaxRoundTrips,
		CycleTimeout:      60 * time.Second,
		BridgeConcurrency: agent.DefaultMaxInFlight,
		Accounts:          []string{google.DefaultAccount},
	}
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	d := DefaultConfig()
	c.Reasoner = strings.ToLower(strings.TrimSpace(c.Reasoner))
	if c.Reasoner == "" {
		c.Reasoner = d.Reasoner
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = d.OpenAI.Model
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = d.OpenAI.Temperature
	}
	if c.OpenAI.MaxTokens <= 0 {
		c.OpenAI.MaxTokens = d.OpenAI.MaxTokens
	}
	if c.MaxRoundTrips <= 0 {
		c.MaxRoundTrips = d.MaxRoundTrips
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	if c.BridgeConcurrency <= 0 {
		c.BridgeConcurrency = d.BridgeConcurrency
	}
	if len(c.Accounts) == 0 {
		c.Accounts = d.Accounts
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Reasoner {
	case ReasonerRules, ReasonerOpenAI:
	default:
		return fmt.Errorf("unknown reasoner %q (supported: %s, %s)", c.Reasoner, ReasonerRules, ReasonerOpenAI)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, account := range c.Accounts {
		if err := google.ValidateAccountName(account); err != nil {
			return err
		}
	}
	return nil
}

// Location returns the configured zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, google.AppName, "config.yaml")
}

// LoadConfig reads path. A missing file yields the defaults unless the path
// was given explicitly.
func LoadConfig(path string, explicit bool) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
