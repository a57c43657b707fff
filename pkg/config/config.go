// Package config loads Relay's YAML configuration. Every field has a
// working default so the engine runs with no config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Automation AutomationConfig `yaml:"automation"`
	Browser    BrowserConfig    `yaml:"browser"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
}

// ServerConfig configures the HTTP command surface.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// AutomationConfig configures the executor and orchestrator.
type AutomationConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	ActionTimeout   time.Duration `yaml:"action_timeout"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
}

// BrowserConfig configures browser session launch.
type BrowserConfig struct {
	Headless    bool          `yaml:"headless"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// ComplianceConfig configures the usage advisor. Limits maps a run type to
// its maximum per window.
type ComplianceConfig struct {
	Window time.Duration  `yaml:"window"`
	Limits map[string]int `yaml:"limits"`
}

// ProfilesConfig configures the profile store.
type ProfilesConfig struct {
	DBPath string `yaml:"db_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: "127.0.0.1:8731"},
		Automation: AutomationConfig{
			MaxRetries:      2,
			ActionTimeout:   30 * time.Second,
			ApprovalTimeout: 5 * time.Minute,
		},
		Browser: BrowserConfig{
			Headless:    true,
			IdleTimeout: 30 * time.Minute,
		},
		Compliance: ComplianceConfig{
			Window: 24 * time.Hour,
			Limits: map[string]int{
				"connect": 20,
				"message": 50,
				"follow":  30,
				"dm":      30,
			},
		},
		Profiles: ProfilesConfig{DBPath: defaultDBPath()},
	}
}

// Load reads the config file at path, filling missing fields with defaults.
// A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the conventional config file location,
// ~/.relay/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".relay", "config.yaml")
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "relay.db"
	}
	return filepath.Join(homeDir, ".relay", "relay.db")
}
