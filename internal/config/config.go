// Package config loads plan agent configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Store selection: "dir" for a local plan directory, "api" for the
	// remote document store.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"dir"`
	StoreRoot   string `envconfig:"STORE_ROOT" default:".plan"`
	StoreURL    string `envconfig:"STORE_URL"`
	StoreAPIKey string `envconfig:"STORE_API_KEY"`

	// Lock
	Holder    string        `envconfig:"HOLDER"`
	LockLease time.Duration `envconfig:"LOCK_LEASE" default:"10m"`

	// Snapshot loader
	ExtractCacheSize int `envconfig:"EXTRACT_CACHE_SIZE" default:"128"`

	// Diagnostics server (pland)
	MgmtListenAddr string `envconfig:"MGMT_LISTEN_ADDR" default:":8091"`
	MgmtAPIKey     string `envconfig:"MGMT_API_KEY"`
}

// fileConfig is the subset of settings that can live in a per-project
// plan.yaml next to the plan directory.
type fileConfig struct {
	Store struct {
		Driver string `yaml:"driver"`
		Root   string `yaml:"root"`
		URL    string `yaml:"url"`
	} `yaml:"store"`
	LockLease string `yaml:"lock_lease"`
}

// RemoteEnabled returns true if the remote store adapter is configured.
func (c *Config) RemoteEnabled() bool {
	return strings.EqualFold(c.StoreDriver, "api") && c.StoreURL != ""
}

// HolderID returns the configured lock holder identity, falling back to
// user@hostname when PLAN_HOLDER is unset.
func (c *Config) HolderID() string {
	if c.Holder != "" {
		return c.Holder
	}
	name := "agent"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return name
	}
	return name + "@" + host
}

// Load reads configuration from environment variables, then applies a
// plan.yaml override file from the store root if one exists.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("PLAN", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.applyFile(filepath.Join(filepath.Dir(cfg.StoreRoot), "plan.yaml")); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFile merges settings from a plan.yaml file. A missing file is not an
// error; a malformed one is.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if fc.Store.Driver != "" {
		c.StoreDriver = fc.Store.Driver
	}
	if fc.Store.Root != "" {
		c.StoreRoot = fc.Store.Root
	}
	if fc.Store.URL != "" {
		c.StoreURL = fc.Store.URL
	}
	if fc.LockLease != "" {
		lease, err := time.ParseDuration(fc.LockLease)
		if err != nil {
			return fmt.Errorf("parsing lock_lease in %s: %w", path, err)
		}
		c.LockLease = lease
	}
	return nil
}
