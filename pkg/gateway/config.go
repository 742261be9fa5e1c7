// Copyright 2024-2026 Aiku AI

package gateway

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the gateway configuration.
type Config struct {
	// Listen is the address the IRC listener binds to.
	Listen string `yaml:"listen"`
	// ServerName is the prefix used on server-originated replies.
	ServerName string `yaml:"server_name"`

	// APIKey is the Lingr API key used when creating sessions.
	APIKey string `yaml:"api_key"`
	// APIBaseURL overrides the Lingr API endpoint. Empty means production.
	APIBaseURL string `yaml:"api_base_url"`

	// ObserveBackoffMinMS and ObserveBackoffMaxMS bound the exponential
	// backoff applied when an observe call fails transiently.
	ObserveBackoffMinMS int `yaml:"observe_backoff_min_ms"`
	ObserveBackoffMaxMS int `yaml:"observe_backoff_max_ms"`

	backoffMin time.Duration `yaml:"-"`
	backoffMax time.Duration `yaml:"-"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess applies defaults and validates the configuration.
func (c *Config) PostProcess() error {
	if c.Listen == "" {
		c.Listen = "localhost:16669"
	}
	if c.ServerName == "" {
		c.ServerName = "lingrgw"
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.ObserveBackoffMinMS <= 0 {
		c.ObserveBackoffMinMS = 250
	}
	if c.ObserveBackoffMaxMS <= 0 {
		c.ObserveBackoffMaxMS = 30_000
	}
	if c.ObserveBackoffMaxMS < c.ObserveBackoffMinMS {
		return fmt.Errorf("observe_backoff_max_ms (%d) below observe_backoff_min_ms (%d)",
			c.ObserveBackoffMaxMS, c.ObserveBackoffMinMS)
	}
	c.backoffMin = time.Duration(c.ObserveBackoffMinMS) * time.Millisecond
	c.backoffMax = time.Duration(c.ObserveBackoffMaxMS) * time.Millisecond
	return nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "listen")
	helper.Copy(up.Str, "server_name")
	helper.Copy(up.Str, "api_key")
	helper.Copy(up.Str, "api_base_url")
	helper.Copy(up.Int, "observe_backoff_min_ms")
	helper.Copy(up.Int, "observe_backoff_max_ms")
}

// upgradeConfigData merges a config file into the embedded example: user
// values win, keys added since the file was written appear with their
// documented defaults and comments.
func upgradeConfigData(data []byte) ([]byte, error) {
	var base, user yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	upgradeConfig(up.NewHelper(&base, &user))
	return yaml.Marshal(&base)
}

// LoadConfig reads a config file and migrates it to the current key set
// before decoding. The migrated file is written back so newly introduced
// keys show up on disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	upgraded, err := upgradeConfigData(data)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(upgraded, data) {
		// Save is best effort: a read-only config file is still usable.
		_ = os.WriteFile(path, upgraded, 0o600)
	}
	var cfg Config
	if err := yaml.Unmarshal(upgraded, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
