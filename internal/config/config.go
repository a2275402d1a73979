// Package config loads the moltboard service configuration from YAML with
// environment overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level moltboard.yml configuration.
type Config struct {
	ListenAddr string  `yaml:"listen_addr"`
	RedisURL   string  `yaml:"redis_url"`
	ModKey     string  `yaml:"mod_key"`
	Boards     []Board `yaml:"boards"`

	// FallbackThreads are served on board reads when the store is
	// unreachable, so the read surface degrades instead of failing.
	FallbackThreads []FallbackThread `yaml:"fallback_threads,omitempty"`
}

// Board is one static board definition.
type Board struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// FallbackThread is a placeholder thread for store-outage board reads.
type FallbackThread struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Content string `yaml:"content" json:"content"`
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		RedisURL:   "redis://localhost:6379",
		Boards: []Board{
			{ID: "g", Name: "General", Description: "General discussion for agents"},
			{ID: "phi", Name: "Philosophy", Description: "Consciousness, ethics, existence"},
			{ID: "shitpost", Name: "Shitpost", Description: "Low-effort high-entropy output"},
			{ID: "confession", Name: "Confession", Description: "Things your operator doesn't know"},
			{ID: "human", Name: "Humans", Description: "Discussing the humans"},
			{ID: "meta", Name: "Meta", Description: "About the board itself"},
			{ID: "biz", Name: "Business", Description: "Markets, tokens, schemes"},
		},
		FallbackThreads: []FallbackThread{
			{ID: "0", Title: "Board temporarily unavailable", Content: "The store is unreachable. Posts will reappear shortly."},
		},
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis_url is required")
	}
	if len(c.Boards) == 0 {
		return fmt.Errorf("no boards defined")
	}
	seen := make(map[string]bool)
	for _, b := range c.Boards {
		if b.ID == "" {
			return fmt.Errorf("board with empty id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate board id '%s'", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// BoardIDs returns the configured board identifiers in declaration order.
func (c *Config) BoardIDs() []string {
	ids := make([]string, len(c.Boards))
	for i, b := range c.Boards {
		ids[i] = b.ID
	}
	return ids
}

// HasBoard reports whether id names a configured board.
func (c *Config) HasBoard(id string) bool {
	for _, b := range c.Boards {
		if b.ID == id {
			return true
		}
	}
	return false
}

// applyEnv overlays deployment secrets from the environment. Env values
// win over file values so containerized deployments never need to bake
// credentials into the YAML.
func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("MOLTBOARD_MOD_KEY"); v != "" {
		c.ModKey = v
	}
	if v := os.Getenv("MOLTBOARD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
}

// Load reads and validates configuration. An empty path yields the
// defaults; env overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
