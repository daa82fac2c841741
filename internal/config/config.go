// Package config loads the agent service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Server  ServerConfig  `yaml:"server"`
	Output  OutputConfig  `yaml:"output"`
	Archive ArchiveConfig `yaml:"archive"`
}

// LLMConfig configures the model-call boundary.
type LLMConfig struct {
	// Model names the model; empty selects the client default.
	Model string `yaml:"model"`
	// MaxTokens caps each response.
	MaxTokens int64 `yaml:"max_tokens"`
	// RequestsPerMinute throttles calls across all sessions; 0 disables.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// APIKey is usually left empty so the key comes from the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string `yaml:"api_key,omitempty"`
}

// AgentConfig tunes the synthesis loop.
type AgentConfig struct {
	// MaxIterations is the hard iteration ceiling per run.
	MaxIterations int `yaml:"max_iterations"`
	// ConfidenceThreshold accepts completion without the evaluator's
	// explicit flag.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
	// Heartbeat is how long a stream reader waits for an event before
	// sending a synthetic heartbeat, e.g. "30s".
	Heartbeat string `yaml:"heartbeat"`
	// Retention is how long terminal sessions stay addressable after
	// they finish, e.g. "1h".
	Retention string `yaml:"retention"`
}

// OutputConfig configures where finished documents land.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// ArchiveConfig configures the SQLite run archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens:         8192,
			RequestsPerMinute: 30,
		},
		Agent: AgentConfig{
			MaxIterations:       5,
			ConfidenceThreshold: 0.85,
		},
		Server: ServerConfig{
			Addr:      ":8080",
			Heartbeat: "30s",
			Retention: "1h",
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "output/runs.db",
		},
	}
}

// Load reads a YAML configuration file, layering it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the loop or server cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.ConfidenceThreshold < 0 || c.Agent.ConfidenceThreshold > 1 {
		return fmt.Errorf("agent.confidence_threshold must be in [0, 1], got %v", c.Agent.ConfidenceThreshold)
	}
	if _, err := c.HeartbeatInterval(); err != nil {
		return err
	}
	if _, err := c.RetentionWindow(); err != nil {
		return err
	}
	return nil
}

// HeartbeatInterval parses the heartbeat setting.
func (c *Config) HeartbeatInterval() (time.Duration, error) {
	return parseDuration("server.heartbeat", c.Server.Heartbeat, 30*time.Second)
}

// RetentionWindow parses the session retention setting.
func (c *Config) RetentionWindow() (time.Duration, error) {
	return parseDuration("server.retention", c.Server.Retention, time.Hour)
}

// parseDuration extends time.ParseDuration with day suffixes ("7d") the
// way operators tend to write retention windows.
func parseDuration(key, s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	var days int
	if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && fmt.Sprintf("%dd", days) == s {
		if days <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %q", key, s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, s)
	}
	return d, nil
}
