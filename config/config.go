// Package config defines the OpenClaw HQ application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level HQ configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Agents   []AgentConfig  `json:"agents" yaml:"agents"`
	DBPath   string         `json:"db_path" yaml:"db_path"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":8420"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// DispatchConfig controls how agent processes are invoked.
type DispatchConfig struct {
	// Command is the agent CLI binary on PATH.
	Command string `json:"command" yaml:"command"`
	// Timeout bounds a single agent run. An agent that exceeds it is
	// killed and its task marked blocked.
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// Duration wraps time.Duration so YAML values like "10m" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AgentConfig defines a single agent roster entry.
type AgentConfig struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role" yaml:"role"`
	Model string `json:"model,omitempty" yaml:"model"`
}

// DefaultConfig returns a config with sensible defaults, including the
// stock agent roster.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8420",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Dispatch: DispatchConfig{
			Command: "openclaw",
			Timeout: Duration(10 * time.Minute),
		},
		DBPath:   "openclaw-hq.db",
		LogLevel: "info",
		Agents: []AgentConfig{
			{ID: "claw", Name: "Claw", Role: "System Admin", Model: "deepseek-reasoner"},
			{ID: "bernard", Name: "Bernard", Role: "Developer", Model: "deepseek-reasoner"},
			{ID: "vale", Name: "Vale", Role: "Marketer", Model: "deepseek-chat"},
			{ID: "gumbo", Name: "Gumbo", Role: "Assistant", Model: "deepseek-chat"},
		},
	}
}

// Load reads a YAML config file and merges it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Dispatch.Timeout <= 0 {
		cfg.Dispatch.Timeout = Duration(10 * time.Minute)
	}
	return cfg, nil
}
