// Package config loads agentmux's spawn profiles from config.yaml.
//
// The protocol engine never reads configuration itself; this package
// exists so host applications can build agent and app-server options
// from a single user-editable file.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Agent     AgentProfile     `yaml:"agent"`
	AppServer AppServerProfile `yaml:"app_server"`
}

// AgentProfile configures how agent CLI sessions are spawned.
type AgentProfile struct {
	Executable        string            `yaml:"executable,omitempty"`
	Model             string            `yaml:"model,omitempty"`
	PermissionMode    string            `yaml:"permission_mode,omitempty"`
	MaxTurns          int               `yaml:"max_turns,omitempty"`
	MaxThinkingTokens int               `yaml:"max_thinking_tokens,omitempty"`
	AllowedTools      []string          `yaml:"allowed_tools,omitempty"`
	DisallowedTools   []string          `yaml:"disallowed_tools,omitempty"`
	WorkingDir        string            `yaml:"working_dir,omitempty"`
	Env               map[string]string `yaml:"env,omitempty"`
}

// AppServerProfile configures how app-server CLI sessions are spawned.
type AppServerProfile struct {
	Executable      string            `yaml:"executable,omitempty"`
	ConfigOverrides map[string]string `yaml:"config_overrides,omitempty"`
	WorkingDir      string            `yaml:"working_dir,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
}

// validPermissionModes is the set of recognized agent permission modes.
var validPermissionModes = map[string]bool{
	"default":           true,
	"acceptEdits":       true,
	"bypassPermissions": true,
	"plan":              true,
	"dontAsk":           true,
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent:     AgentProfile{Executable: "claude"},
		AppServer: AppServerProfile{Executable: "codex"},
	}
}

// Parse unmarshals and validates a raw config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that would otherwise fail deep inside a
// spawn attempt.
func (c *Config) Validate() error {
	if mode := c.Agent.PermissionMode; mode != "" && !validPermissionModes[mode] {
		return fmt.Errorf("invalid permission_mode %q", mode)
	}
	if c.Agent.MaxTurns < 0 {
		return fmt.Errorf("max_turns must not be negative, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.MaxThinkingTokens < 0 {
		return fmt.Errorf("max_thinking_tokens must not be negative, got %d", c.Agent.MaxThinkingTokens)
	}
	return nil
}

// Merge overlays cfg on top of defaults, field by field. cfg wins where
// it sets a value.
func Merge(cfg, defaults *Config) *Config {
	out := *defaults

	if cfg.Agent.Executable != "" {
		out.Agent.Executable = cfg.Agent.Executable
	}
	if cfg.Agent.Model != "" {
		out.Agent.Model = cfg.Agent.Model
	}
	if cfg.Agent.PermissionMode != "" {
		out.Agent.PermissionMode = cfg.Agent.PermissionMode
	}
	if cfg.Agent.MaxTurns != 0 {
		out.Agent.MaxTurns = cfg.Agent.MaxTurns
	}
	if cfg.Agent.MaxThinkingTokens != 0 {
		out.Agent.MaxThinkingTokens = cfg.Agent.MaxThinkingTokens
	}
	if len(cfg.Agent.AllowedTools) > 0 {
		out.Agent.AllowedTools = cfg.Agent.AllowedTools
	}
	if len(cfg.Agent.DisallowedTools) > 0 {
		out.Agent.DisallowedTools = cfg.Agent.DisallowedTools
	}
	if cfg.Agent.WorkingDir != "" {
		out.Agent.WorkingDir = cfg.Agent.WorkingDir
	}
	if len(cfg.Agent.Env) > 0 {
		out.Agent.Env = cfg.Agent.Env
	}

	if cfg.AppServer.Executable != "" {
		out.AppServer.Executable = cfg.AppServer.Executable
	}
	if len(cfg.AppServer.ConfigOverrides) > 0 {
		out.AppServer.ConfigOverrides = cfg.AppServer.ConfigOverrides
	}
	if cfg.AppServer.WorkingDir != "" {
		out.AppServer.WorkingDir = cfg.AppServer.WorkingDir
	}
	if len(cfg.AppServer.Env) > 0 {
		out.AppServer.Env = cfg.AppServer.Env
	}

	return &out
}
