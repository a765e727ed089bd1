// Package config handles Artificer configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./artificer.yaml, ~/.config/artificer/config.yaml, /etc/artificer/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"artificer.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "artificer", "config.yaml"))
	}

	paths = append(paths, "/etc/artificer/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Artificer configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Forge     ForgeConfig     `yaml:"forge"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the web UI server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the chat-completions endpoint settings.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// CodegenModel is used for capability synthesis. Falls back to Model
	// when empty.
	CodegenModel string `yaml:"codegen_model"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	// CycleBudget caps consecutive tool-call round-trips per user turn.
	CycleBudget int `yaml:"cycle_budget"`
	// HistoryWindow limits how many non-system messages are sent per
	// dispatch. Zero sends the full history.
	HistoryWindow int `yaml:"history_window"`
}

// ForgeConfig controls the capability synthesis pipeline.
type ForgeConfig struct {
	// Dir is where generated capability sources and binaries live.
	// Defaults to <data_dir>/generated.
	Dir string `yaml:"dir"`
	// GoBin is the go toolchain binary used to compile generated
	// capabilities (default "go", resolved via PATH).
	GoBin string `yaml:"go_bin"`
	// BuildTimeoutSec bounds compilation of a generated capability.
	BuildTimeoutSec int `yaml:"build_timeout_sec"`
	// ExecTimeoutSec bounds each execution of a generated capability.
	ExecTimeoutSec int `yaml:"exec_timeout_sec"`
	// DeniedImports are import paths generated code may not use.
	DeniedImports []string `yaml:"denied_imports"`
}

// WorkspaceConfig defines the directory exposed to the file capabilities.
type WorkspaceConfig struct {
	// Path is the root directory for file operations. If empty, file
	// capabilities are not registered.
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault loads the config at explicit, or the first discovered
// file when explicit is empty. When nothing is found and no explicit
// path was given, the built-in defaults (plus environment overrides)
// are used so the CLI works without a config file. The returned path is
// empty when defaults were used.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		cfg := Default()
		cfg.applyEnv()
		return cfg, "", nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Agent: AgentConfig{
			CycleBudget:   10,
			HistoryWindow: 50,
		},
		Forge: ForgeConfig{
			GoBin:           "go",
			BuildTimeoutSec: 120,
			ExecTimeoutSec:  30,
			DeniedImports:   []string{"os/exec", "plugin", "syscall"},
		},
		DataDir: "data",
	}
}

// applyEnv lets environment variables override file-provided secrets.
func (c *Config) applyEnv() {
	if v := os.Getenv("ARTIFICER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ARTIFICER_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("ARTIFICER_MODEL"); v != "" {
		c.LLM.Model = v
	}
}

// GeneratedDir returns the directory for generated capability artifacts.
func (c *Config) GeneratedDir() string {
	if c.Forge.Dir != "" {
		return c.Forge.Dir
	}
	return filepath.Join(c.DataDir, "generated")
}
