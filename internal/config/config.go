// Package config loads pongogo configuration from .pongogo/config.yaml and
// the PONGOGO_* environment variables. This is the single source of truth
// for configuration; every other package receives values from here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized by pongogo.
const (
	EnvConfigPath    = "PONGOGO_CONFIG_PATH"
	EnvKnowledgePath = "PONGOGO_KNOWLEDGE_PATH"
	EnvProjectRoot   = "PONGOGO_PROJECT_ROOT"
	EnvVersion       = "PONGOGO_VERSION"
)

// DefaultVersion is reported when PONGOGO_VERSION is unset.
const DefaultVersion = "0.6.2"

// Config mirrors .pongogo/config.yaml.
type Config struct {
	Routing   RoutingConfig   `yaml:"routing"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Server    ServerConfig    `yaml:"server"`
}

// RoutingConfig selects the engine and its feature flags.
type RoutingConfig struct {
	// Engine is a registered engine version string (e.g. "durian-0.6.2").
	// Empty selects the registry default.
	Engine string `yaml:"engine,omitempty"`

	// Features toggles named engine feature flags. Unknown names are a
	// configuration error at factory time.
	Features map[string]bool `yaml:"features,omitempty"`
}

// KnowledgeConfig locates the user instruction tree.
type KnowledgeConfig struct {
	// Path to the user instructions directory. Empty resolves to
	// <project_root>/.pongogo/instructions.
	Path string `yaml:"path,omitempty"`
}

// ServerConfig holds transport-level settings.
type ServerConfig struct {
	// LogLevel is one of debug, info, warn, error. Default info.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Load reads the config file for the given project root, applying env
// overrides. A missing file is not an error: defaults apply.
func Load(projectRoot string) (*Config, error) {
	cfg := &Config{}

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = filepath.Join(projectRoot, ".pongogo", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv(projectRoot)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv(projectRoot)
	return cfg, nil
}

// applyEnv layers environment overrides and fills defaults.
func (c *Config) applyEnv(projectRoot string) {
	if kp := os.Getenv(EnvKnowledgePath); kp != "" {
		c.Knowledge.Path = kp
	}
	if c.Knowledge.Path == "" {
		c.Knowledge.Path = filepath.Join(projectRoot, ".pongogo", "instructions")
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
}

// Version returns the running version string.
func Version() string {
	if v := os.Getenv(EnvVersion); v != "" {
		return v
	}
	return DefaultVersion
}

// ResolveProjectRoot determines the project root, in order:
//  1. PONGOGO_PROJECT_ROOT, taken verbatim.
//  2. PONGOGO_KNOWLEDGE_PATH whose ancestry contains a .pongogo directory;
//     the parent of that .pongogo directory wins.
//  3. The current working directory.
func ResolveProjectRoot() string {
	if root := os.Getenv(EnvProjectRoot); root != "" {
		return root
	}

	if kp := os.Getenv(EnvKnowledgePath); kp != "" {
		dir := kp
		for {
			if filepath.Base(dir) == ".pongogo" {
				return filepath.Dir(dir)
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// DatabasePath returns the substrate file location for a project root,
// falling back to the home directory when the root is unwritable.
func DatabasePath(projectRoot string) string {
	dir := filepath.Join(projectRoot, ".pongogo")
	if err := os.MkdirAll(dir, 0755); err != nil {
		if home, herr := os.UserHomeDir(); herr == nil {
			return filepath.Join(home, ".pongogo", "pongogo.db")
		}
	}
	return filepath.Join(dir, "pongogo.db")
}
