// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for sagechat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.sagechat/config.toml
//   - ~/.sagechat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sagechat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete sagechat configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// Server connection configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Streaming/orchestration configuration
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Local conversation storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains Sage server connection settings.
type ServerConfig struct {
	// BaseURL is the Sage API base URL.
	// Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows.
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the timeout for non-streaming requests (health,
	// tools, interrupt). Streaming requests are never time-limited.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// UserID identifies the local user on stream requests.
	UserID string `toml:"user_id" json:"user_id"`
}

// StreamConfig contains per-request orchestration defaults.
type StreamConfig struct {
	// DeepThinking asks the server for extended reasoning.
	DeepThinking bool `toml:"deep_thinking" json:"deep_thinking"`
	// MultiAgent enables the multi-agent orchestration pipeline.
	MultiAgent bool `toml:"multi_agent" json:"multi_agent"`
	// MaxLoopCount caps agent iterations per request (0 = server default).
	MaxLoopCount int `toml:"max_loop_count" json:"max_loop_count"`
	// AssemblyTTLSecs is how long an incomplete chunked message is kept
	// before its buffer is dropped.
	AssemblyTTLSecs int `toml:"assembly_ttl_secs" json:"assembly_ttl_secs"`
	// SystemPrefix is prepended to the server-side system prompt.
	SystemPrefix string `toml:"system_prefix" json:"system_prefix"`
	// AvailableTools restricts which server tools may run (empty = all).
	AvailableTools []string `toml:"available_tools" json:"available_tools"`
}

// StorageConfig contains local conversation persistence settings.
type StorageConfig struct {
	// DBPath is the sqlite database path (empty = ~/.sagechat/conversations.db).
	DBPath string `toml:"db_path" json:"db_path"`
	// MaxConversations caps stored conversations; oldest are pruned.
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
	// Disabled turns off persistence entirely.
	Disabled bool `toml:"disabled" json:"disabled"`
}

// UIConfig contains user interface configuration.
type UIConfig struct {
	// Theme is the color theme: "dark", "light"
	Theme string `toml:"theme" json:"theme"`
	// Markdown enables glamour rendering of completed assistant messages.
	Markdown bool `toml:"markdown" json:"markdown"`
	// MouseEnabled enables mouse wheel scrolling.
	MouseEnabled bool `toml:"mouse_enabled" json:"mouse_enabled"`
	// ShowToolCalls shows tool call/result entries in the transcript.
	ShowToolCalls bool `toml:"show_tool_calls" json:"show_tool_calls"`
	// ShowTimestamps shows per-message timestamps in the transcript.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			BaseURL:     "http://127.0.0.1:8080",
			TimeoutSecs: 30,
		},
		Stream: StreamConfig{
			DeepThinking:    true,
			MultiAgent:      true,
			AssemblyTTLSecs: 120,
		},
		Storage: StorageConfig{
			MaxConversations: 200,
		},
		UI: UIConfig{
			Theme:         "dark",
			Markdown:      true,
			MouseEnabled:  true,
			ShowToolCalls: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the sagechat configuration directory.
// Honors SAGECHAT_CONFIG_DIR for tests and portable installs.
func ConfigDir() (string, error) {
	if dir := os.Getenv("SAGECHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".sagechat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err := finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// finishLoad applies overrides, defaults, and validation to a loaded config.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# sagechat configuration file\n")
	buf.WriteString("# Generated by sagechat - edit with care\n")
	buf.WriteString("\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Atomic write with fsync prevents data loss on crash.
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS AND OVERRIDES
// =============================================================================

// SetDefaults fills in any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if c.Stream.AssemblyTTLSecs == 0 {
		c.Stream.AssemblyTTLSecs = defaults.Stream.AssemblyTTLSecs
	}
	if c.Storage.MaxConversations == 0 {
		c.Storage.MaxConversations = defaults.Storage.MaxConversations
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - SAGECHAT_SERVER_URL: Sage server base URL
//   - SAGECHAT_USER: user identifier sent on stream requests
//   - SAGECHAT_DEEP_THINKING: "true"/"false"
//   - SAGECHAT_MULTI_AGENT: "true"/"false"
//   - SAGECHAT_DB_PATH: conversation database path
//   - SAGECHAT_THEME: UI theme name
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("SAGECHAT_SERVER_URL"); u != "" {
		c.Server.BaseURL = u
	}
	if user := os.Getenv("SAGECHAT_USER"); user != "" {
		c.Server.UserID = user
	}
	if v := os.Getenv("SAGECHAT_DEEP_THINKING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Stream.DeepThinking = b
		}
	}
	if v := os.Getenv("SAGECHAT_MULTI_AGENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Stream.MultiAgent = b
		}
	}
	if path := os.Getenv("SAGECHAT_DB_PATH"); path != "" {
		c.Storage.DBPath = path
	}
	if theme := os.Getenv("SAGECHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.BaseURL != "" {
		if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Server.BaseURL),
			})
		}
	}

	if c.Server.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.timeout_secs",
			Message: "cannot be negative",
		})
	}

	if c.Stream.MaxLoopCount < 0 {
		errs = append(errs, ValidationError{
			Field:   "stream.max_loop_count",
			Message: "cannot be negative",
		})
	}

	if c.Stream.AssemblyTTLSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "stream.assembly_ttl_secs",
			Message: "cannot be negative",
		})
	}

	if c.Storage.MaxConversations < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_conversations",
			Message: "cannot be negative",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
