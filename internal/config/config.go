// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for rigtools.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigtools/config.toml
//   - ~/.rigtools/config.json
//   - ~/.rigtools/config.yaml
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/sandbox"
	"github.com/jeranaias/rigtools/internal/util"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// EnvConfigDir overrides the configuration directory.
const EnvConfigDir = "RIGTOOLS_CONFIG_DIR"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigtools configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	Workspace WorkspaceConfig `toml:"workspace" json:"workspace" yaml:"workspace"`
	Tools     ToolsConfig     `toml:"tools" json:"tools" yaml:"tools"`
	Sandbox   SandboxConfig   `toml:"sandbox" json:"sandbox" yaml:"sandbox"`
	Audit     AuditConfig     `toml:"audit" json:"audit" yaml:"audit"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Server    ServerConfig    `toml:"server" json:"server" yaml:"server"`
}

// WorkspaceConfig fixes the base directory every tool is confined to.
type WorkspaceConfig struct {
	// BaseDir is resolved once at startup. Relative values are taken from
	// the process working directory.
	BaseDir string `toml:"base_dir" json:"base_dir" yaml:"base_dir"`

	// ContextFile is read from BaseDir as the context preamble.
	ContextFile string `toml:"context_file" json:"context_file" yaml:"context_file"`

	// ListingDepth bounds the "Available Files" listing.
	ListingDepth int `toml:"listing_depth" json:"listing_depth" yaml:"listing_depth"`

	// Watch refreshes the listing when files are created or removed.
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`
}

// ToolsConfig narrows the tool policy. It can never widen it.
type ToolsConfig struct {
	// AllowedCommands must be a subset of sandbox.DefaultAllowedCommands.
	// Empty means the full default list.
	AllowedCommands []string `toml:"allowed_commands" json:"allowed_commands" yaml:"allowed_commands"`

	// SearchProgram is the ripgrep-all binary name or path.
	SearchProgram string `toml:"search_program" json:"search_program" yaml:"search_program"`
}

// SandboxConfig controls the optional Landlock lockdown of this process.
type SandboxConfig struct {
	Landlock       bool     `toml:"landlock" json:"landlock" yaml:"landlock"`
	LandlockStrict bool     `toml:"landlock_strict" json:"landlock_strict" yaml:"landlock_strict"`
	ExtraReadOnly  []string `toml:"extra_read_only" json:"extra_read_only" yaml:"extra_read_only"`
}

// AuditConfig contains audit trail settings.
type AuditConfig struct {
	Enabled    bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path       string `toml:"path" json:"path" yaml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// SQLitePath enables the queryable store when set.
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`

	// Redact scrubs secrets from recorded arguments.
	Redact bool `toml:"redact" json:"redact" yaml:"redact"`
}

// LoggingConfig mirrors logging.Config without the output writer.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
}

// ServerConfig contains HTTP transport settings.
type ServerConfig struct {
	HTTPAddr string `toml:"http_addr" json:"http_addr" yaml:"http_addr"`

	// Token is the bearer token required by /v1 routes. Never logged.
	Token string `toml:"token" json:"token" yaml:"token"`

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	Burst     int     `toml:"burst" json:"burst" yaml:"burst"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a new Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Workspace: WorkspaceConfig{
			BaseDir:      ".",
			ContextFile:  "AGENTS.md",
			ListingDepth: 3,
			Watch:        true,
		},
		Tools: ToolsConfig{
			AllowedCommands: nil,
			SearchProgram:   "rga",
		},
		Sandbox: SandboxConfig{
			Landlock: false,
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxSizeMB:  10,
			MaxBackups: 5,
			Redact:     true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Server: ServerConfig{
			HTTPAddr:  "127.0.0.1:8787",
			RateLimit: 5,
			Burst:     10,
		},
	}
}

// =============================================================================
// PATH FUNCTIONS
// =============================================================================

// ConfigDir returns the configuration directory (~/.rigtools unless
// RIGTOOLS_CONFIG_DIR is set).
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".rigtools"), nil
}

// ConfigPath returns the path of the config file with the given extension.
func ConfigPath(ext string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config."+ext), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return dir, os.MkdirAll(dir, 0o700)
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: the file may hold the server bearer token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// searchOrder lists the default config files in precedence order.
var searchOrder = []string{"toml", "json", "yaml"}

// Load reads the first config file found in the config directory, or the
// defaults when there is none. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, ext := range searchOrder {
		path, err := ConfigPath(ext)
		if err != nil {
			break
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	return finalize(Default())
}

// LoadFromPath loads configuration from a specific file. The format follows
// the extension; anything unknown is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// Permissions might not be fixable on every filesystem; the load goes on.
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().
			Add(logging.Component("config")).
			Add(logging.Str("path", path)).
			Add(logging.ErrorField(err)).
			Msg("could not ensure secure permissions")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeJSON(data, cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	default:
		err = decodeTOML(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finalize(cfg)
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown TOML keys: %v", undecoded)
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode YAML: %w", err)
	}
	return nil
}

// finalize applies env overrides and defaults, then validates.
func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to ~/.rigtools/config.toml.
func Save(cfg *Config) error {
	if _, err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPath("toml")
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigtools configuration file\n")
	buf.WriteString("# allowed_commands may only narrow the built-in allow-list\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Workspace
	if strings.TrimSpace(c.Workspace.BaseDir) == "" {
		add("workspace.base_dir", "must not be empty")
	}
	if strings.Contains(c.Workspace.ContextFile, "..") {
		add("workspace.context_file", "must not contain '..'")
	}
	if c.Workspace.ListingDepth < 1 || c.Workspace.ListingDepth > 10 {
		add("workspace.listing_depth", "must be between 1 and 10, got %d", c.Workspace.ListingDepth)
	}

	// Tools
	defaults := sandbox.DefaultCommandPolicy()
	for _, name := range c.Tools.AllowedCommands {
		if !defaults.IsAllowed(name) {
			add("tools.allowed_commands", "'%s' is not a built-in read-only command (allowed: %s)",
				name, strings.Join(defaults.Allowed(), ", "))
		}
	}
	if strings.TrimSpace(c.Tools.SearchProgram) == "" {
		add("tools.search_program", "must not be empty")
	}

	// Sandbox
	for _, dir := range c.Sandbox.ExtraReadOnly {
		if !filepath.IsAbs(dir) {
			add("sandbox.extra_read_only", "'%s' must be an absolute path", dir)
		}
	}

	// Audit
	if c.Audit.MaxSizeMB < 1 {
		add("audit.max_size_mb", "must be at least 1, got %d", c.Audit.MaxSizeMB)
	}
	if c.Audit.MaxBackups < 0 {
		add("audit.max_backups", "must not be negative, got %d", c.Audit.MaxBackups)
	}

	// Logging
	if !logging.ValidLevel(c.Logging.Level) {
		add("logging.level", "invalid level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: console, json", c.Logging.Format)
	}

	// Server
	if c.Server.HTTPAddr != "" {
		host, _, err := net.SplitHostPort(c.Server.HTTPAddr)
		if err != nil {
			add("server.http_addr", "invalid address '%s': %v", c.Server.HTTPAddr, err)
		} else if !isLoopbackHost(host) && len(c.Server.Token) < 16 {
			add("server.token", "a token of at least 16 characters is required when listening on %s", c.Server.HTTPAddr)
		}
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		add("server.burst", "must be at least 1 when rate_limit is set")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// SetDefaults fills zero values that have a meaningful default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Workspace.BaseDir == "" {
		c.Workspace.BaseDir = d.Workspace.BaseDir
	}
	if c.Workspace.ContextFile == "" {
		c.Workspace.ContextFile = d.Workspace.ContextFile
	}
	if c.Workspace.ListingDepth == 0 {
		c.Workspace.ListingDepth = d.Workspace.ListingDepth
	}
	if c.Tools.SearchProgram == "" {
		c.Tools.SearchProgram = d.Tools.SearchProgram
	}
	if c.Audit.MaxSizeMB == 0 {
		c.Audit.MaxSizeMB = d.Audit.MaxSizeMB
	}
	if c.Audit.Path == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Audit.Path = filepath.Join(dir, "audit.log")
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Server.Burst == 0 && c.Server.RateLimit > 0 {
		c.Server.Burst = d.Server.Burst
	}
}

// ApplyEnvOverrides applies environment variable overrides:
//   - RIGTOOLS_BASE_DIR: overrides workspace.base_dir
//   - RIGTOOLS_LOG_LEVEL: overrides logging.level
//   - RIGTOOLS_LOG_FORMAT: overrides logging.format
//   - RIGTOOLS_AUDIT_ENABLED: overrides audit.enabled
//   - RIGTOOLS_AUDIT_PATH: overrides audit.path
//   - RIGTOOLS_LANDLOCK: overrides sandbox.landlock
//   - RIGTOOLS_SERVER_TOKEN: overrides server.token
//
// All RIGTOOLS_ variables are stripped from tool subprocess environments.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGTOOLS_BASE_DIR"); v != "" {
		c.Workspace.BaseDir = v
	}
	if v := os.Getenv("RIGTOOLS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RIGTOOLS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v, ok := envBool("RIGTOOLS_AUDIT_ENABLED"); ok {
		c.Audit.Enabled = v
	}
	if v := os.Getenv("RIGTOOLS_AUDIT_PATH"); v != "" {
		c.Audit.Path = v
	}
	if v, ok := envBool("RIGTOOLS_LANDLOCK"); ok {
		c.Sandbox.Landlock = v
	}
	if v := os.Getenv("RIGTOOLS_SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// CommandPolicy builds the shell policy. An empty allow-list keeps the defaults.
func (c *Config) CommandPolicy() *sandbox.CommandPolicy {
	if len(c.Tools.AllowedCommands) == 0 {
		return sandbox.DefaultCommandPolicy()
	}
	return sandbox.NewCommandPolicy(c.Tools.AllowedCommands, sandbox.DefaultForbiddenPatterns)
}

// LoggerConfig returns the logger configuration writing to stderr.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = c.Logging.Format
	return lc
}

// =============================================================================
// GET HELPER (DOT NOTATION)
// =============================================================================

// Get retrieves a value by its dotted file key (e.g., "audit.max_size_mb").
// The server token is never returned in clear.
func (c *Config) Get(key string) (interface{}, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if key == "server.token" && field.String() != "" {
				return redacted, nil
			}
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]; tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Keys returns every dotted key accepted by Get.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		name := section.Tag.Get("toml")
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, name+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

const redacted = "[REDACTED]"

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Tools.AllowedCommands = append([]string(nil), c.Tools.AllowedCommands...)
	clone.Sandbox.ExtraReadOnly = append([]string(nil), c.Sandbox.ExtraReadOnly...)
	return &clone
}

// Redacted returns a copy safe to print or log.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Server.Token != "" {
		safe.Server.Token = redacted
	}
	return safe
}

// String returns the redacted config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}
