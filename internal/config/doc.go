// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for rigtools.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, and validation. The loaded Config is treated
// as immutable for the lifetime of the process; there is no reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - WorkspaceConfig: base directory and context gathering
//   - ToolsConfig: narrowing of the shell allow-list
//   - AuditConfig: audit trail file and sqlite store
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGTOOLS_*)
//   - --config PATH, or the first of ~/.rigtools/config.{toml,json,yaml}
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	policy := cfg.CommandPolicy()
package config
