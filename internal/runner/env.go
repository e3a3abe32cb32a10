// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner launches one external process with a wall-clock limit.
// env.go filters the environment handed to child processes.
package runner

import "strings"

// =============================================================================
// ENVIRONMENT SANITIZATION
// =============================================================================

// DangerousEnvVars can change what a child process loads or executes.
var DangerousEnvVars = []string{
	// Library injection
	"LD_PRELOAD",
	"LD_LIBRARY_PATH",
	"LD_AUDIT",
	"DYLD_INSERT_LIBRARIES",
	"DYLD_LIBRARY_PATH",

	// Shell behavior modification
	"BASH_ENV",
	"ENV",
	"SHELLOPTS",
	"BASHOPTS",
	"CDPATH",
	"IFS",
	"PS4",

	// Search tool configuration (rg config files may set --pre)
	"RIPGREP_CONFIG_PATH",
	"GREP_OPTIONS",

	// Pagers and preprocessors
	"PAGER",
	"LESSOPEN",
	"LESSCLOSE",

	// Agent sockets
	"SSH_AUTH_SOCK",
	"GPG_AGENT_INFO",
}

// dangerousPrefixes are stripped regardless of the rest of the name.
// RIGTOOLS_ keeps the server token and other settings away from children.
var dangerousPrefixes = []string{
	"LD_",
	"DYLD_",
	"BASH_FUNC_",
	"RIGTOOLS_",
}

// SanitizeEnv returns environ without variables that could alter how the
// allow-listed commands behave. Entries without a key are dropped.
func SanitizeEnv(environ []string) []string {
	dangerous := make(map[string]bool, len(DangerousEnvVars))
	for _, v := range DangerousEnvVars {
		dangerous[strings.ToUpper(v)] = true
	}

	result := make([]string, 0, len(environ))
	for _, env := range environ {
		idx := strings.Index(env, "=")
		if idx <= 0 {
			continue
		}
		key := strings.ToUpper(env[:idx])
		if dangerous[key] || hasAnyPrefix(key, dangerousPrefixes) {
			continue
		}
		result = append(result, env)
	}
	return result
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
