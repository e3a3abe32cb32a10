// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools exposes the sandboxed capabilities an agent may call.
// bash.go implements the read-only shell capability.
package tools

import (
	"context"
	"strings"
	"time"

	"github.com/jeranaias/rigtools/internal/runner"
	"github.com/jeranaias/rigtools/internal/sandbox"
)

// ShellTimeout bounds every bash call.
const ShellTimeout = 30 * time.Second

// stderrSeparator joins stdout and stderr in a successful result.
const stderrSeparator = "\n--- stderr ---\n"

// NewBashTool returns the bash tool bound to policy, running in dir.
func NewBashTool(policy *sandbox.CommandPolicy, dir string) *Tool {
	return &Tool{
		Capability:  CapabilityShell,
		Name:        CapabilityShell.String(),
		Description: bashDescription(policy),
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "command",
					Type:        "string",
					Required:    true,
					Description: "The bash command to execute",
				},
			},
		},
		RiskLevel: RiskMedium,
		Executor:  &ShellExecutor{Policy: policy, Dir: dir},
	}
}

func bashDescription(policy *sandbox.CommandPolicy) string {
	return "Execute a read-only bash command. Only the following commands are allowed: " +
		strings.Join(policy.Allowed(), ", ") +
		". Pipes (|) are allowed for chaining these commands. " +
		"Redirects and command chaining with ;, &&, || are not allowed."
}

// =============================================================================
// SHELL EXECUTOR
// =============================================================================

// ShellExecutor runs validated commands in Dir.
type ShellExecutor struct {
	Policy *sandbox.CommandPolicy
	Dir    string

	// Timeout overrides ShellTimeout when non-zero.
	Timeout time.Duration
}

// Execute runs the "command" parameter.
func (e *ShellExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()
	output, err := e.Run(ctx, getStringParam(params, "command", ""))
	if err != nil {
		return Result{Duration: time.Since(start)}, err
	}
	return Result{Success: true, Output: output, Duration: time.Since(start)}, nil
}

// Run validates command and executes it. A command with an unquoted pipe is
// run by sh; anything else is run directly without a shell.
func (e *ShellExecutor) Run(ctx context.Context, command string) (string, error) {
	if err := e.Policy.Validate(command); err != nil {
		return "", err
	}

	var spec runner.Spec
	if sandbox.HasUnquotedPipe(command) {
		spec = runner.Shell(command)
	} else {
		args := sandbox.SplitArgs(command)
		spec = runner.Command(args[0], args[1:]...)
	}

	timeout := e.Timeout
	if timeout == 0 {
		timeout = ShellTimeout
	}
	out := runner.Run(ctx, spec.In(e.Dir).WithTimeout(timeout))

	switch out.Status {
	case runner.Success:
		return joinStreams(out.Stdout, out.Stderr), nil
	case runner.NonZeroExit, runner.Signaled:
		return "", &ExitError{Op: "command", Code: out.ExitCode, Output: out.Diagnostic()}
	case runner.TimedOut:
		return "", &TimeoutError{Op: "command", Timeout: timeout}
	default:
		return "", &IOError{Op: "command", Err: out.Err}
	}
}

// joinStreams appends stderr to stdout under a separator.
func joinStreams(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + stderrSeparator + stderr
}
