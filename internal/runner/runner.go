// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner launches one external process with a wall-clock limit.
// runner.go implements the run loop and outcome classification.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout is the wall-clock limit applied when Spec.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// SignaledExitCode is reported when the child was killed by a signal.
	SignaledExitCode = -1

	// notFoundExitCode is what sh returns when the command does not exist.
	notFoundExitCode = 127
)

// =============================================================================
// SPEC
// =============================================================================

// Spec describes one process launch.
type Spec struct {
	// Name and Args form the argument vector for a direct launch.
	Name string
	Args []string

	// Script, when set, is run with "sh -c" instead of Name/Args.
	Script string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env replaces the sanitized environment when non-nil.
	Env []string

	// Timeout bounds the wall-clock time. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Command returns a Spec that runs name with args, without a shell.
func Command(name string, args ...string) Spec {
	return Spec{Name: name, Args: append([]string(nil), args...)}
}

// Shell returns a Spec that runs script with "sh -c".
func Shell(script string) Spec {
	return Spec{Script: script}
}

// In returns a copy of s that runs in dir.
func (s Spec) In(dir string) Spec {
	s.Dir = dir
	return s
}

// WithTimeout returns a copy of s with the given limit.
func (s Spec) WithTimeout(d time.Duration) Spec {
	s.Timeout = d
	return s
}

// argv returns the program and arguments to exec.
func (s Spec) argv() (string, []string) {
	if s.Script != "" {
		return "sh", []string{"-c", s.Script}
	}
	return s.Name, s.Args
}

// String renders the spec for logs.
func (s Spec) String() string {
	if s.Script != "" {
		return "sh -c " + s.Script
	}
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

func (s Spec) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

// =============================================================================
// OUTCOME
// =============================================================================

// Status classifies how a run ended.
type Status int

const (
	// Success means the process exited with code 0.
	Success Status = iota
	// NonZeroExit means the process exited with a non-zero code.
	NonZeroExit
	// Signaled means the process was terminated by a signal.
	Signaled
	// TimedOut means the wall-clock limit fired and the group was killed.
	TimedOut
	// Canceled means the caller's context was canceled first.
	Canceled
	// LaunchFailed means the process could not be started.
	LaunchFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NonZeroExit:
		return "non_zero_exit"
	case Signaled:
		return "signaled"
	case TimedOut:
		return "timed_out"
	case Canceled:
		return "canceled"
	case LaunchFailed:
		return "launch_failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one Run.
type Outcome struct {
	Status Status

	// ExitCode is the exit code for Success and NonZeroExit,
	// SignaledExitCode for Signaled, and 0 otherwise.
	ExitCode int

	Stdout string
	Stderr string

	// Err is the launch error for LaunchFailed and the context error for
	// TimedOut and Canceled.
	Err error

	Elapsed time.Duration
}

// Diagnostic returns stderr when it has content, otherwise stdout.
func (o Outcome) Diagnostic() string {
	if o.Stderr != "" {
		return o.Stderr
	}
	return o.Stdout
}

// NotFound reports whether the program itself could not be found, either
// because exec failed to locate it or because sh reported exit code 127.
// A missing working directory is a launch failure, not a missing program.
func (o Outcome) NotFound() bool {
	switch o.Status {
	case LaunchFailed:
		if errors.Is(o.Err, exec.ErrNotFound) {
			return true
		}
		var execErr *exec.Error
		if errors.As(o.Err, &execErr) {
			return errors.Is(execErr.Err, fs.ErrNotExist)
		}
		var pathErr *fs.PathError
		return errors.As(o.Err, &pathErr) && pathErr.Op == "fork/exec" && errors.Is(pathErr.Err, fs.ErrNotExist)
	case NonZeroExit:
		return o.ExitCode == notFoundExitCode
	}
	return false
}

// =============================================================================
// RUN
// =============================================================================

// Run launches spec and waits for it, or for the timeout or ctx to end it.
// Output is captured in full; callers decide how much of it to keep.
func Run(ctx context.Context, spec Spec) Outcome {
	start := time.Now()

	name, args := spec.argv()
	if name == "" {
		return Outcome{
			Status:  LaunchFailed,
			Err:     fmt.Errorf("no command to run: %w", exec.ErrNotFound),
			Elapsed: time.Since(start),
		}
	}

	if spec.Dir != "" {
		if _, err := os.Stat(spec.Dir); err != nil {
			return Outcome{
				Status:  LaunchFailed,
				Err:     fmt.Errorf("working directory: %w", err),
				Elapsed: time.Since(start),
			}
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, spec.timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	} else {
		cmd.Env = SanitizeEnv(os.Environ())
	}
	// A nil Stdin reads from the null device.
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	setupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Outcome{Status: LaunchFailed, Err: err, Elapsed: time.Since(start)}
	}
	waitErr := cmd.Wait()

	out := Outcome{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}

	// The deadline or cancellation wins over whatever exit status the kill produced.
	if ctxErr := runCtx.Err(); ctxErr != nil {
		out.Err = ctxErr
		if ctx.Err() != nil {
			out.Err = ctx.Err()
		}
		if errors.Is(out.Err, context.DeadlineExceeded) {
			out.Status = TimedOut
		} else {
			out.Status = Canceled
		}
		return out
	}

	classifyExit(&out, cmd, waitErr)
	return out
}

// classifyExit fills Status and ExitCode from the result of Wait.
func classifyExit(out *Outcome, cmd *exec.Cmd, waitErr error) {
	if waitErr == nil {
		out.Status = Success
		return
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		setExitCode(out, exitErr.ExitCode())
		return
	}

	// WaitDelay expired with the pipes still open; the process itself has exited.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		if cmd.ProcessState.Success() {
			out.Status = Success
			return
		}
		setExitCode(out, cmd.ProcessState.ExitCode())
		return
	}

	out.Status = LaunchFailed
	out.Err = waitErr
}

func setExitCode(out *Outcome, code int) {
	if code == SignaledExitCode {
		out.Status = Signaled
		out.ExitCode = SignaledExitCode
		return
	}
	out.Status = NonZeroExit
	out.ExitCode = code
}
