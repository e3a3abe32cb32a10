// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner launches one external process with a wall-clock limit and
// reports what happened to it.
//
// The child runs in its own session with stdin bound to the null device and a
// sanitized environment. On timeout or cancellation the whole process group is
// killed, so grandchildren spawned by a pipeline cannot keep the output pipes
// open.
//
// # Key Types
//
//   - Spec: what to run (argv or a sh -c script), where, and for how long
//   - Outcome: status, exit code, captured stdout and stderr
//   - Status: Success, NonZeroExit, Signaled, TimedOut, Canceled, LaunchFailed
//
// # Usage
//
//	out := runner.Run(ctx, runner.Command("ls", "-la").In(dir))
//	if out.Status != runner.Success {
//	    return out.Diagnostic()
//	}
package runner
