// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package tools

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRejectsFIFO(t *testing.T) {
	r := newWorkspace(t)
	fifo := filepath.Join(r.Base(), "pipe")
	if err := syscall.Mkfifo(fifo, 0o644); err != nil {
		t.Skipf("mkfifo unavailable: %v", err)
	}

	_, err := (&ReadFileExecutor{Resolver: r}).Read(context.Background(), "pipe", 0, 0)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, err.Error(), "not a regular file")
}
