// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/rigtools/internal/logging"
)

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher invalidates a Context's listing when files appear, disappear or
// are renamed. Writes to existing files do not change the listing and are
// ignored.
type Watcher struct {
	target   *Context
	watcher  *fsnotify.Watcher
	maxDepth int
	debounce time.Duration

	mu      sync.Mutex
	pending bool
	last    time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// DefaultDebounce coalesces bursts such as an unpacked archive.
const DefaultDebounce = 200 * time.Millisecond

// Watch starts watching every directory whose files appear in the listing.
func Watch(ctx context.Context, target *Context) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		target:  target,
		watcher: fw,
		// Files at depth N live in directories at depth N-1.
		maxDepth: target.opts.ListingDepth - 1,
		debounce: DefaultDebounce,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := w.addRecursive(target.Base()); err != nil {
		cancel()
		fw.Close()
		return nil, err
	}

	go w.processEvents(ctx)
	return w, nil
}

// depth returns how many levels dir is below the base directory.
func (w *Watcher) depth(dir string) int {
	rel, err := filepath.Rel(w.target.Base(), dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// addRecursive watches dir and its subdirectories down to maxDepth.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// The root must be watchable; anything below is best effort.
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.depth(path) > w.maxDepth {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && path == dir {
			return err
		}
		return nil
	})
}

// processEvents marks the listing stale and flushes after the debounce.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Add(logging.Component("workspace")).
				Add(logging.Str("panic", fmt.Sprint(r))).
				Msg("watcher stopped")
		}
	}()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addRecursive(event.Name)
				}
			}
			w.mu.Lock()
			w.pending = true
			w.last = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().
				Add(logging.Component("workspace")).
				Add(logging.ErrorField(err)).
				Msg("watch error")

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	due := w.pending && time.Since(w.last) >= w.debounce
	if due {
		w.pending = false
	}
	w.mu.Unlock()

	if due {
		w.target.Invalidate()
		logging.Debug().
			Add(logging.Component("workspace")).
			Msg("file listing invalidated")
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}
