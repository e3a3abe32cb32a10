// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace gathers the context an agent starts with: the preamble
// file of the base directory and a listing of the files it may explore.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/runner"
	"github.com/jeranaias/rigtools/internal/sandbox"
)

// DefaultPreamble is used when the base directory has no context file.
const DefaultPreamble = "You are a helpful search assistant. You can read files and execute safe bash commands " +
	"to help users explore and understand their codebase."

// ListingUnavailable replaces the listing when find exits non-zero.
const ListingUnavailable = "(Directory listing unavailable)"

const listingHeader = "\n\n## Available Files\n\n" +
	"The following files are available in the working directory:\n\n"

// Options configures a Context.
type Options struct {
	// ContextFile is read from the base directory. Default AGENTS.md.
	ContextFile string

	// ListingDepth is passed to find -maxdepth. Default 3.
	ListingDepth int

	// Timeout bounds the listing command. Default runner.DefaultTimeout.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ContextFile == "" {
		o.ContextFile = "AGENTS.md"
	}
	if o.ListingDepth <= 0 {
		o.ListingDepth = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = runner.DefaultTimeout
	}
	return o
}

// errListingFailed means find could not run at all; the section is omitted.
var errListingFailed = errors.New("could not gather directory context")

// Context builds the agent preamble for one base directory. The file listing
// is cached until Invalidate is called, usually by a Watcher.
type Context struct {
	resolver *sandbox.Resolver
	opts     Options

	mu       sync.Mutex
	listing  string
	err      error
	valid    bool
	gathered time.Time
}

// New returns a Context rooted at the resolver's base directory.
func New(resolver *sandbox.Resolver, opts Options) *Context {
	return &Context{resolver: resolver, opts: opts.withDefaults()}
}

// Base returns the base directory.
func (c *Context) Base() string { return c.resolver.Base() }

// Preamble returns the context file contents, or DefaultPreamble when the
// file does not exist. The file is confined like any read_file path.
func (c *Context) Preamble() (string, bool, error) {
	p, err := c.resolver.Resolve(c.opts.ContextFile)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPreamble, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve %s: %w", c.opts.ContextFile, err)
	}
	data, err := os.ReadFile(p.String())
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", c.opts.ContextFile, err)
	}
	if !utf8.Valid(data) {
		return "", false, fmt.Errorf("failed to read %s: stream did not contain valid UTF-8", c.opts.ContextFile)
	}
	return string(data), true, nil
}

// Listing returns the cached file listing, gathering it first if needed.
func (c *Context) Listing(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid {
		c.listing, c.err = c.gatherLocked(ctx)
		c.gathered = time.Now()
		// A canceled gather is retried on the next call.
		c.valid = ctx.Err() == nil
	}
	return c.listing, c.err
}

// gatherLocked runs find -maxdepth N -type f in the base directory.
func (c *Context) gatherLocked(ctx context.Context) (string, error) {
	spec := runner.Command("find", ".", "-maxdepth", strconv.Itoa(c.opts.ListingDepth), "-type", "f").
		In(c.resolver.Base()).
		WithTimeout(c.opts.Timeout)

	out := runner.Run(ctx, spec)
	switch out.Status {
	case runner.Success:
		if !utf8.ValidString(out.Stdout) {
			return "", fmt.Errorf("%w: listing is not valid UTF-8", errListingFailed)
		}
		return out.Stdout, nil
	case runner.LaunchFailed:
		return "", fmt.Errorf("%w: %v", errListingFailed, out.Err)
	default:
		return ListingUnavailable, nil
	}
}

// Invalidate drops the cached listing.
func (c *Context) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// GatheredAt returns when the cached listing was taken.
func (c *Context) GatheredAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gathered
}

// Build returns the preamble followed by the "Available Files" section. When
// the listing cannot be gathered at all the section is left out and a warning
// is logged.
func (c *Context) Build(ctx context.Context) (string, error) {
	preamble, _, err := c.Preamble()
	if err != nil {
		return "", err
	}

	listing, err := c.Listing(ctx)
	if err != nil {
		logging.Warn().
			Add(logging.Component("workspace")).
			Add(logging.ErrorField(err)).
			Msg("could not gather directory context")
		return preamble, nil
	}
	return preamble + listingHeader + listing, nil
}
