// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/sandbox"
	"github.com/jeranaias/rigtools/internal/security"
	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/workspace"
)

// envOptions selects the optional parts of a toolEnv.
type envOptions struct {
	// audit opens the audit trail when the config enables it
	audit bool

	// watch starts the workspace watcher when the config enables it
	watch bool

	// lockdown applies Landlock when the config enables it
	lockdown bool

	// server switches the logger defaults to JSON at info level
	server bool
}

// toolEnv is everything a command needs to run tools.
type toolEnv struct {
	cfg       *config.Config
	resolver  *sandbox.Resolver
	registry  *tools.Registry
	executor  *tools.Executor
	workspace *workspace.Context
	audit     *security.AuditLogger
	watcher   *workspace.Watcher
}

// loadConfig loads the config and applies the global flags.
func (a *App) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if a.baseDir != "" {
		cfg.Workspace.BaseDir = a.baseDir
	}
	if a.logLevel != "" {
		if !logging.ValidLevel(a.logLevel) {
			return nil, fmt.Errorf("invalid --log-level %q (valid: trace, debug, info, warn, error)", a.logLevel)
		}
		cfg.Logging.Level = a.logLevel
	}
	return cfg, nil
}

func (a *App) initLogging(cfg *config.Config, server bool) {
	lc := cfg.LoggerConfig()
	if server && a.logLevel == "" && cfg.Logging.Level == config.Default().Logging.Level {
		lc.Level = logging.ServerConfig().Level
	}
	if server && cfg.Logging.Format == config.Default().Logging.Format {
		lc.Format = logging.ServerConfig().Format
	}
	lc.Output = a.stderr
	logging.Init(lc)
}

// openEnv builds the shared tool environment. The caller must Close it.
func (a *App) openEnv(ctx context.Context, opts envOptions) (*toolEnv, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.initLogging(cfg, opts.server)

	resolver, err := sandbox.NewResolver(cfg.Workspace.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("base directory: %w", err)
	}

	registry := tools.NewRegistry(resolver, cfg.CommandPolicy())
	registry.SetSearchProgram(cfg.Tools.SearchProgram)

	env := &toolEnv{
		cfg:      cfg,
		resolver: resolver,
		registry: registry,
		executor: tools.NewExecutor(registry),
		workspace: workspace.New(resolver, workspace.Options{
			ContextFile:  cfg.Workspace.ContextFile,
			ListingDepth: cfg.Workspace.ListingDepth,
		}),
	}

	if opts.audit && cfg.Audit.Enabled {
		if err := env.openAudit(); err != nil {
			env.Close()
			return nil, err
		}
	}

	// The lockdown goes after every file this process writes is open or known.
	if opts.lockdown && cfg.Sandbox.Landlock {
		if err := env.applyLockdown(); err != nil {
			env.Close()
			return nil, err
		}
	}

	if opts.watch && cfg.Workspace.Watch {
		w, err := workspace.Watch(ctx, env.workspace)
		if err != nil {
			logging.Warn().
				Add(logging.Component("workspace")).
				Add(logging.ErrorField(err)).
				Msg("file watcher unavailable; listing refreshes only on restart")
		} else {
			env.watcher = w
		}
	}

	logging.Debug().
		Add(logging.Component("cli")).
		Add(logging.Str("base_dir", resolver.Base())).
		Add(logging.Bool("audit", env.audit != nil)).
		Add(logging.Bool("watch", env.watcher != nil)).
		Msg("tool environment ready")
	return env, nil
}

func (e *toolEnv) openAudit() error {
	dir, err := config.EnsureConfigDir()
	if err != nil {
		return fmt.Errorf("config directory: %w", err)
	}
	key, _, err := security.LoadAuditKey(dir)
	if err != nil {
		return fmt.Errorf("audit key: %w", err)
	}

	var store *security.AuditStore
	if e.cfg.Audit.SQLitePath != "" {
		store, err = security.OpenAuditStore(e.cfg.Audit.SQLitePath)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
	}

	logger, err := security.NewAuditLogger(security.AuditOptions{
		Path:       e.cfg.Audit.Path,
		MaxSize:    int64(e.cfg.Audit.MaxSizeMB) * 1024 * 1024,
		MaxBackups: e.cfg.Audit.MaxBackups,
		Key:        key,
		Redact:     e.cfg.Audit.Redact,
		Store:      store,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return fmt.Errorf("audit log: %w (run \"rigtools audit verify\" to locate damage)", err)
	}
	e.audit = logger
	e.executor.SetRecorder(logger)
	return nil
}

func (e *toolEnv) applyLockdown() error {
	if !sandbox.Supported() {
		if e.cfg.Sandbox.LandlockStrict {
			return errors.New("landlock is not supported on this platform")
		}
		logging.Warn().
			Add(logging.Component("sandbox")).
			Msg("landlock is not supported on this platform; continuing without it")
		return nil
	}

	var writable []string
	if dir, err := config.ConfigDir(); err == nil {
		writable = append(writable, dir)
	}
	if e.cfg.Audit.Enabled {
		writable = append(writable, filepath.Dir(e.cfg.Audit.Path))
		if e.cfg.Audit.SQLitePath != "" {
			writable = append(writable, filepath.Dir(e.cfg.Audit.SQLitePath))
		}
	}

	lock := sandbox.NewLockdown(e.resolver.Base(), e.cfg.Sandbox.ExtraReadOnly, writable, !e.cfg.Sandbox.LandlockStrict)
	if err := lock.Apply(); err != nil {
		return err
	}
	logging.Info().
		Add(logging.Component("sandbox")).
		Add(logging.Int("grants", len(lock.Grants()))).
		Msg("landlock lockdown applied")
	return nil
}

// Close stops the watcher and flushes the audit trail.
func (e *toolEnv) Close() error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.audit != nil {
		errs = append(errs, e.audit.Close())
	}
	return errors.Join(errs...)
}
