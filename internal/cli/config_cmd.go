// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/ui"
)

func (a *App) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize the configuration",
		Long: `Inspect and initialize the rigtools configuration.

The config file is read from the config directory (~/.rigtools, or
$RIGTOOLS_CONFIG_DIR) as config.toml, config.json or config.yaml, in that
order. RIGTOOLS_* environment variables override the file.`,
	}

	cmd.AddCommand(
		a.newConfigShowCmd(),
		a.newConfigGetCmd(),
		a.newConfigPathCmd(),
		a.newConfigInitCmd(),
	)
	return cmd
}

func (a *App) newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			safe := cfg.Redacted()

			switch format {
			case "toml":
				return toml.NewEncoder(a.stdout).Encode(safe)
			case "json":
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(safe)
			case "yaml":
				enc := yaml.NewEncoder(a.stdout)
				enc.SetIndent(2)
				if err := enc.Encode(safe); err != nil {
					return err
				}
				return enc.Close()
			default:
				return &tools.ArgumentError{Param: "format", Message: fmt.Sprintf("unknown format %q (toml, json, yaml)", format)}
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "toml", "Output format (toml, json, yaml)")
	return cmd
}

func (a *App) newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print one setting by its dotted key",
		Long: `Print one setting by its dotted key, for example "audit.max_size_mb".
Run without a matching key to see the valid ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				fmt.Fprintln(a.stderr, ui.MutedStyle.Render("valid keys:"))
				for _, k := range config.Keys() {
					fmt.Fprintln(a.stderr, ui.MutedStyle.Render("  "+k))
				}
				return &tools.ArgumentError{Param: args[0], Message: err.Error()}
			}
			fmt.Fprintln(a.stdout, v)
			return nil
		},
	}
}

func (a *App) newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath != "" {
				fmt.Fprintln(a.stdout, a.configPath)
				return nil
			}
			path, err := existingConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
}

func (a *App) newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath("toml")
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(config.Default()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, ui.SuccessStyle.Render("Wrote "+path))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config.toml")
	return cmd
}

// existingConfigPath returns the config file Load would read, or the
// config.toml path when none exists yet.
func existingConfigPath() (string, error) {
	for _, ext := range []string{"toml", "json", "yaml"} {
		path, err := config.ConfigPath(ext)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return config.ConfigPath("toml")
}
