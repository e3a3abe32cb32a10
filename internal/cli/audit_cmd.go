// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigtools/internal/config"
	"github.com/jeranaias/rigtools/internal/security"
	"github.com/jeranaias/rigtools/internal/ui"
	"github.com/jeranaias/rigtools/internal/util"
)

// statsScanLimit bounds how many events "audit stats" reads from the log
// when no SQLite store is configured.
const statsScanLimit = 100000

func (a *App) newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the tool-call audit trail",
		Long: `Inspect the tool-call audit trail.

Every tool call is appended to a MAC-chained JSON-lines log. Each rotated
file is its own chain; "verify" checks all of them with the audit key.`,
	}

	cmd.AddCommand(
		a.newAuditVerifyCmd(),
		a.newAuditTailCmd(),
		a.newAuditStatsCmd(),
		a.newAuditRotateCmd(),
	)
	return cmd
}

func (a *App) newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of every audit file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			a.initLogging(cfg, false)

			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			key, source, err := security.ReadAuditKey(dir)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no audit key found (nothing has been audited yet?): %w", err)
				}
				return err
			}

			reports, err := security.VerifyAll(cfg.Audit.Path, key)
			for _, r := range reports {
				fmt.Fprintf(a.stdout, "%s %s (%d entries)\n", ui.SuccessStyle.Render("OK"), r.Path, r.Lines)
			}
			if err != nil {
				var chainErr *security.ChainError
				if errors.As(err, &chainErr) {
					fmt.Fprintf(a.stdout, "%s %s\n", ui.ErrorStyle.Render("BROKEN"), chainErr.Error())
				}
				return err
			}
			if len(reports) == 0 {
				fmt.Fprintln(a.stdout, ui.MutedStyle.Render("no audit files at "+cfg.Audit.Path))
				return nil
			}
			fmt.Fprintln(a.stdout, ui.MutedStyle.Render(fmt.Sprintf("key %s from %s", security.KeyFingerprint(key), source)))
			return nil
		},
	}
}

func (a *App) newAuditTailCmd() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			events, err := security.Tail(cfg.Audit.Path, lines)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Fprintln(a.stdout, ev.ToLogLine())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of entries to print")
	return cmd
}

func (a *App) newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize calls per tool",
		Long: `Summarize calls per tool. The SQLite store is used when audit.sqlite_path
is set; otherwise the active log file is scanned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			var stats []security.ToolStats
			if cfg.Audit.SQLitePath != "" {
				store, err := security.OpenAuditStore(cfg.Audit.SQLitePath)
				if err != nil {
					return err
				}
				defer store.Close()
				if stats, err = store.Stats(cmd.Context()); err != nil {
					return err
				}
			} else {
				events, err := security.Tail(cfg.Audit.Path, statsScanLimit)
				if err != nil {
					return err
				}
				stats = statsFromEvents(events)
			}

			a.printStats(stats)
			return nil
		},
	}
}

// statsFromEvents aggregates events per tool, ordered by tool name.
func statsFromEvents(events []security.AuditEvent) []security.ToolStats {
	byTool := make(map[string]*security.ToolStats)
	totals := make(map[string]int64)
	for _, ev := range events {
		st, ok := byTool[ev.Tool]
		if !ok {
			st = &security.ToolStats{Tool: ev.Tool}
			byTool[ev.Tool] = st
		}
		st.Calls++
		if !ev.Success {
			st.Failures++
		}
		totals[ev.Tool] += ev.DurationMS
	}

	stats := make([]security.ToolStats, 0, len(byTool))
	for name, st := range byTool {
		st.AvgDurationMS = float64(totals[name]) / float64(st.Calls)
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Tool < stats[j].Tool })
	return stats
}

func (a *App) printStats(stats []security.ToolStats) {
	if len(stats) == 0 {
		fmt.Fprintln(a.stdout, ui.MutedStyle.Render("no calls recorded"))
		return
	}
	fmt.Fprintln(a.stdout, ui.SectionStyle.Render(
		util.PadRight("TOOL", 14)+util.PadRight("CALLS", 8)+util.PadRight("FAILED", 8)+"AVG MS"))
	for _, st := range stats {
		fmt.Fprintln(a.stdout,
			util.PadRight(st.Tool, 14)+
				util.PadRight(strconv.Itoa(st.Calls), 8)+
				util.PadRight(strconv.Itoa(st.Failures), 8)+
				strconv.FormatFloat(st.AvgDurationMS, 'f', 1, 64))
	}
}

func (a *App) newAuditRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Start a new audit file and chain now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.openEnv(cmd.Context(), envOptions{audit: true})
			if err != nil {
				return err
			}
			defer env.Close()

			if env.audit == nil {
				return errors.New("audit trail is disabled (audit.enabled = false)")
			}
			if err := env.audit.Rotate(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, ui.SuccessStyle.Render("Rotated "+env.audit.Path()))
			return nil
		},
	}
}
