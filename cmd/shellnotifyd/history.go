package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/history"
	"github.com/jmylchreest/shellnotifyd/internal/model"
)

var historyOpts struct {
	format  string
	limit   int
	since   string
	app     string
	urgency string
	reason  string
}

var pruneOpts struct {
	keep int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show closed notifications",
	Long: `Show notifications from the history journal, newest first.

Examples:
  # Last 20 notifications
  shellnotifyd history --limit 20

  # Everything Slack sent in the last day, as JSON
  shellnotifyd history --app Slack --since 1d --format json

  # Notifications that expired unseen
  shellnotifyd history --reason expired`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old entries from history",
	Long: `Remove old entries from the history journal.

Examples:
  # Keep only the 100 most recent entries
  shellnotifyd history prune --keep 100`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := history.Open(cfg.HistoryPath(), 0)
		if err != nil {
			return err
		}
		defer journal.Close()

		if err := journal.Clear(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyCmd.Flags().StringVarP(&historyOpts.format, "format", "f", "plain",
		"Output format: plain, json, yaml")
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 0,
		"Maximum entries to show (0=unlimited)")
	historyCmd.Flags().StringVar(&historyOpts.since, "since", "",
		"Only entries closed within this window (e.g., 1h, 7d, 1w)")
	historyCmd.Flags().StringVar(&historyOpts.app, "app", "",
		"Only entries from this application")
	historyCmd.Flags().StringVar(&historyOpts.urgency, "urgency", "",
		"Only entries of this urgency: low, normal, critical")
	historyCmd.Flags().StringVar(&historyOpts.reason, "reason", "",
		"Only entries closed for this reason: expired, dismissed, closed, undefined")

	historyPruneCmd.Flags().IntVar(&pruneOpts.keep, "keep", 0,
		"Keep only the N most recent entries")
	_ = historyPruneCmd.MarkFlagRequired("keep")
}

func runHistory(cmd *cobra.Command, args []string) error {
	opts := history.FilterOptions{
		App:    historyOpts.app,
		Reason: historyOpts.reason,
		Limit:  historyOpts.limit,
	}

	since, err := history.ParseDuration(historyOpts.since)
	if err != nil {
		return err
	}
	opts.Since = since

	if historyOpts.urgency != "" {
		u, err := model.ParseUrgency(historyOpts.urgency)
		if err != nil {
			return err
		}
		opts.Urgency = &u
	}

	formatter, err := history.NewFormatter(history.FormatType(historyOpts.format), history.DefaultFormatterOptions())
	if err != nil {
		return err
	}

	journal, err := history.Open(cfg.HistoryPath(), 0)
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := journal.Load()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	return formatter.Format(cmd.OutOrStdout(), history.Filter(entries, opts))
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if pruneOpts.keep < 0 {
		return fmt.Errorf("--keep must not be negative")
	}

	journal, err := history.Open(cfg.HistoryPath(), 0)
	if err != nil {
		return err
	}
	defer journal.Close()

	removed, err := journal.Prune(pruneOpts.keep)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	logger.Debug("pruned history", "path", journal.Path(), "removed", removed)
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s entries, %s kept\n",
		humanize.Comma(int64(removed)), humanize.Comma(int64(journal.Len())))
	return nil
}
