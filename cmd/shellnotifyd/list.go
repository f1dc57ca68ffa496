package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/dbus"
	"github.com/jmylchreest/shellnotifyd/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live notifications held by shellnotifyd",
	Long: `List the notifications currently held by a running shellnotifyd,
in display order. Requires shellnotifyd to be the notification server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
			entries, err := client.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAPP\tURGENCY\tSUMMARY")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.AppName, model.Urgency(e.Urgency), e.Summary)
			}
			return tw.Flush()
		})
	},
}

var dismissCmd = &cobra.Command{
	Use:   "dismiss ID",
	Short: "Dismiss a notification as the user would",
	Long: `Dismiss a notification. Unlike close, watchers see the
NotificationClosed signal with reason "dismissed".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
			return client.Dismiss(ctx, id)
		})
	},
}

var actionCmd = &cobra.Command{
	Use:   "action ID KEY",
	Short: "Invoke one of a notification's actions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
			return client.InvokeAction(ctx, id, args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(actionCmd)
}
