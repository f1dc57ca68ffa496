package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/dbus"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print notification signals as they happen",
	Long: `Print NotificationClosed, ActionInvoked and ActivationToken signals
from the notification server until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, err := dbus.NewClient(logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := client.Watch(ctx)
	if err != nil {
		return err
	}

	for ev := range events {
		fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev, time.Now()))
	}
	return nil
}

func formatEvent(ev dbus.Event, at time.Time) string {
	prefix := fmt.Sprintf("%s %-18s id=%d", at.Format(time.TimeOnly), ev.Type, ev.ID)
	switch ev.Type {
	case dbus.EventClosed:
		return fmt.Sprintf("%s reason=%s", prefix, ev.Reason)
	case dbus.EventActionInvoked:
		return fmt.Sprintf("%s action=%s", prefix, ev.ActionKey)
	case dbus.EventActivationToken:
		return fmt.Sprintf("%s token=%s", prefix, ev.Token)
	default:
		return prefix
	}
}
