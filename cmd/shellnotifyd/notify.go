package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/dbus"
	"github.com/jmylchreest/shellnotifyd/internal/model"
)

var notifyOpts struct {
	appName   string
	icon      string
	urgency   string
	category  string
	replaces  uint32
	timeout   int32
	actions   []string
	transient bool
	resident  bool
	printID   bool
}

var notifyCmd = &cobra.Command{
	Use:   "notify SUMMARY [BODY]",
	Short: "Send a notification",
	Long: `Send a notification to the running notification server.

Examples:
  # Simple notification
  shellnotifyd notify "Build finished"

  # Critical notification that never expires
  shellnotifyd notify -u critical -t 0 "Disk full" "/home is at 99%"

  # Replace notification 12 and add an action
  shellnotifyd notify -r 12 -A default=Open "Download" "50% done"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runNotify,
}

var closeCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close a notification through CloseNotification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
			return client.CloseNotification(ctx, id)
		})
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(closeCmd)

	notifyCmd.Flags().StringVarP(&notifyOpts.appName, "app-name", "a", "shellnotifyd",
		"Application name")
	notifyCmd.Flags().StringVarP(&notifyOpts.icon, "icon", "i", "",
		"Icon name or path")
	notifyCmd.Flags().StringVarP(&notifyOpts.urgency, "urgency", "u", "normal",
		"Urgency: low, normal, critical")
	notifyCmd.Flags().StringVarP(&notifyOpts.category, "category", "c", "",
		"Notification category, e.g. email.arrived")
	notifyCmd.Flags().Uint32VarP(&notifyOpts.replaces, "replace-id", "r", 0,
		"ID of a notification to replace")
	notifyCmd.Flags().Int32VarP(&notifyOpts.timeout, "expire-time", "t", -1,
		"Expiry in milliseconds (-1=server default, 0=never)")
	notifyCmd.Flags().StringArrayVarP(&notifyOpts.actions, "action", "A", nil,
		"Action as KEY=LABEL (repeatable)")
	notifyCmd.Flags().BoolVar(&notifyOpts.transient, "transient", false,
		"Keep the notification out of history")
	notifyCmd.Flags().BoolVar(&notifyOpts.resident, "resident", false,
		"Keep the notification after an action is invoked")
	notifyCmd.Flags().BoolVarP(&notifyOpts.printID, "print-id", "p", false,
		"Print the notification ID")
}

func runNotify(cmd *cobra.Command, args []string) error {
	body := ""
	if len(args) > 1 {
		body = args[1]
	}

	r := model.NewRecord(notifyOpts.appName, args[0], body)
	r.AppIcon = notifyOpts.icon
	r.ReplacesID = notifyOpts.replaces
	r.ExpireTimeout = notifyOpts.timeout
	r.Hints.Category = notifyOpts.category
	r.Hints.Transient = notifyOpts.transient
	r.Hints.Resident = notifyOpts.resident

	urgency, err := model.ParseUrgency(notifyOpts.urgency)
	if err != nil {
		return err
	}
	r.Hints.Urgency = urgency

	actions, err := parseActions(notifyOpts.actions)
	if err != nil {
		return err
	}
	r.Actions = actions

	return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
		id, err := client.Notify(ctx, r)
		if err != nil {
			return err
		}
		if notifyOpts.printID {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	})
}

// parseActions turns KEY=LABEL pairs into the flat action list. A bare
// KEY uses the key as its label.
func parseActions(pairs []string) ([]string, error) {
	actions := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		key, label, found := strings.Cut(p, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid action %q: want KEY=LABEL", p)
		}
		if !found {
			label = key
		}
		actions = append(actions, key, label)
	}
	return actions, nil
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid notification id %q", s)
	}
	return uint32(id), nil
}
