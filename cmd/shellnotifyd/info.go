package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/dbus"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the running notification server's identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
			info, err := client.GetServerInformation(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Name:         %s\n", info.Name)
			fmt.Fprintf(w, "Vendor:       %s\n", info.Vendor)
			fmt.Fprintf(w, "Version:      %s\n", info.Version)
			fmt.Fprintf(w, "Spec version: %s\n", info.SpecVersion)
			return nil
		})
	},
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the running notification server's capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, client *dbus.Client) error {
			caps, err := client.GetCapabilities(ctx)
			if err != nil {
				return err
			}
			for _, c := range caps {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}
