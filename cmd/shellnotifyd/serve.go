package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/daemon"
	"github.com/jmylchreest/shellnotifyd/internal/dbus"
)

var serveOpts struct {
	replace  bool
	noReload bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notification daemon",
	Long: `Claim org.freedesktop.Notifications on the session bus and serve
notifications until interrupted.

Examples:
  # Start the daemon
  shellnotifyd serve

  # Take over from a running notification daemon
  shellnotifyd serve --replace`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveOpts.replace, "replace", false,
		"Replace a running notification daemon (overrides server.replace)")
	serveCmd.Flags().BoolVar(&serveOpts.noReload, "no-reload", false,
		"Do not watch the config file for changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting shellnotifyd", "version", version)

	bus, err := dbus.ConnectSessionBus(dbus.SessionBusOptions{
		Replace:          cfg.Server.Replace || serveOpts.replace,
		AllowReplacement: cfg.Server.AllowReplacement,
	}, logger)
	if err != nil {
		return err
	}

	opts := daemon.Options{Version: version}
	if !serveOpts.noReload {
		opts.ConfigPath = configPath()
	}
	if !globalOpts.verbose {
		// Reloads follow log.level unless --verbose pinned it.
		opts.LogLevel = logLevel
	}

	d, err := daemon.New(cfg, bus, opts, logger)
	if err != nil {
		_ = bus.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		_ = bus.Close()
		return fmt.Errorf("notification server: %w", err)
	}
	return nil
}
