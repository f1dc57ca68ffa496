package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/shellnotifyd/internal/config"
	"github.com/jmylchreest/shellnotifyd/internal/dbus"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
		timeout    time.Duration
	}
	logger   *slog.Logger
	logLevel = new(slog.LevelVar)
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shellnotifyd",
	Short: "Desktop notification broker",
	Long: `shellnotifyd is a desktop notification broker for Linux.

It implements org.freedesktop.Notifications on the session bus, keeps the
live notifications in an ordered store for a shell to display, expires
them, and journals closed notifications to history.

Run "shellnotifyd serve" to start the daemon. The other commands talk to
whichever notification server currently owns the bus name.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		setupLogger(cfg)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/shellnotifyd/config.toml)")
	rootCmd.PersistentFlags().DurationVar(&globalOpts.timeout, "timeout", 5*time.Second,
		"Timeout for calls to the notification server")
}

// setupLogger configures the global slog logger. --verbose wins over log.level.
func setupLogger(c *config.Config) {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if globalOpts.verbose {
		level = slog.LevelDebug
	}
	logLevel.Set(level)

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// configPath returns the config file in use.
func configPath() string {
	if globalOpts.configPath != "" {
		return globalOpts.configPath
	}
	return config.ConfigPath()
}

// withClient runs fn with a session bus client and a call timeout.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, client *dbus.Client) error) error {
	client, err := dbus.NewClient(logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), globalOpts.timeout)
	defer cancel()

	return fn(ctx, client)
}
