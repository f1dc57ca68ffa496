package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/shellnotifyd/internal/config"
	"github.com/jmylchreest/shellnotifyd/internal/dbus"
	"github.com/jmylchreest/shellnotifyd/internal/history"
	"github.com/jmylchreest/shellnotifyd/internal/model"
	"github.com/jmylchreest/shellnotifyd/internal/store"
)

// Options configures a Daemon.
type Options struct {
	// ConfigPath is watched for changes. Empty disables hot reload.
	ConfigPath string
	// Version is reported in the startup notification.
	Version string
	// LogLevel, when set, is updated from log.level on reload.
	LogLevel *slog.LevelVar
}

// Daemon wires the notification server to expiry, history and config reload.
type Daemon struct {
	opts   Options
	logger *slog.Logger

	store    *store.Store
	server   *dbus.Server
	expirer  *Expirer
	notifier *InternalNotifier
	watcher  *ConfigWatcher
	journal  *history.Journal

	mu  sync.RWMutex
	cfg *config.Config
}

// New builds a Daemon serving on bus. The history journal is opened here
// when enabled in cfg.
func New(cfg *config.Config, bus dbus.Bus, opts Options, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		opts:   opts,
		logger: logger,
		cfg:    cfg,
		store:  store.NewStore(),
	}

	d.server = dbus.NewServer(bus, d.store, logger)
	d.server.SetServerInfo(serverInfo(cfg))
	d.server.SetNotifyHandler(d.onNotify)
	d.server.SetCloseHandler(d.onClose)

	d.expirer = NewExpirer(func(r *model.Record) error {
		return d.server.CloseRecord(r, dbus.CloseReasonExpired)
	}, d.store.Holds, cfg.TimeoutFor, logger)

	d.notifier = NewInternalNotifier(logger)
	d.notifier.SetNotifyHandler(d.server.NotifyInternal)
	d.notifier.SetEnabled(cfg.Server.NotifyOnReload)

	if cfg.History.Enabled {
		journal, err := history.Open(cfg.HistoryPath(), cfg.History.MaxEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		d.journal = journal
		logger.Info("history journal opened", "path", journal.Path(), "count", journal.Len())
	}

	if opts.ConfigPath != "" {
		d.watcher = NewConfigWatcher(opts.ConfigPath, logger)
		d.watcher.SetReloadCallback(d.applyConfig)
		d.watcher.SetErrorCallback(func(err error) {
			d.notifier.NotifyConfigError(err)
		})
	}

	return d, nil
}

// Server returns the notification server.
func (d *Daemon) Server() *dbus.Server {
	return d.server
}

// Store returns the live notification store.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Run starts serving and blocks until ctx is cancelled, then shuts down.
// Only a failure to start is returned; everything after is logged.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.server.Start(); err != nil {
		d.shutdown()
		return err
	}

	if d.watcher != nil {
		if err := d.watcher.Start(ctx, d.Config()); err != nil {
			d.logger.Warn("config hot reload disabled", "error", err)
		}
	}

	if d.opts.Version != "" {
		d.notifier.NotifyStartup(d.opts.Version)
	}

	<-ctx.Done()
	d.logger.Info("shutting down")

	return d.shutdown()
}

func (d *Daemon) shutdown() error {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.expirer.Stop()

	var errs []error
	if err := d.server.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := d.store.Close(); err != nil && !errors.Is(err, store.ErrStoreClosed) {
		errs = append(errs, err)
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (d *Daemon) onNotify(r *model.Record, replaced bool) {
	d.logger.Info("notification received",
		"id", r.ID,
		"app_name", r.AppName,
		"summary", r.Summary,
		"urgency", r.Hints.Urgency.String(),
		"replaced", replaced,
	)
	d.expirer.Schedule(r)
}

func (d *Daemon) onClose(r *model.Record, reason dbus.CloseReason) {
	d.expirer.Cancel(r)

	d.logger.Debug("notification closed", "id", r.ID, "reason", reason.String())

	if d.journal == nil || !history.Recordable(r) {
		return
	}
	if err := d.journal.Append(history.NewEntry(r, reason.String(), time.Now())); err != nil {
		d.logger.Error("failed to record notification history", "id", r.ID, "error", err)
	}
}

// applyConfig applies the settings that can change while running.
// Bus name options and the history location need a restart.
func (d *Daemon) applyConfig(cfg *config.Config) {
	d.mu.Lock()
	old := d.cfg
	d.cfg = cfg
	d.mu.Unlock()

	d.server.SetServerInfo(serverInfo(cfg))
	d.expirer.SetDefaults(cfg.TimeoutFor)
	d.notifier.SetEnabled(cfg.Server.NotifyOnReload)

	if d.journal != nil {
		d.journal.SetMaxEntries(cfg.History.MaxEntries)
	}

	if d.opts.LogLevel != nil {
		if level, err := cfg.LogLevel(); err == nil {
			d.opts.LogLevel.Set(level)
		}
	}

	if old.Server.Replace != cfg.Server.Replace ||
		old.Server.AllowReplacement != cfg.Server.AllowReplacement ||
		old.History.Enabled != cfg.History.Enabled ||
		old.HistoryPath() != cfg.HistoryPath() {
		d.logger.Warn("some configuration changes take effect after restart")
	}

	d.notifier.NotifyConfigReloaded()
}

func serverInfo(cfg *config.Config) dbus.ServerInfo {
	return dbus.ServerInfo{
		Name:        cfg.Server.Name,
		Vendor:      cfg.Server.Vendor,
		Version:     cfg.Server.Version,
		SpecVersion: cfg.Server.SpecVersion,
	}
}
