package daemon

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/shellnotifyd/internal/config"
	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// NotificationLevel indicates the urgency/severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency).
	NotificationLevelError
)

// InternalNotifier posts notifications about the daemon's own events
// through the normal notification path. Repeats of the same key are
// rate limited.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	notifyHandler func(r *model.Record) (uint32, error)

	lastNotifyTime map[string]time.Time
	minInterval    time.Duration

	enabled bool
	now     func() time.Time
}

// NewInternalNotifier creates a new InternalNotifier.
func NewInternalNotifier(logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:         logger,
		lastNotifyTime: make(map[string]time.Time),
		minInterval:    5 * time.Second,
		enabled:        true,
		now:            time.Now,
	}
}

// SetNotifyHandler sets the function that stores a notification.
func (n *InternalNotifier) SetNotifyHandler(handler func(r *model.Record) (uint32, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifyHandler = handler
}

// SetEnabled enables or disables internal notifications.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between duplicate notifications.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.minInterval = interval
}

// Notify sends an internal notification if not rate-limited and returns
// its id, or 0 when nothing was sent.
func (n *InternalNotifier) Notify(key, summary, body string, level NotificationLevel) uint32 {
	n.mu.Lock()
	if !n.enabled {
		n.mu.Unlock()
		return 0
	}
	handler := n.notifyHandler
	if handler == nil {
		n.mu.Unlock()
		n.logger.Debug("internal notification skipped: no handler", "summary", summary)
		return 0
	}
	now := n.now()
	if last, ok := n.lastNotifyTime[key]; ok && now.Sub(last) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("internal notification rate-limited", "key", key, "summary", summary)
		return 0
	}
	n.lastNotifyTime[key] = now
	n.mu.Unlock()

	r := model.NewRecord(config.AppName, summary, body)
	r.ExpireTimeout = 5000
	r.Hints.Category = "device"
	r.Hints.DesktopEntry = config.AppName
	r.Hints.Transient = true // Kept out of the history journal

	switch level {
	case NotificationLevelInfo:
		r.Hints.Urgency = model.UrgencyLow
		r.AppIcon = "dialog-information"
	case NotificationLevelWarning:
		r.Hints.Urgency = model.UrgencyNormal
		r.AppIcon = "dialog-warning"
	case NotificationLevelError:
		r.Hints.Urgency = model.UrgencyCritical
		r.AppIcon = "dialog-error"
	}

	n.logger.Debug("sending internal notification", "key", key, "summary", summary, "level", level)

	id, err := handler(r)
	if err != nil {
		n.logger.Warn("failed to send internal notification", "key", key, "error", err)
		return 0
	}
	return id
}

// NotifyConfigReloaded sends a notification about config being reloaded.
func (n *InternalNotifier) NotifyConfigReloaded() uint32 {
	return n.Notify(
		"config-reload",
		"Configuration Reloaded",
		config.AppName+" configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError sends a notification about config validation error.
func (n *InternalNotifier) NotifyConfigError(err error) uint32 {
	return n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyStartup sends a notification that the daemon has started.
func (n *InternalNotifier) NotifyStartup(version string) uint32 {
	return n.Notify(
		"startup",
		config.AppName+" Started",
		"Notification daemon v"+version+" is now running.",
		NotificationLevelInfo,
	)
}
