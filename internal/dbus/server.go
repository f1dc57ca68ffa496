package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/shellnotifyd/internal/model"
	"github.com/jmylchreest/shellnotifyd/internal/store"
)

const (
	// Interface is the notification interface name.
	Interface = "org.freedesktop.Notifications"
	// ObjectPath is the notification object path.
	ObjectPath = "/org/freedesktop/Notifications"
	// BusName is the bus name to claim.
	BusName = "org.freedesktop.Notifications"
	// ControlInterfaceName is the daemon's own management interface,
	// exported next to the notification interface.
	ControlInterfaceName = "io.github.jmylchreest.shellnotifyd.Control"
)

// D-Bus error names used in replies.
const (
	ErrorInvalidArgs   = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrorFailed        = "org.freedesktop.DBus.Error.Failed"
	ErrorUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

var (
	// ErrNotFound is returned when no live notification has the given id.
	ErrNotFound = errors.New("notification not found")
	// ErrNotOwned is returned when signalling while the bus name is not owned.
	ErrNotOwned = errors.New("bus name not owned")
	// ErrUnknownAction is returned when invoking an action the notification
	// does not offer.
	ErrUnknownAction = errors.New("unknown action")
)

// NotifyHandler is called after a notification has been stored.
// replaced is true when an existing notification was updated in place.
type NotifyHandler func(r *model.Record, replaced bool)

// CloseHandler is called after a notification has been removed.
type CloseHandler func(r *model.Record, reason CloseReason)

// Server implements org.freedesktop.Notifications on top of a Store.
type Server struct {
	bus    Bus
	store  *store.Store
	logger *slog.Logger

	mu            sync.RWMutex
	conn          Conn
	unregister    []func() error
	owned         bool
	running       bool
	serverInfo    ServerInfo
	notifyHandler NotifyHandler
	closeHandler  CloseHandler
}

// NewServer creates a Server that keeps its notifications in st and
// claims BusName on bus when started.
func NewServer(bus Bus, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:        bus,
		store:      st,
		logger:     logger,
		serverInfo: DefaultServerInfo(),
	}
}

// SetNotifyHandler sets the handler called when a notification is stored.
func (s *Server) SetNotifyHandler(handler NotifyHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyHandler = handler
}

// SetCloseHandler sets the handler called when a notification is closed.
func (s *Server) SetCloseHandler(handler CloseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// SetServerInfo sets the server information returned by GetServerInformation.
func (s *Server) SetServerInfo(info ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverInfo = info
}

// ServerInfo returns the current server information.
func (s *Server) ServerInfo() ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo
}

// Owned reports whether the server currently owns the bus name.
func (s *Server) Owned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owned
}

// Store returns the backing store.
func (s *Server) Store() *store.Store {
	return s.store
}

// Start claims the bus name and registers the method handlers. A failure
// to register is returned as a setup error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.bus.OwnName(BusName, s.onAcquired, s.onLost); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to own %s: %w", BusName, err)
	}

	s.logger.Info("notification server started", "interface", Interface, "path", ObjectPath)
	return nil
}

// Stop unregisters the handlers and closes the bus.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.releaseHandlers()

	if err := s.bus.Close(); err != nil {
		return fmt.Errorf("failed to close bus: %w", err)
	}

	s.logger.Info("notification server stopped")
	return nil
}

func (s *Server) onAcquired(conn Conn) error {
	unregisterNotify, err := conn.Register(ObjectPath, NotificationsInterface(), s.handleMethod)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", Interface, err)
	}
	unregisterControl, err := conn.Register(ObjectPath, ControlInterface(), s.handleControl)
	if err != nil {
		if uerr := unregisterNotify(); uerr != nil {
			s.logger.Warn("failed to unregister handlers", "error", uerr)
		}
		return fmt.Errorf("failed to register %s: %w", ControlInterfaceName, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.unregister = []func() error{unregisterNotify, unregisterControl}
	s.owned = true
	s.mu.Unlock()

	s.logger.Debug("acquired bus name", "name", BusName)
	return nil
}

func (s *Server) onLost() {
	s.logger.Warn("bus name lost, no longer serving notifications", "name", BusName)
	s.releaseHandlers()
}

func (s *Server) releaseHandlers() {
	s.mu.Lock()
	unregister := s.unregister
	s.unregister = nil
	s.owned = false
	s.mu.Unlock()

	for _, fn := range unregister {
		if err := fn(); err != nil {
			s.logger.Warn("failed to unregister handlers", "error", err)
		}
	}
}

// handleMethod dispatches org.freedesktop.Notifications calls.
func (s *Server) handleMethod(method string, args []any, inv Invocation) {
	switch method {
	case "Notify":
		s.handleNotify(args, inv)
	case "CloseNotification":
		s.handleCloseNotification(args, inv)
	case "GetCapabilities":
		s.logger.Debug("GetCapabilities called")
		inv.Return(slices.Clone(ServerCapabilities))
	case "GetServerInformation":
		s.logger.Debug("GetServerInformation called")
		info := s.ServerInfo()
		inv.Return(info.Name, info.Vendor, info.Version, info.SpecVersion)
	default:
		s.logger.Debug("unknown method called", "method", method)
		inv.ReturnError(ErrorUnknownMethod, fmt.Sprintf("Method %s is not known to server", method))
	}
}

// handleNotify serves Notify(susssasa{sv}i) -> u.
func (s *Server) handleNotify(args []any, inv Invocation) {
	r, err := ParseNotify(args)
	if err != nil {
		s.logger.Debug("rejected Notify call", "error", err)
		inv.ReturnError(ErrorInvalidArgs, err.Error())
		return
	}

	id, replaced, err := s.insert(r)
	if err != nil {
		s.logger.Error("failed to store notification", "app_name", r.AppName, "error", err)
		inv.ReturnError(ErrorFailed, err.Error())
		return
	}

	inv.Return(id)
	s.notifyStored(r, replaced)
}

// handleCloseNotification serves CloseNotification(u).
func (s *Server) handleCloseNotification(args []any, inv Invocation) {
	id, err := ParseID(args)
	if err != nil {
		inv.ReturnError(ErrorInvalidArgs, err.Error())
		return
	}

	s.logger.Debug("CloseNotification called", "id", id)

	r, err := s.remove(id)
	switch {
	case errors.Is(err, ErrNotFound):
		inv.ReturnError(ErrorFailed, fmt.Sprintf("notification with id %d not found", id))
		return
	case err != nil:
		inv.ReturnError(ErrorFailed, err.Error())
		return
	}

	inv.Return()
	s.closed(r, CloseReasonClosed)
}

// insert stores r, replacing the live notification named by r.ReplacesID
// when there is one. A replaces id that is not live is treated as a new
// notification.
func (s *Server) insert(r *model.Record) (uint32, bool, error) {
	r.Timestamp = time.Now()

	if r.ReplacesID != 0 {
		_, ok, err := s.store.Replace(r.ReplacesID, r)
		if err != nil {
			return 0, false, err
		}
		if ok {
			s.logger.Debug("replaced notification",
				"id", r.ID,
				"app_name", r.AppName,
				"summary", r.Summary,
			)
			return r.ID, true, nil
		}
		s.logger.Debug("replaces_id not live, storing as new", "replaces_id", r.ReplacesID)
	}

	id, err := s.store.PushTail(r)
	if err != nil {
		return 0, false, err
	}

	s.logger.Debug("stored notification",
		"id", id,
		"app_name", r.AppName,
		"summary", r.Summary,
	)
	return id, false, nil
}

// remove takes id out of the store. Structural store errors are logged
// here since they indicate a bug rather than a bad request.
func (s *Server) remove(id uint32) (*model.Record, error) {
	r, ok, err := s.store.Remove(id)
	return s.removed(id, r, ok, err)
}

func (s *Server) removed(id uint32, r *model.Record, ok bool, err error) (*model.Record, error) {
	if err != nil {
		if errors.Is(err, store.ErrMalformed) {
			s.logger.Error("notification store is malformed", "id", id, "error", err)
		}
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r, nil
}

func (s *Server) notifyStored(r *model.Record, replaced bool) {
	s.mu.RLock()
	handler := s.notifyHandler
	s.mu.RUnlock()

	if handler != nil {
		handler(r, replaced)
	}
}

// closed emits NotificationClosed for r and runs the close handler.
// Emission failures are logged only.
func (s *Server) closed(r *model.Record, reason CloseReason) {
	if err := s.EmitNotificationClosed(r.ID, reason); err != nil {
		s.logger.Warn("failed to emit NotificationClosed signal", "id", r.ID, "error", err)
	}

	s.mu.RLock()
	handler := s.closeHandler
	s.mu.RUnlock()

	if handler != nil {
		handler(r, reason)
	}
}

// NotifyInternal stores a notification created by the daemon itself, such
// as a configuration reload notice, and returns its id.
func (s *Server) NotifyInternal(r *model.Record) (uint32, error) {
	id, replaced, err := s.insert(r)
	if err != nil {
		return 0, err
	}
	s.notifyStored(r, replaced)
	return id, nil
}

// CloseWithReason removes a notification and emits NotificationClosed with
// the given reason. It closes whatever currently holds id, as a Dismiss
// request naming that id expects.
func (s *Server) CloseWithReason(id uint32, reason CloseReason) error {
	r, err := s.remove(id)
	if err != nil {
		return err
	}
	s.closed(r, reason)
	return nil
}

// CloseRecord is CloseWithReason for one specific record. It fails with
// ErrNotFound once r is no longer live, even when its id has been reissued
// to another notification.
func (s *Server) CloseRecord(r *model.Record, reason CloseReason) error {
	removed, ok, err := s.store.RemoveIf(r.ID, r)
	removed, err = s.removed(r.ID, removed, ok, err)
	if err != nil {
		return err
	}
	s.closed(removed, reason)
	return nil
}
