package dbus

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Bus is the capability to own a well-known name on a message bus.
// acquired runs once the name is owned; a non-nil error from it aborts
// OwnName and releases the name. lost runs at most once, when ownership is
// taken away afterwards.
type Bus interface {
	OwnName(name string, acquired func(Conn) error, lost func()) error
	Close() error
}

// Conn is the capability handed to the owner of a name.
type Conn interface {
	// Register exposes iface at path. Every call on it is routed to h.
	Register(path string, iface introspect.Interface, h MethodHandler) (unregister func() error, err error)
	// Emit broadcasts signal iface.member from path.
	Emit(path, iface, member string, args ...any) error
}

// MethodHandler serves one incoming method call. It must answer through
// inv exactly once.
type MethodHandler func(method string, args []any, inv Invocation)

// Invocation is the reply side of a single method call.
type Invocation interface {
	Return(values ...any)
	ReturnError(name, message string)
}

// ErrNameTaken is returned by OwnName when another connection owns the
// name and does not allow replacement.
var ErrNameTaken = errors.New("bus name already taken")

// SessionBusOptions configures name ownership on the session bus.
type SessionBusOptions struct {
	// Replace takes the name over from a current owner that allows it.
	Replace bool
	// AllowReplacement lets a later daemon take the name from us.
	AllowReplacement bool
}

// SessionBus implements Bus on a private connection to the session bus.
type SessionBus struct {
	conn    *dbus.Conn
	handler *objectHandler
	opts    SessionBusOptions
	logger  *slog.Logger

	mu      sync.Mutex
	signals chan *dbus.Signal
	owned   []string
	closed  bool
}

// ConnectSessionBus opens a private session bus connection.
func ConnectSessionBus(opts SessionBusOptions, logger *slog.Logger) (*SessionBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	handler := newObjectHandler()
	conn, err := dbus.ConnectSessionBus(dbus.WithHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	handler.setSender(func(msg *dbus.Message) {
		conn.Send(msg, nil)
	})

	return &SessionBus{
		conn:    conn,
		handler: handler,
		opts:    opts,
		logger:  logger,
	}, nil
}

// OwnName requests name and runs acquired with a Conn bound to it.
func (b *SessionBus) OwnName(name string, acquired func(Conn) error, lost func()) error {
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameLost"),
		dbus.WithMatchArg(0, name),
	); err != nil {
		return fmt.Errorf("failed to watch NameLost: %w", err)
	}

	signals := make(chan *dbus.Signal, 8)
	b.conn.Signal(signals)

	flags := dbus.NameFlagDoNotQueue
	if b.opts.Replace {
		flags |= dbus.NameFlagReplaceExisting
	}
	if b.opts.AllowReplacement {
		flags |= dbus.NameFlagAllowReplacement
	}

	reply, err := b.conn.RequestName(name, flags)
	if err != nil {
		b.conn.RemoveSignal(signals)
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		b.conn.RemoveSignal(signals)
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	conn := &sessionConn{
		conn:    b.conn,
		handler: b.handler,
		logger:  b.logger,
	}
	if err := acquired(conn); err != nil {
		b.conn.RemoveSignal(signals)
		if _, relErr := b.conn.ReleaseName(name); relErr != nil {
			b.logger.Warn("failed to release bus name", "name", name, "error", relErr)
		}
		return err
	}

	b.mu.Lock()
	b.signals = signals
	b.owned = append(b.owned, name)
	b.mu.Unlock()

	go b.watchNameLost(name, signals, lost)
	return nil
}

func (b *SessionBus) watchNameLost(name string, signals <-chan *dbus.Signal, lost func()) {
	for sig := range signals {
		if sig.Name != "org.freedesktop.DBus.NameLost" || len(sig.Body) == 0 {
			continue
		}
		if lostName, _ := sig.Body[0].(string); lostName != name {
			continue
		}

		b.logger.Warn("lost bus name", "name", name)
		b.mu.Lock()
		b.owned = slices.DeleteFunc(b.owned, func(n string) bool { return n == name })
		b.mu.Unlock()

		if lost != nil {
			lost()
		}
		return
	}
}

// Close releases owned names and closes the connection.
func (b *SessionBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	owned := b.owned
	b.owned = nil
	signals := b.signals
	b.mu.Unlock()

	for _, name := range owned {
		if _, err := b.conn.ReleaseName(name); err != nil {
			b.logger.Warn("failed to release bus name", "name", name, "error", err)
		}
	}
	if signals != nil {
		b.conn.RemoveSignal(signals)
	}

	return b.conn.Close()
}

// sessionConn registers handlers on the connection's objectHandler.
type sessionConn struct {
	conn    *dbus.Conn
	handler *objectHandler
	logger  *slog.Logger
}

func (c *sessionConn) Register(path string, iface introspect.Interface, h MethodHandler) (func() error, error) {
	objPath := dbus.ObjectPath(path)
	if !objPath.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	if err := c.handler.register(objPath, iface, h); err != nil {
		return nil, err
	}

	c.logger.Debug("registered interface", "path", path, "interface", iface.Name)

	var once sync.Once
	return func() error {
		once.Do(func() { c.handler.unregister(objPath, iface.Name) })
		return nil
	}, nil
}

func (c *sessionConn) Emit(path, iface, member string, args ...any) error {
	return c.conn.Emit(dbus.ObjectPath(path), iface+"."+member, args...)
}
