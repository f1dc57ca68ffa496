package dbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// EventType identifies a notification signal observed by a Client.
type EventType int

const (
	// EventClosed is a NotificationClosed signal.
	EventClosed EventType = iota
	// EventActionInvoked is an ActionInvoked signal.
	EventActionInvoked
	// EventActivationToken is an ActivationToken signal.
	EventActivationToken
)

// String returns the signal member name for the event type.
func (t EventType) String() string {
	switch t {
	case EventClosed:
		return "NotificationClosed"
	case EventActionInvoked:
		return "ActionInvoked"
	case EventActivationToken:
		return "ActivationToken"
	default:
		return "unknown"
	}
}

// Event is a decoded notification signal.
type Event struct {
	Type      EventType
	ID        uint32
	Reason    CloseReason // EventClosed only
	ActionKey string      // EventActionInvoked only
	Token     string      // EventActivationToken only
	Sender    string
}

// Client talks to whichever notification server owns BusName.
type Client struct {
	conn   *dbus.Conn
	obj    dbus.BusObject
	logger *slog.Logger
}

// NewClient opens a private session bus connection.
func NewClient(logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	return &Client{
		conn:   conn,
		obj:    conn.Object(BusName, dbus.ObjectPath(ObjectPath)),
		logger: logger,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Notify sends r and returns the id assigned by the server.
func (c *Client) Notify(ctx context.Context, r *model.Record) (uint32, error) {
	actions := r.Actions
	if actions == nil {
		actions = []string{}
	}

	var id uint32
	err := c.obj.CallWithContext(ctx, Interface+".Notify", 0,
		r.AppName,
		r.ReplacesID,
		r.AppIcon,
		r.Summary,
		r.Body,
		actions,
		EncodeHints(r.Hints),
		r.ExpireTimeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to call Notify: %w", err)
	}

	c.logger.Debug("sent notification", "id", id, "summary", r.Summary)
	return id, nil
}

// CloseNotification asks the server to close id.
func (c *Client) CloseNotification(ctx context.Context, id uint32) error {
	if err := c.obj.CallWithContext(ctx, Interface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("failed to call CloseNotification: %w", err)
	}
	return nil
}

// GetCapabilities returns the capabilities advertised by the server.
func (c *Client) GetCapabilities(ctx context.Context) ([]string, error) {
	var caps []string
	if err := c.obj.CallWithContext(ctx, Interface+".GetCapabilities", 0).Store(&caps); err != nil {
		return nil, fmt.Errorf("failed to call GetCapabilities: %w", err)
	}
	return caps, nil
}

// GetServerInformation returns the server's identity.
func (c *Client) GetServerInformation(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	err := c.obj.CallWithContext(ctx, Interface+".GetServerInformation", 0).
		Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to call GetServerInformation: %w", err)
	}
	return info, nil
}

// List returns the live notifications held by a shellnotifyd server.
func (c *Client) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := c.obj.CallWithContext(ctx, ControlInterfaceName+".List", 0).Store(&entries); err != nil {
		return nil, fmt.Errorf("failed to call List: %w", err)
	}
	return entries, nil
}

// Dismiss closes id as if the user had dismissed it.
func (c *Client) Dismiss(ctx context.Context, id uint32) error {
	if err := c.obj.CallWithContext(ctx, ControlInterfaceName+".Dismiss", 0, id).Err; err != nil {
		return fmt.Errorf("failed to call Dismiss: %w", err)
	}
	return nil
}

// InvokeAction triggers actionKey on id.
func (c *Client) InvokeAction(ctx context.Context, id uint32, actionKey string) error {
	if err := c.obj.CallWithContext(ctx, ControlInterfaceName+".InvokeAction", 0, id, actionKey).Err; err != nil {
		return fmt.Errorf("failed to call InvokeAction: %w", err)
	}
	return nil
}

// Watch streams notification signals until ctx is cancelled. The returned
// channel is closed when watching stops.
func (c *Client) Watch(ctx context.Context) (<-chan Event, error) {
	matches := []dbus.MatchOption{
		dbus.WithMatchObjectPath(dbus.ObjectPath(ObjectPath)),
		dbus.WithMatchInterface(Interface),
	}
	if err := c.conn.AddMatchSignalContext(ctx, matches...); err != nil {
		return nil, fmt.Errorf("failed to add signal match: %w", err)
	}

	signals := make(chan *dbus.Signal, 32)
	c.conn.Signal(signals)

	events := make(chan Event, 32)
	go func() {
		defer close(events)
		defer func() {
			c.conn.RemoveSignal(signals)
			if err := c.conn.RemoveMatchSignal(matches...); err != nil {
				c.logger.Debug("failed to remove signal match", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				ev, ok := decodeSignal(sig)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// decodeSignal converts a raw signal into an Event.
func decodeSignal(sig *dbus.Signal) (Event, bool) {
	if len(sig.Body) != 2 {
		return Event{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return Event{}, false
	}

	ev := Event{ID: id, Sender: sig.Sender}
	switch sig.Name {
	case Interface + ".NotificationClosed":
		reason, ok := sig.Body[1].(uint32)
		if !ok {
			return Event{}, false
		}
		ev.Type = EventClosed
		ev.Reason = CloseReason(reason)
	case Interface + ".ActionInvoked":
		if ev.ActionKey, ok = sig.Body[1].(string); !ok {
			return Event{}, false
		}
		ev.Type = EventActionInvoked
	case Interface + ".ActivationToken":
		if ev.Token, ok = sig.Body[1].(string); !ok {
			return Event{}, false
		}
		ev.Type = EventActivationToken
	default:
		return Event{}, false
	}
	return ev, true
}
