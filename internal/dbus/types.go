package dbus

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved/undefined by the freedesktop notification spec.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// ErrInvalidArgs is returned when request arguments do not match the
// method signature.
var ErrInvalidArgs = errors.New("invalid arguments")

// ParseNotify builds a record from the positional arguments of a Notify
// call, (susssasa{sv}i).
func ParseNotify(args []any) (*model.Record, error) {
	if len(args) != 8 {
		return nil, fmt.Errorf("%w: Notify expects 8 arguments, got %d", ErrInvalidArgs, len(args))
	}

	r := &model.Record{}
	var ok bool
	if r.AppName, ok = args[0].(string); !ok {
		return nil, argError("app_name", args[0])
	}
	if r.ReplacesID, ok = args[1].(uint32); !ok {
		return nil, argError("replaces_id", args[1])
	}
	if r.AppIcon, ok = args[2].(string); !ok {
		return nil, argError("app_icon", args[2])
	}
	if r.Summary, ok = args[3].(string); !ok {
		return nil, argError("summary", args[3])
	}
	if r.Body, ok = args[4].(string); !ok {
		return nil, argError("body", args[4])
	}
	if r.Actions, ok = args[5].([]string); !ok {
		return nil, argError("actions", args[5])
	}
	hints, ok := args[6].(map[string]dbus.Variant)
	if !ok {
		return nil, argError("hints", args[6])
	}
	r.Hints = ParseHints(hints)
	if r.ExpireTimeout, ok = args[7].(int32); !ok {
		return nil, argError("expire_timeout", args[7])
	}

	return r, nil
}

// ParseID reads the single notification id argument of CloseNotification.
func ParseID(args []any) (uint32, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected 1 argument, got %d", ErrInvalidArgs, len(args))
	}
	id, ok := args[0].(uint32)
	if !ok {
		return 0, argError("id", args[0])
	}
	return id, nil
}

func argError(name string, v any) error {
	return fmt.Errorf("%w: %s has unexpected type %T", ErrInvalidArgs, name, v)
}

// ParseHints extracts the hints shellnotifyd understands. Unknown keys and
// values of the wrong type are ignored.
func ParseHints(hints map[string]dbus.Variant) model.Hints {
	h := model.Hints{Urgency: model.UrgencyNormal}

	if u, ok := hintValue[byte](hints, "urgency"); ok && model.Urgency(u).Valid() {
		h.Urgency = model.Urgency(u)
	}
	h.Category, _ = hintValue[string](hints, "category")
	h.DesktopEntry, _ = hintValue[string](hints, "desktop-entry")
	h.SoundFile, _ = hintValue[string](hints, "sound-file")
	h.SoundName, _ = hintValue[string](hints, "sound-name")
	h.SuppressSound, _ = hintValue[bool](hints, "suppress-sound")
	h.Resident, _ = hintValue[bool](hints, "resident")
	h.Transient, _ = hintValue[bool](hints, "transient")

	// Spec 1.2 names first, then the deprecated spellings.
	for _, key := range []string{"image-path", "image_path"} {
		if p, ok := hintValue[string](hints, key); ok {
			h.ImagePath = p
			break
		}
	}
	for _, key := range []string{"image-data", "image_data", "icon_data"} {
		if v, ok := hints[key]; ok {
			if img := parseImageData(v); img != nil {
				h.ImageData = img
				break
			}
		}
	}
	if v, ok := hints["icon_data"]; ok {
		h.IconData = parseImageData(v)
	}

	return h
}

func hintValue[T any](hints map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := hints[key]
	if !ok {
		return zero, false
	}
	t, ok := v.Value().(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// parseImageData decodes the (iiibiiay) struct. godbus delivers structs
// inside a variant as []any.
func parseImageData(v dbus.Variant) *model.ImageData {
	fields, ok := v.Value().([]any)
	if !ok || len(fields) != 7 {
		return nil
	}

	img := &model.ImageData{}
	if img.Width, ok = fields[0].(int32); !ok {
		return nil
	}
	if img.Height, ok = fields[1].(int32); !ok {
		return nil
	}
	if img.RowStride, ok = fields[2].(int32); !ok {
		return nil
	}
	if img.HasAlpha, ok = fields[3].(bool); !ok {
		return nil
	}
	if img.BitsPerSample, ok = fields[4].(int32); !ok {
		return nil
	}
	if img.Channels, ok = fields[5].(int32); !ok {
		return nil
	}
	if img.Data, ok = fields[6].([]byte); !ok {
		return nil
	}
	return img
}

// EncodeHints converts parsed hints back into a hint map, for clients.
func EncodeHints(h model.Hints) map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(h.Urgency)),
	}
	if h.Category != "" {
		hints["category"] = dbus.MakeVariant(h.Category)
	}
	if h.DesktopEntry != "" {
		hints["desktop-entry"] = dbus.MakeVariant(h.DesktopEntry)
	}
	if h.ImagePath != "" {
		hints["image-path"] = dbus.MakeVariant(h.ImagePath)
	}
	if h.SoundFile != "" {
		hints["sound-file"] = dbus.MakeVariant(h.SoundFile)
	}
	if h.SoundName != "" {
		hints["sound-name"] = dbus.MakeVariant(h.SoundName)
	}
	if h.SuppressSound {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}
	if h.Resident {
		hints["resident"] = dbus.MakeVariant(true)
	}
	if h.Transient {
		hints["transient"] = dbus.MakeVariant(true)
	}
	return hints
}

// ServerCapabilities lists the capabilities advertised by shellnotifyd.
var ServerCapabilities = []string{
	"action-icons",
	"actions",
	"body",
	"body-hyperlinks",
	"persistent",
}

// ServerInfo contains information about the notification server.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// DefaultServerInfo returns the default server information.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{
		Name:        "ShellNotificationServer",
		Vendor:      "Shell",
		Version:     "1.0",
		SpecVersion: "1.2",
	}
}

// Entry is the wire form of a live notification returned by the control
// interface's List method, (usssy).
type Entry struct {
	ID      uint32
	AppName string
	Summary string
	Body    string
	Urgency byte
}

// NotificationsInterface returns the introspection data for the
// org.freedesktop.Notifications interface.
func NotificationsInterface() introspect.Interface {
	return introspect.Interface{
		Name:    Interface,
		Methods: notificationMethods(),
		Signals: notificationSignals(),
	}
}

// ControlInterface returns the introspection data for the daemon's own
// control interface.
func ControlInterface() introspect.Interface {
	return introspect.Interface{
		Name: ControlInterfaceName,
		Methods: []introspect.Method{
			{
				Name: "List",
				Args: []introspect.Arg{
					{Name: "notifications", Type: "a(usssy)", Direction: "out"},
				},
			},
			{
				Name: "Dismiss",
				Args: []introspect.Arg{
					{Name: "id", Type: "u", Direction: "in"},
				},
			},
			{
				Name: "InvokeAction",
				Args: []introspect.Arg{
					{Name: "id", Type: "u", Direction: "in"},
					{Name: "action_key", Type: "s", Direction: "in"},
				},
			},
		},
	}
}

// notificationMethods returns the D-Bus method introspection data.
func notificationMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetCapabilities",
			Args: []introspect.Arg{
				{Name: "capabilities", Type: "as", Direction: "out"},
			},
		},
		{
			Name: "GetServerInformation",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "vendor", Type: "s", Direction: "out"},
				{Name: "version", Type: "s", Direction: "out"},
				{Name: "spec_version", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "Notify",
			Args: []introspect.Arg{
				{Name: "app_name", Type: "s", Direction: "in"},
				{Name: "replaces_id", Type: "u", Direction: "in"},
				{Name: "app_icon", Type: "s", Direction: "in"},
				{Name: "summary", Type: "s", Direction: "in"},
				{Name: "body", Type: "s", Direction: "in"},
				{Name: "actions", Type: "as", Direction: "in"},
				{Name: "hints", Type: "a{sv}", Direction: "in"},
				{Name: "expire_timeout", Type: "i", Direction: "in"},
				{Name: "id", Type: "u", Direction: "out"},
			},
		},
		{
			Name: "CloseNotification",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "in"},
			},
		},
	}
}

// notificationSignals returns the D-Bus signal introspection data.
func notificationSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "NotificationClosed",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "reason", Type: "u"},
			},
		},
		{
			Name: "ActionInvoked",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "action_key", Type: "s"},
			},
		},
		{
			Name: "ActivationToken",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "activation_token", Type: "s"},
			},
		},
	}
}
