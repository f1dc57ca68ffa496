// Package dbus implements the org.freedesktop.Notifications D-Bus interface.
// It provides a server that keeps notifications in a store and answers
// GetCapabilities, Notify, CloseNotification, and GetServerInformation per
// the freedesktop.org notification specification, plus a client used by
// the command line tools.
//
// The server only depends on the Bus, Conn and Invocation interfaces;
// SessionBus adapts them to a godbus session bus connection.
package dbus
