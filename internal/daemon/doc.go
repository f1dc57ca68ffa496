// Package daemon provides the main orchestration for shellnotifyd.
// It coordinates the notification server, expiry timers, the history
// journal and configuration hot-reload.
package daemon
