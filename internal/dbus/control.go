package dbus

import (
	"errors"
	"fmt"
)

// handleControl dispatches calls on the control interface, which lets the
// CLI list live notifications and act on them like a presentation layer
// would.
func (s *Server) handleControl(method string, args []any, inv Invocation) {
	switch method {
	case "List":
		inv.Return(s.Entries())

	case "Dismiss":
		id, err := ParseID(args)
		if err != nil {
			inv.ReturnError(ErrorInvalidArgs, err.Error())
			return
		}
		if err := s.CloseWithReason(id, CloseReasonDismissed); err != nil {
			inv.ReturnError(ErrorFailed, err.Error())
			return
		}
		inv.Return()

	case "InvokeAction":
		if len(args) != 2 {
			inv.ReturnError(ErrorInvalidArgs, fmt.Sprintf("InvokeAction expects 2 arguments, got %d", len(args)))
			return
		}
		id, err := ParseID(args[:1])
		if err != nil {
			inv.ReturnError(ErrorInvalidArgs, err.Error())
			return
		}
		key, ok := args[1].(string)
		if !ok {
			inv.ReturnError(ErrorInvalidArgs, argError("action_key", args[1]).Error())
			return
		}
		if err := s.InvokeAction(id, key); err != nil {
			inv.ReturnError(ErrorFailed, err.Error())
			return
		}
		inv.Return()

	default:
		inv.ReturnError(ErrorUnknownMethod, fmt.Sprintf("Method %s is not known to server", method))
	}
}

// Entries returns the live notifications in display order.
func (s *Server) Entries() []Entry {
	records := s.store.Snapshot()
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			ID:      r.ID,
			AppName: r.AppName,
			Summary: r.Summary,
			Body:    r.Body,
			Urgency: byte(r.Hints.Urgency),
		})
	}
	return entries
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
