package dbus

import "fmt"

// emit sends a signal on the notification interface. It fails once the bus
// name has been lost.
func (s *Server) emit(member string, args ...any) error {
	s.mu.RLock()
	conn, owned := s.conn, s.owned
	s.mu.RUnlock()

	if conn == nil || !owned {
		return ErrNotOwned
	}
	return conn.Emit(ObjectPath, Interface, member, args...)
}

// EmitNotificationClosed emits the NotificationClosed signal.
// This signal is emitted when a notification is closed, either by timeout,
// user dismissal, or explicit close request.
func (s *Server) EmitNotificationClosed(id uint32, reason CloseReason) error {
	if err := s.emit("NotificationClosed", id, uint32(reason)); err != nil {
		return fmt.Errorf("failed to emit NotificationClosed signal: %w", err)
	}

	s.logger.Debug("emitted NotificationClosed signal", "id", id, "reason", reason.String())
	return nil
}

// EmitActionInvoked emits the ActionInvoked signal.
func (s *Server) EmitActionInvoked(id uint32, actionKey string) error {
	if err := s.emit("ActionInvoked", id, actionKey); err != nil {
		return fmt.Errorf("failed to emit ActionInvoked signal: %w", err)
	}

	s.logger.Debug("emitted ActionInvoked signal", "id", id, "action_key", actionKey)
	return nil
}

// EmitActivationToken emits the ActivationToken signal (optional, notification spec 1.2+).
// This is emitted before ActionInvoked when the compositor provides an activation token.
func (s *Server) EmitActivationToken(id uint32, activationToken string) error {
	if err := s.emit("ActivationToken", id, activationToken); err != nil {
		return fmt.Errorf("failed to emit ActivationToken signal: %w", err)
	}

	s.logger.Debug("emitted ActivationToken signal", "id", id)
	return nil
}

// InvokeAction emits ActionInvoked for a live notification. Unless the
// notification is resident it is then closed as dismissed.
func (s *Server) InvokeAction(id uint32, actionKey string) error {
	return s.InvokeActionWithToken(id, actionKey, "")
}

// InvokeActionWithToken is InvokeAction preceded by an ActivationToken
// signal when token is not empty.
func (s *Server) InvokeActionWithToken(id uint32, actionKey, token string) error {
	r, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if !r.HasAction(actionKey) {
		return fmt.Errorf("%w: %q on notification %d", ErrUnknownAction, actionKey, id)
	}

	if token != "" {
		if err := s.EmitActivationToken(id, token); err != nil {
			return err
		}
	}
	if err := s.EmitActionInvoked(id, actionKey); err != nil {
		return err
	}

	if r.Hints.Resident {
		return nil
	}

	// The client may have closed it in response to the signal already, and
	// the id may belong to a newer notification by now.
	if err := s.CloseRecord(r, CloseReasonDismissed); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}
