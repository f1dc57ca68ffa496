// Package history keeps a journal of closed notifications.
package history

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// Entry is one closed notification as written to the journal.
type Entry struct {
	ID             string        `json:"id" yaml:"id"`
	NotificationID uint32        `json:"notification_id" yaml:"notification_id"`
	AppName        string        `json:"app_name" yaml:"app_name"`
	AppIcon        string        `json:"app_icon,omitempty" yaml:"app_icon,omitempty"`
	Summary        string        `json:"summary" yaml:"summary"`
	Body           string        `json:"body,omitempty" yaml:"body,omitempty"`
	Category       string        `json:"category,omitempty" yaml:"category,omitempty"`
	DesktopEntry   string        `json:"desktop_entry,omitempty" yaml:"desktop_entry,omitempty"`
	Urgency        model.Urgency `json:"urgency" yaml:"urgency"`
	UrgencyName    string        `json:"urgency_name" yaml:"urgency_name"`
	Actions        []string      `json:"actions,omitempty" yaml:"actions,omitempty"`
	CreatedAt      time.Time     `json:"created_at" yaml:"created_at"`
	ClosedAt       time.Time     `json:"closed_at" yaml:"closed_at"`
	Reason         string        `json:"reason" yaml:"reason"`
}

// NewEntry builds a journal entry for a record that was closed for reason.
func NewEntry(r *model.Record, reason string, closedAt time.Time) Entry {
	return Entry{
		ID:             ulid.MustNew(ulid.Timestamp(closedAt), rand.Reader).String(),
		NotificationID: r.ID,
		AppName:        r.AppName,
		AppIcon:        r.AppIcon,
		Summary:        r.Summary,
		Body:           r.Body,
		Category:       r.Hints.Category,
		DesktopEntry:   r.Hints.DesktopEntry,
		Urgency:        r.Hints.Urgency,
		UrgencyName:    r.Hints.Urgency.String(),
		Actions:        append([]string(nil), r.Actions...),
		CreatedAt:      r.Timestamp,
		ClosedAt:       closedAt,
		Reason:         reason,
	}
}

// Recordable reports whether a record belongs in the journal.
// Transient notifications bypass history.
func Recordable(r *model.Record) bool {
	return r != nil && !r.Hints.Transient
}
