// Package model defines the core data structures for shellnotifyd.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Urgency is the notification urgency level from the freedesktop spec.
type Urgency byte

// Urgency levels matching freedesktop spec.
const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// String returns the human-readable urgency name.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Valid reports whether u is one of the three defined levels.
func (u Urgency) Valid() bool {
	return u <= UrgencyCritical
}

// ParseUrgency parses an urgency name or number.
// Accepts: low, normal, critical, 0, 1, 2
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return UrgencyLow, nil
	case "normal", "1":
		return UrgencyNormal, nil
	case "critical", "2":
		return UrgencyCritical, nil
	default:
		return UrgencyNormal, fmt.Errorf("invalid urgency: %s (use low, normal, or critical)", s)
	}
}

// ImageData is a raw image payload as carried by the image-data hint, (iiibiiay).
type ImageData struct {
	Width         int32  `json:"width"`
	Height        int32  `json:"height"`
	RowStride     int32  `json:"rowstride"`
	HasAlpha      bool   `json:"has_alpha"`
	BitsPerSample int32  `json:"bits_per_sample"`
	Channels      int32  `json:"channels"`
	Data          []byte `json:"-"`
}

// Hints holds the parsed subset of the a{sv} hint map that shellnotifyd understands.
type Hints struct {
	Urgency       Urgency    `json:"urgency"`
	DesktopEntry  string     `json:"desktop_entry,omitempty"`
	Category      string     `json:"category,omitempty"`
	ImageData     *ImageData `json:"image_data,omitempty"`
	IconData      *ImageData `json:"icon_data,omitempty"`
	ImagePath     string     `json:"image_path,omitempty"`
	SoundFile     string     `json:"sound_file,omitempty"`
	SoundName     string     `json:"sound_name,omitempty"`
	SuppressSound bool       `json:"suppress_sound,omitempty"`
	Resident      bool       `json:"resident,omitempty"`
	Transient     bool       `json:"transient,omitempty"`
}

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Record is a single live notification.
type Record struct {
	ID            uint32    `json:"id"`
	AppName       string    `json:"app_name"`
	ReplacesID    uint32    `json:"replaces_id,omitempty"`
	AppIcon       string    `json:"app_icon,omitempty"`
	Summary       string    `json:"summary"`
	Body          string    `json:"body,omitempty"`
	Actions       []string  `json:"actions,omitempty"` // Alternating key, label pairs
	Hints         Hints     `json:"hints"`
	ExpireTimeout int32     `json:"expire_timeout"` // -1 = server default, 0 = never expire
	Timestamp     time.Time `json:"timestamp"`
}

// NewRecord returns a Record with default hints and the current time.
func NewRecord(appName, summary, body string) *Record {
	return &Record{
		AppName:       appName,
		Summary:       summary,
		Body:          body,
		Hints:         Hints{Urgency: UrgencyNormal},
		ExpireTimeout: -1,
		Timestamp:     time.Now(),
	}
}

// ParsedActions converts the flat action list to key/label pairs.
// A trailing key without a label is dropped.
func (r *Record) ParsedActions() []Action {
	actions := make([]Action, 0, len(r.Actions)/2)
	for i := 0; i+1 < len(r.Actions); i += 2 {
		actions = append(actions, Action{
			Key:   r.Actions[i],
			Label: r.Actions[i+1],
		})
	}
	return actions
}

// HasAction reports whether key is one of the record's action keys.
func (r *Record) HasAction(key string) bool {
	for _, a := range r.ParsedActions() {
		if a.Key == key {
			return true
		}
	}
	return false
}

// EffectiveTimeout resolves ExpireTimeout against a per-urgency default.
// The boolean is false when the record never expires.
func (r *Record) EffectiveTimeout(def func(Urgency) time.Duration) (time.Duration, bool) {
	var d time.Duration
	switch {
	case r.ExpireTimeout > 0:
		d = time.Duration(r.ExpireTimeout) * time.Millisecond
	case r.ExpireTimeout == 0:
		return 0, false
	case def != nil:
		d = def(r.Hints.Urgency)
	}
	return d, d > 0
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Actions = slices.Clone(r.Actions)
	if r.Hints.ImageData != nil {
		img := *r.Hints.ImageData
		img.Data = slices.Clone(img.Data)
		clone.Hints.ImageData = &img
	}
	if r.Hints.IconData != nil {
		icon := *r.Hints.IconData
		icon.Data = slices.Clone(icon.Data)
		clone.Hints.IconData = &icon
	}
	return &clone
}
