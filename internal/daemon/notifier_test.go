package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

func TestInternalNotifier_Notify(t *testing.T) {
	var got []*model.Record
	n := NewInternalNotifier(nil)
	n.SetNotifyHandler(func(r *model.Record) (uint32, error) {
		got = append(got, r)
		return uint32(len(got)), nil
	})

	id := n.NotifyConfigError(errors.New("bad duration"))
	assert.Equal(t, uint32(1), id)

	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "shellnotifyd", r.AppName)
	assert.Equal(t, "Configuration Error", r.Summary)
	assert.Contains(t, r.Body, "bad duration")
	assert.Equal(t, int32(5000), r.ExpireTimeout)
	assert.Equal(t, model.UrgencyNormal, r.Hints.Urgency)
	assert.Equal(t, "dialog-warning", r.AppIcon)
	assert.True(t, r.Hints.Transient)
}

func TestInternalNotifier_Levels(t *testing.T) {
	tests := []struct {
		level   NotificationLevel
		urgency model.Urgency
		icon    string
	}{
		{NotificationLevelInfo, model.UrgencyLow, "dialog-information"},
		{NotificationLevelWarning, model.UrgencyNormal, "dialog-warning"},
		{NotificationLevelError, model.UrgencyCritical, "dialog-error"},
	}

	for _, tt := range tests {
		t.Run(tt.icon, func(t *testing.T) {
			var got *model.Record
			n := NewInternalNotifier(nil)
			n.SetNotifyHandler(func(r *model.Record) (uint32, error) {
				got = r
				return 1, nil
			})

			n.Notify("key", "s", "b", tt.level)
			require.NotNil(t, got)
			assert.Equal(t, tt.urgency, got.Hints.Urgency)
			assert.Equal(t, tt.icon, got.AppIcon)
		})
	}
}

func TestInternalNotifier_RateLimit(t *testing.T) {
	calls := 0
	now := time.Now()

	n := NewInternalNotifier(nil)
	n.now = func() time.Time { return now }
	n.SetNotifyHandler(func(r *model.Record) (uint32, error) {
		calls++
		return uint32(calls), nil
	})

	assert.NotZero(t, n.NotifyConfigReloaded())
	assert.Zero(t, n.NotifyConfigReloaded(), "same key inside the interval")
	assert.NotZero(t, n.NotifyStartup("1.0"), "other keys are independent")

	now = now.Add(6 * time.Second)
	assert.NotZero(t, n.NotifyConfigReloaded())
	assert.Equal(t, 3, calls)
}

func TestInternalNotifier_DisabledOrUnwired(t *testing.T) {
	n := NewInternalNotifier(nil)
	assert.Zero(t, n.NotifyConfigReloaded(), "no handler")

	calls := 0
	n.SetNotifyHandler(func(r *model.Record) (uint32, error) {
		calls++
		return 1, nil
	})
	n.SetEnabled(false)
	assert.Zero(t, n.NotifyConfigReloaded())
	assert.Zero(t, calls)
}

func TestInternalNotifier_HandlerError(t *testing.T) {
	n := NewInternalNotifier(nil)
	n.SetNotifyHandler(func(r *model.Record) (uint32, error) {
		return 0, errors.New("store closed")
	})
	assert.Zero(t, n.NotifyStartup("1.0"))
}
