package daemon

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/shellnotifyd/internal/dbus"
	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// Expirer closes notifications once their timeout elapses.
type Expirer struct {
	mu       sync.Mutex
	logger   *slog.Logger
	timers   map[uint32]*expiry
	gen      uint64
	defaults func(model.Urgency) time.Duration
	expire   func(r *model.Record) error
	live     func(r *model.Record) bool
	stopped  bool
}

// expiry is one armed timer. gen tells a stale firing apart from the
// timer that replaced it.
type expiry struct {
	timer  *time.Timer
	gen    uint64
	record *model.Record
}

// NewExpirer creates an Expirer. expire is called from the timer goroutine
// with the record to close and must only close that record, not whatever
// holds its id by then. live reports whether a record is still stored;
// defaults supplies the timeout for records that ask for the server default.
func NewExpirer(
	expire func(r *model.Record) error,
	live func(r *model.Record) bool,
	defaults func(model.Urgency) time.Duration,
	logger *slog.Logger,
) *Expirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expirer{
		logger:   logger,
		timers:   make(map[uint32]*expiry),
		defaults: defaults,
		expire:   expire,
		live:     live,
	}
}

// SetDefaults replaces the per-urgency default timeouts. Timers already
// running keep their deadline.
func (e *Expirer) SetDefaults(defaults func(model.Urgency) time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults = defaults
}

// Schedule arms (or re-arms) the timer for r. A record that never expires
// only has its previous timer cancelled. A record that was closed or
// replaced before Schedule ran is ignored, so it cannot disturb the timer of
// a newer notification holding the same id.
func (e *Expirer) Schedule(r *model.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	// Checked under e.mu: a close that follows waits in Cancel until the
	// timer below is armed.
	if !e.live(r) {
		e.logger.Debug("skipped expiry of closed notification", "id", r.ID)
		return
	}
	if t, ok := e.timers[r.ID]; ok {
		t.timer.Stop()
		delete(e.timers, r.ID)
	}

	d, ok := r.EffectiveTimeout(e.defaults)
	if !ok {
		return
	}

	e.gen++
	id, gen := r.ID, e.gen
	e.timers[id] = &expiry{
		timer:  time.AfterFunc(d, func() { e.fire(id, gen) }),
		gen:    gen,
		record: r,
	}
	e.logger.Debug("scheduled expiry", "id", id, "after", d)
}

// Cancel stops the timer armed for r. A timer that belongs to a newer
// record under the same id is left running.
func (e *Expirer) Cancel(r *model.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[r.ID]; ok && t.record == r {
		t.timer.Stop()
		delete(e.timers, r.ID)
	}
}

// Pending returns the number of armed timers.
func (e *Expirer) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

func (e *Expirer) fire(id uint32, gen uint64) {
	e.mu.Lock()
	t, ok := e.timers[id]
	if !ok || t.gen != gen || e.stopped {
		e.mu.Unlock()
		return
	}
	delete(e.timers, id)
	e.mu.Unlock()

	if err := e.expire(t.record); err != nil && !errors.Is(err, dbus.ErrNotFound) {
		e.logger.Warn("failed to expire notification", "id", id, "error", err)
		return
	}
	e.logger.Debug("notification expired", "id", id)
}

// Stop cancels every timer. Schedule is a no-op afterwards.
func (e *Expirer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	for id, t := range e.timers {
		t.timer.Stop()
		delete(e.timers, id)
	}
}
