package daemon

import (
	"sync"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/shellnotifyd/internal/dbus"
)

// testBus is an in-memory dbus.Bus that records emitted signals.
type testBus struct {
	mu       sync.Mutex
	handlers map[string]dbus.MethodHandler
	signals  []signal
	closed   bool
}

type signal struct {
	member string
	args   []any
}

func newTestBus() *testBus {
	return &testBus{handlers: make(map[string]dbus.MethodHandler)}
}

func (b *testBus) OwnName(name string, acquired func(dbus.Conn) error, lost func()) error {
	return acquired(b)
}

func (b *testBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *testBus) Register(path string, iface introspect.Interface, h dbus.MethodHandler) (func() error, error) {
	b.mu.Lock()
	b.handlers[iface.Name] = h
	b.mu.Unlock()
	return func() error {
		b.mu.Lock()
		delete(b.handlers, iface.Name)
		b.mu.Unlock()
		return nil
	}, nil
}

func (b *testBus) Emit(path, iface, member string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = append(b.signals, signal{member: member, args: args})
	return nil
}

func (b *testBus) closedSignals() [][]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][]any
	for _, s := range b.signals {
		if s.member == "NotificationClosed" {
			out = append(out, s.args)
		}
	}
	return out
}

type testInvocation struct {
	values  []any
	errName string
}

func (i *testInvocation) Return(values ...any)             { i.values = values }
func (i *testInvocation) ReturnError(name, message string) { i.errName = name }

// notify calls Notify on the bus as a client would and returns the id.
func (b *testBus) notify(summary string, timeout int32, hints map[string]godbus.Variant) uint32 {
	b.mu.Lock()
	h := b.handlers[dbus.Interface]
	b.mu.Unlock()

	if hints == nil {
		hints = map[string]godbus.Variant{}
	}
	inv := &testInvocation{}
	h("Notify", []any{"test", uint32(0), "", summary, "", []string{}, hints, timeout}, inv)
	if len(inv.values) != 1 {
		return 0
	}
	return inv.values[0].(uint32)
}

func (b *testBus) closeNotification(id uint32) *testInvocation {
	b.mu.Lock()
	h := b.handlers[dbus.Interface]
	b.mu.Unlock()

	inv := &testInvocation{}
	h("CloseNotification", []any{id}, inv)
	return inv
}
