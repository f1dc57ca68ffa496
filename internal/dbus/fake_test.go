package dbus

import (
	"errors"
	"sync"

	"github.com/godbus/dbus/v5/introspect"
)

// fakeBus is an in-memory Bus. It records every wire event (replies and
// signals) in the order they happen.
type fakeBus struct {
	mu       sync.Mutex
	conn     *fakeConn
	lost     func()
	ownErr   error
	closed   bool
	wire     []wireEvent
	handlers map[string]MethodHandler
}

type wireEvent struct {
	kind   string // "reply", "error" or "signal"
	member string
	values []any
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]MethodHandler)}
}

func (b *fakeBus) OwnName(name string, acquired func(Conn) error, lost func()) error {
	if b.ownErr != nil {
		return b.ownErr
	}
	b.conn = &fakeConn{bus: b}
	if err := acquired(b.conn); err != nil {
		return err
	}
	b.mu.Lock()
	b.lost = lost
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// loseName simulates another daemon taking the name.
func (b *fakeBus) loseName() {
	b.mu.Lock()
	lost := b.lost
	b.lost = nil
	b.mu.Unlock()
	if lost != nil {
		lost()
	}
}

// call invokes method on iface as a bus client would and returns the
// invocation that recorded the reply.
func (b *fakeBus) call(iface, method string, args ...any) *fakeInvocation {
	b.mu.Lock()
	h, ok := b.handlers[iface]
	b.mu.Unlock()

	inv := &fakeInvocation{bus: b, member: method}
	if !ok {
		inv.ReturnError(ErrorUnknownMethod, "no such interface")
		return inv
	}
	h(method, args, inv)
	return inv
}

func (b *fakeBus) record(ev wireEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wire = append(b.wire, ev)
}

func (b *fakeBus) events() []wireEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]wireEvent(nil), b.wire...)
}

func (b *fakeBus) signals(member string) [][]any {
	var out [][]any
	for _, ev := range b.events() {
		if ev.kind == "signal" && ev.member == member {
			out = append(out, ev.values)
		}
	}
	return out
}

type fakeConn struct {
	bus         *fakeBus
	registerErr error
	emitErr     error
	// onEmit runs after a signal is recorded, as a client reacting to it.
	onEmit func(member string, args []any)
}

func (c *fakeConn) Register(path string, iface introspect.Interface, h MethodHandler) (func() error, error) {
	if c.registerErr != nil {
		return nil, c.registerErr
	}
	c.bus.mu.Lock()
	c.bus.handlers[iface.Name] = h
	c.bus.mu.Unlock()

	return func() error {
		c.bus.mu.Lock()
		delete(c.bus.handlers, iface.Name)
		c.bus.mu.Unlock()
		return nil
	}, nil
}

func (c *fakeConn) Emit(path, iface, member string, args ...any) error {
	if c.emitErr != nil {
		return c.emitErr
	}
	c.bus.record(wireEvent{kind: "signal", member: member, values: args})
	if c.onEmit != nil {
		c.onEmit(member, args)
	}
	return nil
}

type fakeInvocation struct {
	bus     *fakeBus
	member  string
	replies int
	values  []any
	errName string
	errMsg  string
}

func (i *fakeInvocation) Return(values ...any) {
	i.replies++
	i.values = values
	i.bus.record(wireEvent{kind: "reply", member: i.member, values: values})
}

func (i *fakeInvocation) ReturnError(name, message string) {
	i.replies++
	i.errName = name
	i.errMsg = message
	i.bus.record(wireEvent{kind: "error", member: i.member, values: []any{name, message}})
}

var errFake = errors.New("fake failure")
