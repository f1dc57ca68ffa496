package dbus

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const introspectableInterface = "org.freedesktop.DBus.Introspectable"

// objectHandler routes incoming method calls to registered MethodHandlers.
// It replaces godbus's default handler, which writes a method's reply only
// after the method returns: here the reply is sent as soon as the handler
// answers, so signals it emits afterwards follow the reply on the wire.
type objectHandler struct {
	mu      sync.RWMutex
	send    func(*dbus.Message)
	objects map[dbus.ObjectPath]map[string]*exportedInterface
}

type exportedInterface struct {
	iface   introspect.Interface
	methods map[string]*boundMethod
}

func newObjectHandler() *objectHandler {
	return &objectHandler{
		objects: make(map[dbus.ObjectPath]map[string]*exportedInterface),
	}
}

// setSender sets how replies reach the bus.
func (h *objectHandler) setSender(send func(*dbus.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send = send
}

func (h *objectHandler) sendMessage(msg *dbus.Message) {
	h.mu.RLock()
	send := h.send
	h.mu.RUnlock()

	if send != nil {
		send(msg)
	}
}

func (h *objectHandler) register(path dbus.ObjectPath, iface introspect.Interface, mh MethodHandler) error {
	methods, err := bindMethods(iface, mh, h.sendMessage)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ifaces, ok := h.objects[path]
	if !ok {
		ifaces = make(map[string]*exportedInterface)
		h.objects[path] = ifaces
	}
	if _, taken := ifaces[iface.Name]; taken {
		return fmt.Errorf("interface %s already registered at %s", iface.Name, path)
	}
	ifaces[iface.Name] = &exportedInterface{iface: iface, methods: methods}
	return nil
}

func (h *objectHandler) unregister(path dbus.ObjectPath, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.objects[path], name)
	if len(h.objects[path]) == 0 {
		delete(h.objects, path)
	}
}

// LookupObject implements dbus.Handler. Paths above a registered object
// are served too, with introspection data listing their children.
func (h *objectHandler) LookupObject(path dbus.ObjectPath) (dbus.ServerObject, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	node := &introspect.Node{Name: string(path)}
	for _, child := range h.childrenLocked(path) {
		node.Children = append(node.Children, introspect.Node{Name: child})
	}

	ifaces, ok := h.objects[path]
	if !ok && len(node.Children) == 0 {
		return nil, false
	}

	obj := &serverObject{interfaces: make(map[string]*exportedInterface, len(ifaces)+1)}
	names := make([]string, 0, len(ifaces))
	for name, iface := range ifaces {
		obj.interfaces[name] = iface
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		node.Interfaces = append(node.Interfaces, ifaces[name].iface)
	}

	xml := string(introspect.NewIntrospectable(node))
	obj.interfaces[introspectableInterface] = &exportedInterface{
		iface: introspect.IntrospectData,
		methods: map[string]*boundMethod{
			"Introspect": {
				name: "Introspect",
				serve: func(_ []any, inv Invocation) {
					inv.Return(xml)
				},
				send: h.sendMessage,
			},
		},
	}
	return obj, true
}

// childrenLocked lists the first path element below path of every
// registered object nested under it.
func (h *objectHandler) childrenLocked(path dbus.ObjectPath) []string {
	prefix := string(path) + "/"
	if path == "/" {
		prefix = "/"
	}

	var children []string
	for p := range h.objects {
		rest, ok := strings.CutPrefix(string(p), prefix)
		if !ok || rest == "" {
			continue
		}
		child, _, _ := strings.Cut(rest, "/")
		if !slices.Contains(children, child) {
			children = append(children, child)
		}
	}
	slices.Sort(children)
	return children
}

// serverObject is a snapshot of one path's interfaces.
type serverObject struct {
	interfaces map[string]*exportedInterface
}

// LookupInterface implements dbus.ServerObject. Calls that name no
// interface are matched against every interface of the object.
func (o *serverObject) LookupInterface(name string) (dbus.Interface, bool) {
	if name == "" {
		return o, true
	}
	iface, ok := o.interfaces[name]
	if !ok {
		return nil, false
	}
	return iface, true
}

// LookupMethod lets serverObject stand in for an unnamed interface.
func (o *serverObject) LookupMethod(name string) (dbus.Method, bool) {
	for _, iface := range o.interfaces {
		if m, ok := iface.LookupMethod(name); ok {
			return m, true
		}
	}
	return nil, false
}

// LookupMethod implements dbus.Interface.
func (i *exportedInterface) LookupMethod(name string) (dbus.Method, bool) {
	m, ok := i.methods[name]
	if !ok {
		return nil, false
	}
	return m, true
}

// methodArgs lists the Go types each method's arguments decode into.
var methodArgs = map[string][]reflect.Type{
	"Notify": typesOf("", uint32(0), "", "", "", []string(nil),
		map[string]dbus.Variant(nil), int32(0)),
	"CloseNotification":    typesOf(uint32(0)),
	"GetCapabilities":      typesOf(),
	"GetServerInformation": typesOf(),
	"List":                 typesOf(),
	"Dismiss":              typesOf(uint32(0)),
	"InvokeAction":         typesOf(uint32(0), ""),
}

func typesOf(values ...any) []reflect.Type {
	types := make([]reflect.Type, len(values))
	for i, v := range values {
		types[i] = reflect.TypeOf(v)
	}
	return types
}

// bindMethods binds every method of iface to h. Arguments that do not match
// the method's signature are rejected with InvalidArgs before h runs.
func bindMethods(iface introspect.Interface, h MethodHandler, send func(*dbus.Message)) (map[string]*boundMethod, error) {
	methods := make(map[string]*boundMethod, len(iface.Methods))
	for _, m := range iface.Methods {
		args, ok := methodArgs[m.Name]
		if !ok {
			return nil, fmt.Errorf("no binding for method %s.%s", iface.Name, m.Name)
		}
		name := m.Name
		methods[name] = &boundMethod{
			name: name,
			args: args,
			serve: func(args []any, inv Invocation) {
				h(name, args, inv)
			},
			send: send,
		}
	}
	return methods, nil
}

// boundMethod implements dbus.Method and dbus.ArgumentDecoder.
type boundMethod struct {
	name  string
	args  []reflect.Type
	serve func(args []any, inv Invocation)
	send  func(*dbus.Message)
}

func (m *boundMethod) NumArguments() int { return len(m.args) }

func (m *boundMethod) ArgumentValue(i int) any { return reflect.Zero(m.args[i]).Interface() }

// NumReturns is zero: replies are sent by the Invocation, never returned.
func (m *boundMethod) NumReturns() int { return 0 }

func (m *boundMethod) ReturnValue(int) any { return nil }

// DecodeArguments decodes body and prepends the call's Invocation.
func (m *boundMethod) DecodeArguments(_ *dbus.Conn, sender string, msg *dbus.Message, body []any) ([]any, error) {
	if len(body) != len(m.args) {
		return nil, dbus.ErrMsgInvalidArg
	}

	ptrs := make([]any, len(m.args))
	for i, t := range m.args {
		ptrs[i] = reflect.New(t).Interface()
	}
	if err := dbus.Store(body, ptrs...); err != nil {
		return nil, dbus.ErrMsgInvalidArg
	}

	decoded := make([]any, 0, len(ptrs)+1)
	decoded = append(decoded, &reply{
		send:   m.send,
		dest:   sender,
		serial: msg.Serial(),
		wanted: msg.Flags&dbus.FlagNoReplyExpected == 0,
	})
	for _, p := range ptrs {
		decoded = append(decoded, reflect.ValueOf(p).Elem().Interface())
	}

	// The reply leaves from inside Call; godbus must not send a second one.
	msg.Flags |= dbus.FlagNoReplyExpected
	return decoded, nil
}

// Call runs the handler. A handler that never answers gets a Failed error
// sent on its behalf.
func (m *boundMethod) Call(args ...any) ([]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: arguments were not decoded", m.name)
	}
	inv, ok := args[0].(*reply)
	if !ok {
		return nil, fmt.Errorf("%s: arguments were not decoded", m.name)
	}

	m.serve(args[1:], inv)
	if !inv.replied {
		inv.ReturnError(ErrorFailed, fmt.Sprintf("%s: no reply", m.name))
	}
	return nil, nil
}

// reply is the Invocation of one incoming call. Only the first answer is
// sent.
type reply struct {
	send    func(*dbus.Message)
	dest    string
	serial  uint32
	wanted  bool
	replied bool
}

func (r *reply) Return(values ...any) {
	if r.replied {
		return
	}
	r.replied = true
	if r.wanted {
		r.send(r.message(dbus.TypeMethodReply, values))
	}
}

func (r *reply) ReturnError(name, message string) {
	if r.replied {
		return
	}
	r.replied = true
	if r.wanted {
		msg := r.message(dbus.TypeError, []any{message})
		msg.Headers[dbus.FieldErrorName] = dbus.MakeVariant(name)
		r.send(msg)
	}
}

func (r *reply) message(typ dbus.Type, body []any) *dbus.Message {
	msg := &dbus.Message{
		Type: typ,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldReplySerial: dbus.MakeVariant(r.serial),
		},
		Body: body,
	}
	if r.dest != "" {
		msg.Headers[dbus.FieldDestination] = dbus.MakeVariant(r.dest)
	}
	if len(body) > 0 {
		msg.Headers[dbus.FieldSignature] = dbus.MakeVariant(dbus.SignatureOf(body...))
	}
	return msg
}
