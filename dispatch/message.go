package dispatch

import (
	"fmt"
	"time"
)

// routeEntry is one input-route entry: an optional input-queue name (the
// zero value "" means the default route), and a tagged handler variant.
// The struct itself is the registry "slot" — re-registering an existing
// name mutates it in place rather than allocating a new one.
type routeEntry struct {
	inputName string
	cb        messageCallback
}

// MessageDispatcher routes inbound cloud-to-device messages to a default
// handler or to input-named handlers, and tracks the sticky
// "last message received" timestamp that GetLastMessageReceiveTime needs.
type MessageDispatcher struct {
	defaultRoute *routeEntry
	routes       map[string]*routeEntry // keyed by input name, excludes the default
	subscribeInput   func() error
	unsubscribeInput func() error

	lastReceive   time.Time
	haveLastReceive bool
	now           func() time.Time
}

// NewMessageDispatcher constructs an empty dispatcher. subscribeInput and
// unsubscribeInput back the transport's input-queue subscribe/unsubscribe,
// invoked exactly when the registry becomes non-empty/empty.
func NewMessageDispatcher(subscribeInput, unsubscribeInput func() error) *MessageDispatcher {
	return &MessageDispatcher{
		routes:           make(map[string]*routeEntry),
		subscribeInput:   subscribeInput,
		unsubscribeInput: unsubscribeInput,
		now:              time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (d *MessageDispatcher) SetNowFunc(now func() time.Time) { d.now = now }

// SetDefaultSyncHandler installs the synchronous default (no input-name)
// handler. Fails without mutating state if an async-extended handler is
// currently registered.
func (d *MessageDispatcher) SetDefaultSyncHandler(h MessageSyncHandler) error {
	if d.defaultRoute != nil && d.defaultRoute.cb.shape == ShapeAsyncExtended {
		return fmt.Errorf("dispatch: async-extended default handler already registered")
	}
	if d.defaultRoute == nil {
		d.defaultRoute = &routeEntry{}
	}
	d.defaultRoute.cb = messageCallback{shape: ShapeSync, sync: h}
	return nil
}

// SetDefaultAsyncHandler installs the async-extended default handler.
func (d *MessageDispatcher) SetDefaultAsyncHandler(h MessageAsyncHandler) error {
	if d.defaultRoute != nil && d.defaultRoute.cb.shape == ShapeSync {
		return fmt.Errorf("dispatch: synchronous default handler already registered")
	}
	if d.defaultRoute == nil {
		d.defaultRoute = &routeEntry{}
	}
	d.defaultRoute.cb = messageCallback{shape: ShapeAsyncExtended, async: h}
	return nil
}

// ClearDefaultHandler removes the default handler entirely.
func (d *MessageDispatcher) ClearDefaultHandler() {
	d.defaultRoute = nil
}

// HasDefaultHandler reports whether any default handler is registered.
func (d *MessageDispatcher) HasDefaultHandler() bool {
	return d.defaultRoute != nil && d.defaultRoute.cb.isSet()
}

// RegisterInputRoute adds or replaces the handler for inputName. Passing
// both handlers nil deregisters the route. The first registration in an
// empty registry triggers subscribeInput; if that fails, the registry is
// torn down and the call fails. Removing the last route triggers
// unsubscribeInput.
func (d *MessageDispatcher) RegisterInputRoute(inputName string, sync MessageSyncHandler, async MessageAsyncHandler) error {
	if sync == nil && async == nil {
		return d.deregisterInputRoute(inputName)
	}

	wasEmpty := len(d.routes) == 0
	entry, exists := d.routes[inputName]
	if !exists {
		entry = &routeEntry{inputName: inputName}
		d.routes[inputName] = entry
	}
	if sync != nil {
		entry.cb = messageCallback{shape: ShapeSync, sync: sync}
	} else {
		entry.cb = messageCallback{shape: ShapeAsyncExtended, async: async}
	}

	if wasEmpty && d.subscribeInput != nil {
		if err := d.subscribeInput(); err != nil {
			delete(d.routes, inputName)
			return fmt.Errorf("dispatch: subscribe input queue: %w", err)
		}
	}
	return nil
}

func (d *MessageDispatcher) deregisterInputRoute(inputName string) error {
	delete(d.routes, inputName)
	if len(d.routes) == 0 && d.unsubscribeInput != nil {
		return d.unsubscribeInput()
	}
	return nil
}

// RouteCount reports the number of named (non-default) routes registered.
func (d *MessageDispatcher) RouteCount() int { return len(d.routes) }

// DispatchDefault is the default entry point from the transport: no
// input-name context. Returns false if nothing was registered.
func (d *MessageDispatcher) DispatchDefault(body []byte, properties map[string]string) bool {
	d.touchLastReceive()
	if d.defaultRoute == nil || !d.defaultRoute.cb.isSet() {
		return false
	}
	return invoke(d.defaultRoute.cb, body, properties, nil)
}

// DispatchToInput is the named-input entry point: it resolves an exact
// match in the route registry, falling back to the default (nameless)
// handler, and returns false if neither is present.
func (d *MessageDispatcher) DispatchToInput(inputName string, body []byte, properties map[string]string) bool {
	d.touchLastReceive()
	if entry, ok := d.routes[inputName]; ok && entry.cb.isSet() {
		return invoke(entry.cb, body, properties, nil)
	}
	if d.defaultRoute != nil && d.defaultRoute.cb.isSet() {
		return invoke(d.defaultRoute.cb, body, properties, nil)
	}
	return false
}

func invoke(cb messageCallback, body []byte, properties map[string]string, onDisposition func(Disposition)) bool {
	switch cb.shape {
	case ShapeSync:
		disposition := cb.sync(body, properties)
		if onDisposition != nil {
			onDisposition(disposition)
		}
		return true
	case ShapeAsyncExtended:
		return cb.async(body, properties)
	default:
		return false
	}
}

// DispatchDefaultWithDisposition is DispatchDefault but additionally
// reports the synchronous handler's returned disposition via
// onDisposition, so it can be forwarded to the transport.
func (d *MessageDispatcher) DispatchDefaultWithDisposition(body []byte, properties map[string]string, onDisposition func(Disposition)) bool {
	d.touchLastReceive()
	if d.defaultRoute == nil || !d.defaultRoute.cb.isSet() {
		return false
	}
	return invoke(d.defaultRoute.cb, body, properties, onDisposition)
}

func (d *MessageDispatcher) touchLastReceive() {
	d.lastReceive = d.now()
	d.haveLastReceive = true
}

// LastMessageReceiveTime returns the wall-clock time of the last inbound
// message, or ok=false if none has arrived yet.
func (d *MessageDispatcher) LastMessageReceiveTime() (t time.Time, ok bool) {
	return d.lastReceive, d.haveLastReceive
}
