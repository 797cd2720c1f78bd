package dispatch

import "fmt"

// MethodResponder is the transport seam a sync method handler's rendered
// response is forwarded through.
type MethodResponder func(payload []byte, status MethodStatus) error

// MethodDispatcher bridges transport method calls to the user's handler.
// Exactly one of sync/async-extended may be registered at a time;
// SetSyncHandler/SetAsyncHandler fail without mutating state if the other
// shape is already registered.
type MethodDispatcher struct {
	cb methodCallback
}

// NewMethodDispatcher constructs an empty dispatcher.
func NewMethodDispatcher() *MethodDispatcher { return &MethodDispatcher{} }

// SetSyncHandler installs the synchronous handler shape.
func (d *MethodDispatcher) SetSyncHandler(h MethodSyncHandler) error {
	if d.cb.shape == ShapeAsyncExtended {
		return fmt.Errorf("dispatch: async-extended method handler already registered")
	}
	d.cb = methodCallback{shape: ShapeSync, sync: h}
	return nil
}

// SetAsyncHandler installs the async-extended handler shape.
func (d *MethodDispatcher) SetAsyncHandler(h MethodAsyncHandler) error {
	if d.cb.shape == ShapeSync {
		return fmt.Errorf("dispatch: synchronous method handler already registered")
	}
	d.cb = methodCallback{shape: ShapeAsyncExtended, async: h}
	return nil
}

// Clear removes whichever handler is registered.
func (d *MethodDispatcher) Clear() { d.cb = methodCallback{} }

// Shape reports which handler variant is active.
func (d *MethodDispatcher) Shape() Shape { return d.cb.shape }

// DispatchResult preserves the transport call's own result separately
// from the handler's returned status, so a caller can distinguish "the
// handler said X" from "and sending X back to the transport failed".
type DispatchResult struct {
	HandlerStatus MethodStatus
	TransportErr  error
}

// DispatchSync handles a method call when the sync handler is active: it
// renders the response and forwards it via respond. A nil/empty response
// is an error. respond's own return is preserved as TransportErr,
// distinct from HandlerStatus.
func (d *MethodDispatcher) DispatchSync(method string, payload []byte, respond MethodResponder) (DispatchResult, bool) {
	if d.cb.shape != ShapeSync {
		return DispatchResult{}, false
	}
	status, response := d.cb.sync(method, payload)
	if len(response) == 0 {
		return DispatchResult{HandlerStatus: status, TransportErr: fmt.Errorf("dispatch: handler returned empty response")}, true
	}
	err := respond(response, status)
	return DispatchResult{HandlerStatus: status, TransportErr: err}, true
}

// DispatchAsync handles a method call when the async-extended handler is
// active: the dispatcher does not render a response; methodHandle is kept
// by the caller until DeviceMethodResponse is invoked later.
func (d *MethodDispatcher) DispatchAsync(method string, payload []byte, methodHandle any) (MethodStatus, bool) {
	if d.cb.shape != ShapeAsyncExtended {
		return 0, false
	}
	return d.cb.async(method, payload, methodHandle), true
}
