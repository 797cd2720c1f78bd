package deviceclient

import (
	"context"

	"github.com/azdevice/deviceclient/dispatch"
	"github.com/azdevice/deviceclient/transport"
)

// SetMessageCallback installs the synchronous default C2D handler. If the
// client is not yet ATTACHED, the intent is recorded and replayed on
// attach; otherwise the transport's C2D subscription is issued immediately.
func (c *Client) SetMessageCallback(h dispatch.MessageSyncHandler) error {
	if err := c.messageDispatcher.SetDefaultSyncHandler(h); err != nil {
		return NewError("message callback conflict", err)
	}
	return c.ensureC2DSubscribed()
}

// SetMessageCallbackAsync installs the async-extended default C2D handler.
func (c *Client) SetMessageCallbackAsync(h dispatch.MessageAsyncHandler) error {
	if err := c.messageDispatcher.SetDefaultAsyncHandler(h); err != nil {
		return NewError("message callback conflict", err)
	}
	return c.ensureC2DSubscribed()
}

func (c *Client) ensureC2DSubscribed() error {
	if c.state != StateAttached {
		c.pendingIntents.set(intentC2DSubscribe)
		return nil
	}
	if result := c.transport.SubscribeC2D(context.Background()); result != transport.ResultOK {
		c.messageDispatcher.ClearDefaultHandler()
		return NewError("transport: subscribe C2D failed", nil)
	}
	return nil
}

// SetMethodCallback installs the synchronous direct-method handler.
func (c *Client) SetMethodCallback(h dispatch.MethodSyncHandler) error {
	if err := c.methodDispatcher.SetSyncHandler(h); err != nil {
		return NewError("method callback conflict", err)
	}
	return c.ensureMethodSubscribed()
}

// SetMethodCallbackAsync installs the async-extended direct-method handler.
func (c *Client) SetMethodCallbackAsync(h dispatch.MethodAsyncHandler) error {
	if err := c.methodDispatcher.SetAsyncHandler(h); err != nil {
		return NewError("method callback conflict", err)
	}
	return c.ensureMethodSubscribed()
}

func (c *Client) ensureMethodSubscribed() error {
	if c.state != StateAttached {
		c.pendingIntents.set(intentMethodSubscribe)
		return nil
	}
	if result := c.transport.SubscribeMethod(context.Background()); result != transport.ResultOK {
		c.methodDispatcher.Clear()
		return NewError("transport: subscribe method failed", nil)
	}
	return nil
}

// HandleMethodCall dispatches a transport-delivered method call. For the
// sync shape it renders and forwards the response immediately; for the
// async-extended shape it returns the handler's status and the caller must
// eventually supply a response via DeviceMethodResponse.
func (c *Client) HandleMethodCall(ctx context.Context, method string, payload []byte, methodHandle transport.MethodHandle) dispatch.DispatchResult {
	result, handled := c.methodDispatcher.DispatchSync(method, payload, func(response []byte, status dispatch.MethodStatus) error {
		r := c.transport.DeviceMethodResponse(ctx, methodHandle, response, int(status))
		if r != transport.ResultOK {
			return NewError("transport: device method response failed", nil)
		}
		return nil
	})
	if handled {
		return result
	}
	status, handled := c.methodDispatcher.DispatchAsync(method, payload, methodHandle)
	if handled {
		return dispatch.DispatchResult{HandlerStatus: status}
	}
	return dispatch.DispatchResult{}
}

// DeviceMethodResponse forwards an async-extended handler's deferred
// response to the transport.
func (c *Client) DeviceMethodResponse(ctx context.Context, methodHandle transport.MethodHandle, payload []byte, status int) error {
	if c.transport == nil {
		return NewNotProvisioned("no transport attached")
	}
	if result := c.transport.DeviceMethodResponse(ctx, methodHandle, payload, status); result != transport.ResultOK {
		return NewError("transport: device method response failed", nil)
	}
	return nil
}

// RegisterInputRoute registers or replaces a named-input handler (modules
// only). Passing both handlers nil deregisters the route.
func (c *Client) RegisterInputRoute(inputName string, sync dispatch.MessageSyncHandler, async dispatch.MessageAsyncHandler) error {
	if err := c.messageDispatcher.RegisterInputRoute(inputName, sync, async); err != nil {
		return NewError("input route registration failed", err)
	}
	return nil
}

func (c *Client) subscribeInputQueue() error {
	if c.transport == nil {
		return NewNotProvisioned("no transport attached")
	}
	if result := c.transport.SubscribeInputQueue(context.Background()); result != transport.ResultOK {
		return NewError("transport: subscribe input queue failed", nil)
	}
	return nil
}

func (c *Client) unsubscribeInputQueue() error {
	if c.transport == nil {
		return nil
	}
	if result := c.transport.UnsubscribeInputQueue(context.Background()); result != transport.ResultOK {
		return NewError("transport: unsubscribe input queue failed", nil)
	}
	return nil
}
