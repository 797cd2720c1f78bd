// Package deviceclient implements the device-side hub client core: the
// registration state machine, the dispatch/queue plumbing, and the driver
// loop that coordinates provisioning, hub attachment, and steady-state
// operation. It composes the identity, transport, auth,
// provisioning, dispatch, queue, diagnostics, and options packages; the
// wire transport, blob-upload, HSM, and provisioning backend themselves
// are external collaborators reached only through their interfaces.
//
// Client is not safe for concurrent use: it is a single-owner,
// cooperatively driven state machine. All timing advances only inside
// DoWork.
package deviceclient

import (
	"context"
	"strings"
	"time"

	"github.com/azdevice/deviceclient/auth"
	"github.com/azdevice/deviceclient/diagnostics"
	"github.com/azdevice/deviceclient/dispatch"
	"github.com/azdevice/deviceclient/identity"
	"github.com/azdevice/deviceclient/options"
	"github.com/azdevice/deviceclient/provisioning"
	"github.com/azdevice/deviceclient/queue"
	"github.com/azdevice/deviceclient/transport"
)

// TransportFactory builds a hub transport once an identity is known,
// either directly at construction or as the hand-off from provisioning.
type TransportFactory func(id *identity.Identity) (transport.Transport, error)

// AuthFactory builds the authorization module once an identity is known.
type AuthFactory func(id *identity.Identity) (auth.Authorization, error)

// Client is the device-side hub client core.
type Client struct {
	log Logger

	state          RegistrationState
	pendingIntents intentBits

	identity *identity.Identity
	authz    auth.Authorization

	transport         transport.Transport
	isSharedTransport bool

	outboundQueue *queue.OutboundQueue
	twinQueue     *queue.TwinQueue

	messageDispatcher *dispatch.MessageDispatcher
	methodDispatcher  *dispatch.MethodDispatcher

	connectionStatusCb func(status ConnectionStatus, reason ConnectionStatusReason)

	productInfo *diagnostics.ProductInfo
	sampler     *diagnostics.Sampler

	optionsRouter *options.Router

	messageTimeoutSpan uint64 // ticks; 0 = no timeout
	tick               uint64

	logTrace bool

	retryPolicy        RetryPolicy
	retryTimeoutSeconds int

	// provisioning sub-state-machine wiring (nil for create-from-identity clients)
	provisioningClient   provisioning.Client
	provisioningStarted  bool
	provisioningResult   *provisioning.Result
	buildAuth            AuthFactory
	buildTransport       TransportFactory
	provisioningProvider identity.TransportProvider

	blobUpload        BlobUpload
	blobUploadFactory func() (BlobUpload, error)
	methodInvoke MethodInvoke

	// completeTwinUpdateEncountered is the sticky flag named
	// complete_twin_update_encountered in the original source: partial
	// desired-property updates are dropped until at least one complete
	// update has been observed.
	completeTwinUpdateEncountered bool
	oneShotTwinCb                 func(payload []byte)

	lastError error
}

// BlobUpload is the external blob-upload collaborator. It is created
// lazily on first use of a blob-upload option (blob_upload_timeout_secs or
// CURLOPT_VERBOSE).
type BlobUpload interface {
	SetOption(name string, value any) error
	Destroy()
}

// MethodInvoke is the optional edge-module method-invocation collaborator.
type MethodInvoke interface {
	Destroy()
}

// NewFromIdentity constructs a client that starts ATTACHED directly from a
// parsed identity. On failure every partially built sub-object is torn down
// before returning.
func NewFromIdentity(ctx context.Context, id *identity.Identity, authz auth.Authorization, tr transport.Transport, isSharedTransport bool, platform diagnostics.PlatformInfo, logger Logger) (*Client, error) {
	if id == nil {
		return nil, NewInvalidArgument("identity must not be nil")
	}
	if authz == nil {
		return nil, NewInvalidArgument("authorization must not be nil")
	}
	if tr == nil {
		return nil, NewInvalidArgument("transport must not be nil")
	}
	if logger == nil {
		logger = NoopLogger()
	}

	c := newBareClient(logger, platform)
	c.identity = id
	c.authz = authz
	c.transport = tr
	c.isSharedTransport = isSharedTransport
	c.state = StateAttached

	c.wireTransportCallbacks()

	if result := tr.RegisterDevice(ctx); result != transport.ResultOK {
		c.authz.Destroy()
		if !c.isSharedTransport {
			c.transport.Destroy()
		}
		return nil, NewError("transport: register device failed", nil)
	}

	return c, nil
}

// NewFromProvisioning constructs a client that starts IDLE and hands off
// to the provisioning sub-state-machine. buildAuth and
// buildTransport are invoked once the provisioning completion callback
// supplies a hub URI and device id.
func NewFromProvisioning(prov provisioning.Client, buildAuth AuthFactory, buildTransport TransportFactory, provider identity.TransportProvider, platform diagnostics.PlatformInfo, logger Logger) (*Client, error) {
	if prov == nil {
		return nil, NewInvalidArgument("provisioning client must not be nil")
	}
	if buildAuth == nil || buildTransport == nil {
		return nil, NewInvalidArgument("buildAuth and buildTransport must not be nil")
	}
	if logger == nil {
		logger = NoopLogger()
	}

	c := newBareClient(logger, platform)
	c.provisioningClient = prov
	c.buildAuth = buildAuth
	c.buildTransport = buildTransport
	c.provisioningProvider = provider
	c.state = StateIdle
	return c, nil
}

func newBareClient(logger Logger, platform diagnostics.PlatformInfo) *Client {
	c := &Client{
		log:            logger,
		outboundQueue:  queue.NewOutboundQueue(),
		twinQueue:      queue.NewTwinQueue(),
		productInfo:    diagnostics.NewProductInfo(platform),
		sampler:        diagnostics.NewSampler(),
		optionsRouter:  options.NewRouter(),
		retryPolicy:    RetryExponentialBackoffJitter,
	}
	c.messageDispatcher = dispatch.NewMessageDispatcher(c.subscribeInputQueue, c.unsubscribeInputQueue)
	c.methodDispatcher = dispatch.NewMethodDispatcher()
	c.wireOptionsRouter()
	return c
}

// wireTransportCallbacks installs the callback bundle the transport uses to
// report send completion, twin activity, connection status, method calls,
// and inbound messages.
func (c *Client) wireTransportCallbacks() {
	c.transport.SetCallbacks(transport.Callbacks{
		OnSendComplete: func(batch transport.CompletedBatch) {
			c.outboundQueue.Complete(batch.EntryIDs, batch.Confirmation)
			diagnostics.RecordTelemetrySent(string(batch.Confirmation))
		},
		OnTwinReportedComplete: func(itemID uint32, status transport.Result) {
			c.twinQueue.Acknowledge(itemID, status)
			diagnostics.RecordTwinReported(string(status))
		},
		OnConnectionStatusChanged: func(status, reason string) {
			if c.connectionStatusCb != nil {
				c.connectionStatusCb(ConnectionStatus(status), ConnectionStatusReason(reason))
			}
		},
		OnGetProductInfo: func() string {
			return c.productInfo.String()
		},
		OnMessage: func(msg *transport.Message) bool {
			return c.messageDispatcher.DispatchDefaultWithDisposition(msg.Body, msg.Properties, func(d dispatch.Disposition) {
				c.transport.SendMessageDisposition(context.Background(), msg.Handle, transport.Disposition(d))
			})
		},
		OnMessageToInput: func(msg *transport.Message) bool {
			return c.messageDispatcher.DispatchToInput(msg.InputName, msg.Body, msg.Properties)
		},
		OnMethodComplete: func(method string, payload []byte, handle transport.MethodHandle) bool {
			if c.methodDispatcher.Shape() == dispatch.ShapeNone {
				return false
			}
			c.HandleMethodCall(context.Background(), method, payload, handle)
			return true
		},
	})
}

// DoWork is the driver loop: the only place time advances and the only
// place the transport (or provisioning client) is pumped.
func (c *Client) DoWork(ctx context.Context) {
	switch c.state {
	case StateIdle, StatePreRegister, StateRegistering, StateRegistered:
		c.pumpProvisioning(ctx)
		switch c.state {
		case StateRegistered:
			c.attach(ctx)
		case StateError:
			c.emitConnectionStatus(ConnectionUnauthenticated, ReasonProvisioningFailed)
		}
	case StateAttached:
		c.tick++
		c.outboundQueue.SweepTimeouts(c.tick)
		diagnostics.SetOutboundQueueDepth(c.outboundQueue.Len())

		if pending := c.outboundQueue.Pending(); len(pending) > 0 {
			c.transport.SendTelemetryBatch(ctx, pending)
		}

		c.twinQueue.Drain(func(itemID uint32, payload []byte) transport.ItemResult {
			return c.transport.ProcessTwinItem(ctx, itemID, payload)
		})

		c.transport.DoWork(ctx)
	case StateError:
		c.emitConnectionStatus(ConnectionUnauthenticated, ReasonProvisioningFailed)
	}
}

func (c *Client) emitConnectionStatus(status ConnectionStatus, reason ConnectionStatusReason) {
	if c.connectionStatusCb != nil {
		c.connectionStatusCb(status, reason)
	}
}

// pumpProvisioning advances the provisioning sub-state-machine. It starts
// registration on first call, pumps the provisioning client's own DoWork
// while in flight, and performs the REGISTERING -> REGISTERED hand-off
// once a result has been recorded by the completion callback.
func (c *Client) pumpProvisioning(ctx context.Context) {
	if c.provisioningClient == nil {
		return
	}

	if !c.provisioningStarted {
		c.provisioningStarted = true
		c.state = StateRegistering
		err := c.provisioningClient.RegisterDevice(ctx,
			func(provisioning.Status) {},
			func(result provisioning.Result) {
				r := result
				c.provisioningResult = &r
			},
		)
		if err != nil {
			c.state = StateError
			c.lastError = err
			return
		}
	}

	if c.state == StateRegistering {
		c.provisioningClient.DoWork(ctx)
	}

	if c.provisioningResult == nil {
		return
	}
	result := c.provisioningResult
	c.provisioningResult = nil

	if !result.Success {
		c.state = StateError
		c.lastError = result.Err
		return
	}

	dot := strings.Index(result.HubURI, ".")
	if dot < 0 {
		c.state = StateError
		c.lastError = NewError("provisioning: hub URI has no '.' separating hub from suffix", nil)
		return
	}
	id := &identity.Identity{
		HubName:   result.HubURI[:dot],
		HubSuffix: result.HubURI[dot+1:],
		DeviceID:  result.DeviceID,
		Provider:  c.provisioningProvider,
	}

	authz, err := c.buildAuth(id)
	if err != nil {
		c.state = StateError
		c.lastError = err
		return
	}
	tr, err := c.buildTransport(id)
	if err != nil {
		authz.Destroy()
		c.state = StateError
		c.lastError = err
		return
	}

	c.identity = id
	c.authz = authz
	c.transport = tr
	c.wireTransportCallbacks()
	if c.logTrace {
		c.transport.SetOption("logtrace", true)
	}
	c.state = StateRegistered
}

// attach performs the REGISTERED -> ATTACHED transition: draining the
// pending-intent bitset and tearing down the provisioning client.
func (c *Client) attach(ctx context.Context) {
	if c.pendingIntents.has(intentC2DSubscribe) {
		if result := c.transport.SubscribeC2D(ctx); result != transport.ResultOK {
			c.log.Warn("deferred_c2d_subscribe_failed")
		}
	}
	if c.pendingIntents.has(intentTwinSubscribe) {
		if result := c.transport.SubscribeTwin(ctx); result != transport.ResultOK {
			c.log.Warn("deferred_twin_subscribe_failed")
		}
	}
	if c.pendingIntents.has(intentMethodSubscribe) {
		if result := c.transport.SubscribeMethod(ctx); result != transport.ResultOK {
			c.log.Warn("deferred_method_subscribe_failed")
		}
	}
	// intentDispositionSend carries no replay action: no disposition can
	// reference a message received before attachment.
	c.pendingIntents = 0

	if c.provisioningClient != nil {
		c.provisioningClient.Destroy()
		c.provisioningClient = nil
	}
	c.state = StateAttached
}

// State returns the client's current registration state.
func (c *Client) State() RegistrationState { return c.state }

// SendEventAsync clones msg, assigns it a timeout deadline, optionally
// samples it for diagnostics, and appends it to the outbound queue.
func (c *Client) SendEventAsync(msg *transport.Message, cb queue.SendCallback, userCtx any) error {
	if msg == nil {
		return NewInvalidArgument("message must not be nil")
	}
	if c.sampler.ShouldSample() {
		if msg.Properties == nil {
			msg.Properties = map[string]string{}
		}
		msg.Properties["diag-sampled"] = "true"
	}
	c.outboundQueue.Enqueue(msg, cb, userCtx, c.tick, c.messageTimeoutSpan)
	return nil
}

// SendEventToOutputAsync sets msg's output-name attribute before delegating
// to SendEventAsync.
func (c *Client) SendEventToOutputAsync(outputName string, msg *transport.Message, cb queue.SendCallback, userCtx any) error {
	if msg == nil {
		return NewInvalidArgument("message must not be nil")
	}
	msg.OutputName = outputName
	return c.SendEventAsync(msg, cb, userCtx)
}

// SendMessageDisposition forwards a previously received transport handle
// and disposition to the transport.
func (c *Client) SendMessageDisposition(ctx context.Context, handle any, disposition transport.Disposition) error {
	if c.state != StateAttached {
		c.pendingIntents.set(intentDispositionSend)
		return nil
	}
	if result := c.transport.SendMessageDisposition(ctx, handle, disposition); result != transport.ResultOK {
		return NewError("transport: send message disposition failed", nil)
	}
	return nil
}

// SendReportedState enqueues a reported-state payload and ensures the twin
// subscription intent is recorded.
func (c *Client) SendReportedState(payload []byte, cb queue.TwinCallback, userCtx any) (uint32, error) {
	if len(payload) == 0 {
		return 0, NewInvalidArgument("reported-state payload must not be empty")
	}
	if c.state == StateAttached {
		c.transport.SubscribeTwin(context.Background())
	} else {
		c.pendingIntents.set(intentTwinSubscribe)
	}
	id := c.twinQueue.Enqueue(payload, cb, userCtx)
	return id, nil
}

// GetTwinAsync subscribes to twin, requests a one-shot full document from
// the transport, and marks the client as having observed a complete update
// so that later partial updates are delivered. cb receives the next
// complete document only; partial updates never reach it.
func (c *Client) GetTwinAsync(ctx context.Context, cb func(payload []byte)) error {
	if c.state == StateAttached {
		c.transport.SubscribeTwin(ctx)
	} else {
		c.pendingIntents.set(intentTwinSubscribe)
	}
	c.completeTwinUpdateEncountered = true
	if result := c.transport.GetTwinAsync(ctx); result != transport.ResultOK {
		return NewError("transport: get twin async failed", nil)
	}
	c.oneShotTwinCb = cb
	return nil
}

// RetrievePropertyComplete delivers a desired-property update from the
// transport. Partial updates are dropped until a complete update has been
// observed at least once.
func (c *Client) RetrievePropertyComplete(kind transport.TwinUpdateKind, payload []byte, onDesiredUpdate func(payload []byte)) {
	if kind == transport.TwinUpdateComplete {
		c.completeTwinUpdateEncountered = true
	}
	if !c.completeTwinUpdateEncountered {
		return
	}
	if kind == transport.TwinUpdateComplete && c.oneShotTwinCb != nil {
		cb := c.oneShotTwinCb
		c.oneShotTwinCb = nil
		cb(payload)
		return
	}
	if onDesiredUpdate != nil {
		onDesiredUpdate(payload)
	}
}

// SetConnectionStatusCallback installs the connection-status notification
// callback.
func (c *Client) SetConnectionStatusCallback(cb func(status ConnectionStatus, reason ConnectionStatusReason)) {
	c.connectionStatusCb = cb
}

// SetRetryPolicy records the selected policy and timeout and forwards it
// to the transport.
func (c *Client) SetRetryPolicy(policy RetryPolicy, timeoutSeconds int) error {
	c.retryPolicy = policy
	c.retryTimeoutSeconds = timeoutSeconds
	if c.transport != nil {
		if result := c.transport.SetRetryPolicy(string(policy), timeoutSeconds); result != transport.ResultOK {
			return NewError("transport: set retry policy failed", nil)
		}
	}
	return nil
}

// GetSendStatus reports whether the outbound queue has work pending.
func (c *Client) GetSendStatus() SendStatus {
	if c.outboundQueue.IsBusy() {
		return SendStatusBusy
	}
	return SendStatusIdle
}

// GetLastMessageReceiveTime returns the wall-clock time of the last
// inbound C2D message, or the Indefinite-time error if none has arrived
// yet.
func (c *Client) GetLastMessageReceiveTime() (time.Time, error) {
	t, ok := c.messageDispatcher.LastMessageReceiveTime()
	if !ok {
		return time.Time{}, NewIndefiniteTime("no message has been received yet")
	}
	return t, nil
}

// Destroy tears the client down. It is idempotent: calling it more than
// once, or on a client whose sub-objects are already nil, is safe.
func (c *Client) Destroy() {
	if c.transport != nil {
		c.transport.UnregisterDevice(context.Background())
		if !c.isSharedTransport {
			c.transport.Destroy()
		}
		c.transport = nil
	}

	c.outboundQueue.DrainAll(transport.ConfirmationBecauseDestroy)
	c.twinQueue.DestroyAll()

	if c.authz != nil {
		c.authz.Destroy()
		c.authz = nil
	}
	if c.blobUpload != nil {
		c.blobUpload.Destroy()
		c.blobUpload = nil
	}
	if c.methodInvoke != nil {
		c.methodInvoke.Destroy()
		c.methodInvoke = nil
	}
	if c.provisioningClient != nil {
		c.provisioningClient.Destroy()
		c.provisioningClient = nil
	}
}
