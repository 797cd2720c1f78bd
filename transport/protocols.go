// Package transport defines the canonical protocols the device client core
// consumes from a pluggable wire-protocol implementation. All concrete
// transports (MQTT, AMQP, HTTP, or the reference gRPC transport in
// transport/grpctransport) implement Transport; the core depends only on
// this interface, never on a transport's internals.
package transport

import "context"

// =============================================================================
// RESULT & CONFIRMATION TAXONOMIES
// =============================================================================

// Result is the surface result taxonomy returned by transport operations.
type Result string

const (
	ResultOK                     Result = "OK"
	ResultInvalidArg              Result = "INVALID_ARG"
	ResultError                   Result = "ERROR"
	ResultIndefiniteTime           Result = "INDEFINITE_TIME"
	ResultProvisioningNotComplete Result = "PROVISIONING_NOT_COMPLETE"
)

// Confirmation is the verdict taxonomy delivered to outbound-message
// callbacks.
type Confirmation string

const (
	ConfirmationOK               Confirmation = "OK"
	ConfirmationError             Confirmation = "ERROR"
	ConfirmationMessageTimeout    Confirmation = "MESSAGE_TIMEOUT"
	ConfirmationBecauseDestroy    Confirmation = "BECAUSE_DESTROY"
)

// ItemResult is returned by the per-item twin processor.
type ItemResult string

const (
	ItemOK          ItemResult = "OK"
	ItemContinue    ItemResult = "CONTINUE"
	ItemNotConnected ItemResult = "NOT_CONNECTED"
	ItemError       ItemResult = "ERROR"
)

// Disposition is the verdict a user handler returns for an inbound
// cloud-to-device message.
type Disposition string

const (
	DispositionAccepted Disposition = "ACCEPTED"
	DispositionRejected Disposition = "REJECTED"
	DispositionAbandoned Disposition = "ABANDONED"
)

// TwinUpdateKind distinguishes a full desired-property document from a patch.
type TwinUpdateKind string

const (
	TwinUpdateComplete TwinUpdateKind = "COMPLETE"
	TwinUpdatePartial  TwinUpdateKind = "PARTIAL"
)

// =============================================================================
// MESSAGES
// =============================================================================

// Message is an opaque outbound or inbound message envelope. The core never
// parses Body; it only clones, queues, times out, and frees it.
type Message struct {
	Body       []byte
	Properties map[string]string
	OutputName string // set by SendEventToOutputAsync
	InputName  string // populated by the transport on inbound named-input delivery
	Handle     any    // transport-specific disposition handle, opaque to the core
}

// Clone returns a deep copy suitable for queuing. The outbound queue
// clones every message on enqueue so a caller mutating its original after
// SendEventAsync returns cannot corrupt a still-pending entry.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	body := make([]byte, len(m.Body))
	copy(body, m.Body)
	props := make(map[string]string, len(m.Properties))
	for k, v := range m.Properties {
		props[k] = v
	}
	return &Message{Body: body, Properties: props, OutputName: m.OutputName, InputName: m.InputName, Handle: m.Handle}
}

// CompletedBatch is what a transport hands back after attempting delivery
// of some outbound entries: a single verdict applied to every entry id in
// the batch.
type CompletedBatch struct {
	EntryIDs     []uint64
	Confirmation Confirmation
}

// PendingMessage is one outbound entry handed to the transport for
// delivery: an opaque id the transport must echo back in a CompletedBatch,
// paired with the cloned message body.
type PendingMessage struct {
	ID  uint64
	Msg *Message
}

// =============================================================================
// CALLBACK BUNDLE
// =============================================================================

// Callbacks is the bundle of function pointers the core hands to a
// transport through SetCallbacks, after the transport is constructed.
type Callbacks struct {
	OnSendComplete          func(batch CompletedBatch)
	OnTwinReportedComplete   func(itemID uint32, status Result)
	OnTwinRetrievePropertyComplete func(kind TwinUpdateKind, payload []byte)
	OnConnectionStatusChanged func(status, reason string)
	OnGetProductInfo         func() string
	// OnMessage is the default (nameless) C2D dispatch entry point; it
	// returns false if nothing consumed the message.
	OnMessage func(msg *Message) bool
	// OnMessageToInput is the named-input dispatch entry point.
	OnMessageToInput func(msg *Message) bool
	OnMethodComplete func(methodName string, payload []byte, handle MethodHandle) bool
}

// MethodHandle is an opaque token identifying an in-flight method call,
// carried until the device supplies a response.
type MethodHandle any

// =============================================================================
// TRANSPORT VTABLE
// =============================================================================

// Transport is the set of operations the client core requires from a wire
// transport. A concrete implementation is constructed with a
// Callbacks bundle (via SetCallbacks) before any subscribe call is issued.
type Transport interface {
	SetCallbacks(cb Callbacks)

	RegisterDevice(ctx context.Context) Result
	UnregisterDevice(ctx context.Context) Result

	SubscribeC2D(ctx context.Context) Result
	UnsubscribeC2D(ctx context.Context) Result
	SubscribeTwin(ctx context.Context) Result
	UnsubscribeTwin(ctx context.Context) Result
	SubscribeMethod(ctx context.Context) Result
	UnsubscribeMethod(ctx context.Context) Result
	SubscribeInputQueue(ctx context.Context) Result
	UnsubscribeInputQueue(ctx context.Context) Result

	GetTwinAsync(ctx context.Context) Result
	// ProcessTwinItem attempts to hand one reported-state payload to the
	// wire; see ItemResult for the possible outcomes.
	ProcessTwinItem(ctx context.Context, itemID uint32, payload []byte) ItemResult

	// SendTelemetryBatch hands a snapshot of the outbound queue to the
	// transport; completion is reported asynchronously through
	// Callbacks.OnSendComplete.
	SendTelemetryBatch(ctx context.Context, items []PendingMessage) Result
	SendMessageDisposition(ctx context.Context, handle any, disposition Disposition) Result
	DeviceMethodResponse(ctx context.Context, handle MethodHandle, payload []byte, status int) Result

	SetOption(name string, value any) Result
	SetRetryPolicy(policy string, timeoutSeconds int) Result
	GetSendStatus() (busy bool, err error)
	GetHostName() string
	GetSupportedPlatformInfo() string
	SetCallbackContext(ctx any)

	// DoWork pumps one iteration of the transport's own event loop; it is
	// called once per Client.DoWork tick.
	DoWork(ctx context.Context)

	Destroy()
}
