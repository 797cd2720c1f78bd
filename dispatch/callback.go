// Package dispatch fans transport-delivered events out to user handlers in
// one of three coexisting shapes: none, synchronous, and async-extended,
// expressed as a tagged variant per slot so "at most one shape is active"
// is a type-level fact rather than a pair of nullable function pointers
// that could both be set.
package dispatch

// Shape tags which variant of a callback slot is active.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeSync
	ShapeAsyncExtended
)

// MessageSyncHandler is the synchronous C2D message handler shape: it
// returns a disposition inline.
type MessageSyncHandler func(body []byte, properties map[string]string) Disposition

// MessageAsyncHandler is the async-extended C2D message handler shape: the
// dispatcher's own boolean result is propagated upward by the caller.
type MessageAsyncHandler func(body []byte, properties map[string]string) bool

// Disposition mirrors transport.Disposition without importing the
// transport package, keeping dispatch free of a transport dependency.
type Disposition string

const (
	DispositionAccepted  Disposition = "ACCEPTED"
	DispositionRejected  Disposition = "REJECTED"
	DispositionAbandoned Disposition = "ABANDONED"
)

// messageCallback is a tagged variant holding at most one handler shape.
type messageCallback struct {
	shape Shape
	sync  MessageSyncHandler
	async MessageAsyncHandler
}

func (c messageCallback) isSet() bool { return c.shape != ShapeNone }

// MethodStatus is the integer status a method handler or response carries.
type MethodStatus int

// MethodSyncHandler renders an immediate response.
type MethodSyncHandler func(method string, payload []byte) (status MethodStatus, response []byte)

// MethodAsyncHandler defers the response; methodHandle is later passed back
// into DeviceMethodResponse.
type MethodAsyncHandler func(method string, payload []byte, methodHandle any) MethodStatus

type methodCallback struct {
	shape Shape
	sync  MethodSyncHandler
	async MethodAsyncHandler
}

func (c methodCallback) isSet() bool { return c.shape != ShapeNone }
