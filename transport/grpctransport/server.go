package grpctransport

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Backend is what a device gateway server bridges unary/streaming RPCs
// onto. It is the server-side mirror of transport.Transport: a test
// harness or a real hub gateway implements it and everything else in this
// file is wiring.
type Backend interface {
	RegisterDevice(ctx context.Context, deviceID, hostName, productInfo string) error
	UnregisterDevice(ctx context.Context, deviceID string) error
	Subscribe(ctx context.Context, deviceID, kind string) error
	GetTwinAsync(ctx context.Context, deviceID string) error
	ProcessTwinItem(ctx context.Context, deviceID string, itemID uint32, payload []byte) string
	SendTelemetryBatch(ctx context.Context, deviceID string, items []TelemetryItem) error
	SendMessageDisposition(ctx context.Context, deviceID, handle, disposition string) error
	DeviceMethodResponse(ctx context.Context, deviceID, handle string, payload []byte, status int) error
	SetOption(ctx context.Context, deviceID, name, value string) error
	SetRetryPolicy(ctx context.Context, deviceID, policy string, timeoutSeconds int) error
	IsBusy(ctx context.Context, deviceID string) bool

	// Watch registers events for deviceID onto the returned channel until
	// ctx is canceled.
	Watch(ctx context.Context, deviceID string) <-chan *structpb.Struct
}

// TelemetryItem is one decoded batch entry handed to Backend.SendTelemetryBatch.
type TelemetryItem struct {
	ID         uint64
	Body       []byte
	Properties map[string]string
	OutputName string
}

// Server bridges a Backend onto a *grpc.Server via a hand-registered
// grpc.ServiceDesc, the same bridging-a-bus-shaped-interface-onto-a-gRPC-
// service pattern the reference transport's client half uses in reverse.
// It exists mainly so cmd/deviceclientdemo and tests can stand up a
// complete round trip without a real hub.
type Server struct {
	backend Backend
}

// NewServer wraps backend for registration on a *grpc.Server.
func NewServer(backend Backend) *Server { return &Server{backend: backend} }

// Register installs the device gateway service (with an otelgrpc server
// stats handler already expected to be set on srv by the caller's own
// grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler())) call) onto
// srv.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(&serviceDesc, s)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "deviceclient.v1.DeviceGateway",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterDevice", Handler: unaryHandler((*Server).handleRegisterDevice)},
		{MethodName: "UnregisterDevice", Handler: unaryHandler((*Server).handleUnregisterDevice)},
		{MethodName: "SubscribeC2D", Handler: unaryHandler(subscribeHandler("c2d"))},
		{MethodName: "UnsubscribeC2D", Handler: unaryHandler(subscribeHandler("c2d"))},
		{MethodName: "SubscribeTwin", Handler: unaryHandler(subscribeHandler("twin"))},
		{MethodName: "UnsubscribeTwin", Handler: unaryHandler(subscribeHandler("twin"))},
		{MethodName: "SubscribeMethod", Handler: unaryHandler(subscribeHandler("method"))},
		{MethodName: "UnsubscribeMethod", Handler: unaryHandler(subscribeHandler("method"))},
		{MethodName: "SubscribeInputQueue", Handler: unaryHandler(subscribeHandler("input"))},
		{MethodName: "UnsubscribeInputQueue", Handler: unaryHandler(subscribeHandler("input"))},
		{MethodName: "GetTwinAsync", Handler: unaryHandler((*Server).handleGetTwinAsync)},
		{MethodName: "ProcessTwinItem", Handler: unaryHandler((*Server).handleProcessTwinItem)},
		{MethodName: "SendTelemetryBatch", Handler: unaryHandler((*Server).handleSendTelemetryBatch)},
		{MethodName: "SendMessageDisposition", Handler: unaryHandler((*Server).handleSendMessageDisposition)},
		{MethodName: "DeviceMethodResponse", Handler: unaryHandler((*Server).handleDeviceMethodResponse)},
		{MethodName: "SetOption", Handler: unaryHandler((*Server).handleSetOption)},
		{MethodName: "SetRetryPolicy", Handler: unaryHandler((*Server).handleSetRetryPolicy)},
		{MethodName: "GetSendStatus", Handler: unaryHandler((*Server).handleGetSendStatus)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "deviceclient/transport/grpctransport/server.go",
}

type unaryFunc func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts one of our (*Server, ctx, req)->(resp, err) methods
// into the grpc.methodHandler shape grpc.ServiceDesc expects.
func unaryHandler(fn unaryFunc) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		if interceptor == nil {
			return fn(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(s, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, req, info, handler)
	}
}

func (s *Server) handleRegisterDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.RegisterDevice(ctx, stringField(req, "device_id"), stringField(req, "host_name"), stringField(req, "product_info"))
	return ackResponse(err), nil
}

func (s *Server) handleUnregisterDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.UnregisterDevice(ctx, stringField(req, "device_id"))
	return ackResponse(err), nil
}

// subscribeHandler builds a handler bound to a fixed subscription kind,
// since Subscribe*/Unsubscribe* differ only in which interest they record.
func subscribeHandler(kind string) unaryFunc {
	return func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		err := s.backend.Subscribe(ctx, stringField(req, "device_id"), kind)
		return ackResponse(err), nil
	}
}

func (s *Server) handleGetTwinAsync(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.GetTwinAsync(ctx, stringField(req, "device_id"))
	return ackResponse(err), nil
}

func (s *Server) handleProcessTwinItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	result := s.backend.ProcessTwinItem(ctx, stringField(req, "device_id"), uint32(numberField(req, "item_id")), decodeBytes(stringField(req, "payload")))
	return mustStruct(map[string]any{"result": result}), nil
}

func (s *Server) handleSendTelemetryBatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rawItems := req.Fields["items"].GetListValue().GetValues()
	items := make([]TelemetryItem, 0, len(rawItems))
	for _, v := range rawItems {
		item := v.GetStructValue()
		items = append(items, TelemetryItem{
			ID:         uint64(numberField(item, "id")),
			Body:       decodeBytes(stringField(item, "body")),
			Properties: propertiesFromStruct(structField(item, "properties")),
			OutputName: stringField(item, "output_name"),
		})
	}
	err := s.backend.SendTelemetryBatch(ctx, stringField(req, "device_id"), items)
	return ackResponse(err), nil
}

func (s *Server) handleSendMessageDisposition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.SendMessageDisposition(ctx, stringField(req, "device_id"), stringField(req, "handle"), stringField(req, "disposition"))
	return ackResponse(err), nil
}

func (s *Server) handleDeviceMethodResponse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.DeviceMethodResponse(ctx, stringField(req, "device_id"), stringField(req, "handle"), decodeBytes(stringField(req, "payload")), int(numberField(req, "status")))
	return ackResponse(err), nil
}

func (s *Server) handleSetOption(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.SetOption(ctx, stringField(req, "device_id"), stringField(req, "name"), stringField(req, "value"))
	return ackResponse(err), nil
}

func (s *Server) handleSetRetryPolicy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.backend.SetRetryPolicy(ctx, stringField(req, "device_id"), stringField(req, "policy"), int(numberField(req, "timeout_seconds")))
	return ackResponse(err), nil
}

func (s *Server) handleGetSendStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	busy := s.backend.IsBusy(ctx, stringField(req, "device_id"))
	return mustStruct(map[string]any{"busy": busy}), nil
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	deviceID := stringField(req, "device_id")

	ctx := stream.Context()
	events := s.backend.Watch(ctx, deviceID)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(evt); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func ackResponse(err error) *structpb.Struct {
	if err != nil {
		return mustStruct(map[string]any{"result": string(resultError), "error": err.Error()})
	}
	return mustStruct(map[string]any{"result": string(resultOK)})
}

const (
	resultOK    = "OK"
	resultError = "ERROR"
)

// InMemoryBackend is a minimal Backend suitable for local demos and tests:
// it accepts every device/telemetry/twin/method call and fans inbound
// events to whatever is currently being watched.
type InMemoryBackend struct {
	mu       sync.Mutex
	watchers map[string]chan *structpb.Struct
}

// NewInMemoryBackend constructs an empty backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{watchers: make(map[string]chan *structpb.Struct)}
}

func (b *InMemoryBackend) RegisterDevice(ctx context.Context, deviceID, hostName, productInfo string) error {
	return nil
}
func (b *InMemoryBackend) UnregisterDevice(ctx context.Context, deviceID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.watchers[deviceID]; ok {
		close(ch)
		delete(b.watchers, deviceID)
	}
	return nil
}
func (b *InMemoryBackend) Subscribe(ctx context.Context, deviceID, kind string) error { return nil }
func (b *InMemoryBackend) GetTwinAsync(ctx context.Context, deviceID string) error {
	b.Push(deviceID, mustStruct(map[string]any{
		"kind":             eventTwinUpdate,
		"twin_update_kind": "COMPLETE",
		"payload":          encodeBytes([]byte(`{}`)),
	}))
	return nil
}
func (b *InMemoryBackend) ProcessTwinItem(ctx context.Context, deviceID string, itemID uint32, payload []byte) string {
	return "OK"
}
func (b *InMemoryBackend) SendTelemetryBatch(ctx context.Context, deviceID string, items []TelemetryItem) error {
	ids := make([]any, 0, len(items))
	for _, item := range items {
		ids = append(ids, float64(item.ID))
	}
	b.Push(deviceID, mustStruct(map[string]any{
		"kind":         eventSendComplete,
		"entry_ids":    ids,
		"confirmation": "OK",
	}))
	return nil
}
func (b *InMemoryBackend) SendMessageDisposition(ctx context.Context, deviceID, handle, disposition string) error {
	return nil
}
func (b *InMemoryBackend) DeviceMethodResponse(ctx context.Context, deviceID, handle string, payload []byte, status int) error {
	return nil
}
func (b *InMemoryBackend) SetOption(ctx context.Context, deviceID, name, value string) error {
	return nil
}
func (b *InMemoryBackend) SetRetryPolicy(ctx context.Context, deviceID, policy string, timeoutSeconds int) error {
	return nil
}
func (b *InMemoryBackend) IsBusy(ctx context.Context, deviceID string) bool { return false }

func (b *InMemoryBackend) Watch(ctx context.Context, deviceID string) <-chan *structpb.Struct {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *structpb.Struct, 16)
	b.watchers[deviceID] = ch
	return ch
}

// Push delivers evt to deviceID's watcher, if any is currently attached.
// It lets a demo or test simulate the hub pushing a C2D message, method
// call, or twin update down to the device.
func (b *InMemoryBackend) Push(deviceID string, evt *structpb.Struct) {
	b.mu.Lock()
	ch, ok := b.watchers[deviceID]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- evt:
	default:
	}
}
