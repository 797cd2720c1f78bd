package grpctransport

import (
	"encoding/base64"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/azdevice/deviceclient/transport"
)

// Full gRPC method names for the device gateway service. There is no
// .proto file behind these: every request/response is a structpb.Struct,
// a real proto.Message from google.golang.org/protobuf that needs no
// generated code, which keeps this reference transport self-contained.
const (
	serviceName = "/deviceclient.v1.DeviceGateway/"

	methodRegisterDevice          = serviceName + "RegisterDevice"
	methodUnregisterDevice        = serviceName + "UnregisterDevice"
	methodSubscribeC2D            = serviceName + "SubscribeC2D"
	methodUnsubscribeC2D          = serviceName + "UnsubscribeC2D"
	methodSubscribeTwin           = serviceName + "SubscribeTwin"
	methodUnsubscribeTwin         = serviceName + "UnsubscribeTwin"
	methodSubscribeMethod         = serviceName + "SubscribeMethod"
	methodUnsubscribeMethod       = serviceName + "UnsubscribeMethod"
	methodSubscribeInputQueue     = serviceName + "SubscribeInputQueue"
	methodUnsubscribeInputQueue   = serviceName + "UnsubscribeInputQueue"
	methodGetTwinAsync            = serviceName + "GetTwinAsync"
	methodProcessTwinItem         = serviceName + "ProcessTwinItem"
	methodSendTelemetryBatch      = serviceName + "SendTelemetryBatch"
	methodSendMessageDisposition  = serviceName + "SendMessageDisposition"
	methodDeviceMethodResponse    = serviceName + "DeviceMethodResponse"
	methodSetOption                = serviceName + "SetOption"
	methodSetRetryPolicy           = serviceName + "SetRetryPolicy"
	methodGetSendStatus            = serviceName + "GetSendStatus"
	methodWatchEvents               = serviceName + "WatchEvents"
)

// mustStruct builds a structpb.Struct from a plain map. Every call site
// passes a literal map of JSON-safe values, so construction cannot fail in
// practice; panicking here would only mask a programming error.
func mustStruct(fields map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		panic("grpctransport: invalid struct fields: " + err.Error())
	}
	return s
}

func encodeBytes(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func decodeBytes(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func propertiesToMap(props map[string]string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func propertiesFromStruct(s *structpb.Struct) map[string]string {
	if s == nil {
		return nil
	}
	out := make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		out[k] = v.GetStringValue()
	}
	return out
}

func stringField(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.Fields[name].GetStringValue()
}

func boolField(s *structpb.Struct, name string) bool {
	if s == nil {
		return false
	}
	return s.Fields[name].GetBoolValue()
}

func numberField(s *structpb.Struct, name string) float64 {
	if s == nil {
		return 0
	}
	return s.Fields[name].GetNumberValue()
}

func structField(s *structpb.Struct, name string) *structpb.Struct {
	if s == nil {
		return nil
	}
	return s.Fields[name].GetStructValue()
}

// resultOf reads the conventional "result" string field a gateway response
// carries; responses that only ever succeed (acks) default to OK when the
// field is absent.
func resultOf(s *structpb.Struct) transport.Result {
	if s == nil {
		return transport.ResultOK
	}
	if v, ok := s.Fields["result"]; ok {
		return transport.Result(v.GetStringValue())
	}
	return transport.ResultOK
}
