package grpctransport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestInMemoryBackend_WatchThenPushDeliversEvent(t *testing.T) {
	b := NewInMemoryBackend()
	ch := b.Watch(context.Background(), "device-1")

	evt := mustStruct(map[string]any{"kind": eventMessage, "body": encodeBytes([]byte("hi"))})
	b.Push("device-1", evt)

	select {
	case got := <-ch:
		assert.Equal(t, "hi", string(decodeBytes(stringField(got, "body"))))
	default:
		t.Fatal("expected event to be delivered to watcher")
	}
}

func TestInMemoryBackend_PushToUnwatchedDeviceIsANoop(t *testing.T) {
	b := NewInMemoryBackend()
	assert.NotPanics(t, func() {
		b.Push("nobody-watching", mustStruct(map[string]any{"kind": eventMessage}))
	})
}

func TestInMemoryBackend_GetTwinAsyncPushesCompleteUpdate(t *testing.T) {
	b := NewInMemoryBackend()
	ch := b.Watch(context.Background(), "device-1")

	require.NoError(t, b.GetTwinAsync(context.Background(), "device-1"))

	evt := <-ch
	assert.Equal(t, eventTwinUpdate, stringField(evt, "kind"))
	assert.Equal(t, "COMPLETE", stringField(evt, "twin_update_kind"))
}

func TestInMemoryBackend_SendTelemetryBatchAcksEveryEntryID(t *testing.T) {
	b := NewInMemoryBackend()
	ch := b.Watch(context.Background(), "device-1")

	err := b.SendTelemetryBatch(context.Background(), "device-1", []TelemetryItem{
		{ID: 10, Body: []byte("a")},
		{ID: 11, Body: []byte("b")},
	})
	require.NoError(t, err)

	evt := <-ch
	assert.Equal(t, eventSendComplete, stringField(evt, "kind"))
	ids := evt.Fields["entry_ids"].GetListValue().GetValues()
	require.Len(t, ids, 2)
	assert.Equal(t, float64(10), ids[0].GetNumberValue())
	assert.Equal(t, float64(11), ids[1].GetNumberValue())
}

func TestInMemoryBackend_UnregisterDeviceClosesWatcher(t *testing.T) {
	b := NewInMemoryBackend()
	ch := b.Watch(context.Background(), "device-1")

	require.NoError(t, b.UnregisterDevice(context.Background(), "device-1"))

	_, open := <-ch
	assert.False(t, open)
}

func TestServer_HandleRegisterDeviceDelegatesToBackend(t *testing.T) {
	b := NewInMemoryBackend()
	s := NewServer(b)

	req := mustStruct(map[string]any{"device_id": "device-1", "host_name": "hub.example", "product_info": "test/1.0"})
	resp, err := s.handleRegisterDevice(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, resultOK, stringField(resp, "result"))
}

func TestServer_SubscribeHandlerDispatchesToBackendSubscribe(t *testing.T) {
	b := NewInMemoryBackend()
	s := NewServer(b)
	handler := subscribeHandler("twin")

	resp, err := handler(s, context.Background(), mustStruct(map[string]any{"device_id": "device-1"}))

	require.NoError(t, err)
	assert.Equal(t, resultOK, stringField(resp, "result"))
}

func TestServer_HandleProcessTwinItemReturnsBackendResult(t *testing.T) {
	b := NewInMemoryBackend()
	s := NewServer(b)

	req := mustStruct(map[string]any{"device_id": "device-1", "item_id": float64(3), "payload": encodeBytes([]byte("x"))})
	resp, err := s.handleProcessTwinItem(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "OK", stringField(resp, "result"))
}

func TestServer_HandleGetSendStatusReportsBackendBusy(t *testing.T) {
	s := NewServer(NewInMemoryBackend())

	resp, err := s.handleGetSendStatus(context.Background(), mustStruct(map[string]any{"device_id": "device-1"}))

	require.NoError(t, err)
	assert.False(t, boolField(resp, "busy"))
}

func TestUnaryHandler_DecodesRequestAndInvokesWithoutInterceptor(t *testing.T) {
	s := NewServer(NewInMemoryBackend())
	handler := unaryHandler((*Server).handleRegisterDevice)

	req := mustStruct(map[string]any{"device_id": "device-1", "host_name": "hub.example"})
	dec := func(v any) error {
		*(v.(*structpb.Struct)) = *req
		return nil
	}

	resp, err := handler(s, context.Background(), dec, nil)

	require.NoError(t, err)
	assert.Equal(t, resultOK, stringField(resp.(*structpb.Struct), "result"))
}

func TestAckResponse_ErrorIncludesMessage(t *testing.T) {
	resp := ackResponse(errors.New("boom"))
	assert.Equal(t, resultError, stringField(resp, "result"))
	assert.Equal(t, "boom", stringField(resp, "error"))
}

func TestAckResponse_NilErrorIsOK(t *testing.T) {
	resp := ackResponse(nil)
	assert.Equal(t, resultOK, stringField(resp, "result"))
}
