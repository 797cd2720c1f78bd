package grpctransport

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/azdevice/deviceclient/transport"
)

// Event kinds pushed down the WatchEvents server-streaming RPC.
const (
	eventSendComplete       = "SEND_COMPLETE"
	eventTwinAck            = "TWIN_ACK"
	eventTwinUpdate         = "TWIN_UPDATE"
	eventConnectionStatus   = "CONNECTION_STATUS"
	eventMessage            = "MESSAGE"
	eventMessageToInput     = "MESSAGE_TO_INPUT"
	eventMethodCall         = "METHOD_CALL"
)

// startWatch opens the long-lived inbound event stream if it is not
// already running. Safe to call more than once: a second call while a
// stream is already open is a no-op.
func (t *Transport) startWatch() {
	t.mu.Lock()
	if t.cancelWatch != nil {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelWatch = cancel
	t.mu.Unlock()

	go t.runWatch(ctx)
}

func (t *Transport) stopWatch() {
	t.mu.Lock()
	cancel := t.cancelWatch
	t.cancelWatch = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runWatch opens the stream, sends the subscribe request, and copies every
// inbound structpb.Struct onto t.events until the stream ends or ctx is
// canceled by stopWatch/Destroy. It never touches a user callback
// directly — only DoWork does that, draining t.events on its own schedule.
func (t *Transport) runWatch(ctx context.Context) {
	stream, err := t.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, methodWatchEvents)
	if err != nil {
		return
	}
	if err := stream.SendMsg(mustStruct(map[string]any{"device_id": t.deviceID})); err != nil {
		return
	}
	if err := stream.CloseSend(); err != nil {
		return
	}

	for {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err != nil {
			if err != io.EOF {
				t.mu.Lock()
				cb := t.callbacks
				t.mu.Unlock()
				if cb.OnConnectionStatusChanged != nil {
					select {
					case t.events <- mustStruct(map[string]any{
						"kind":   eventConnectionStatus,
						"status": "CONNECTION_DISCONNECTED",
						"reason": "stream_closed",
					}):
					default:
					}
				}
			}
			return
		}
		select {
		case t.events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// dispatchEvent applies one decoded event to the matching callback. Called
// only from DoWork.
func dispatchEvent(cb transport.Callbacks, evt *structpb.Struct) {
	switch stringField(evt, "kind") {
	case eventSendComplete:
		if cb.OnSendComplete == nil {
			return
		}
		ids := evt.Fields["entry_ids"].GetListValue().GetValues()
		entryIDs := make([]uint64, 0, len(ids))
		for _, v := range ids {
			entryIDs = append(entryIDs, uint64(v.GetNumberValue()))
		}
		cb.OnSendComplete(transport.CompletedBatch{
			EntryIDs:     entryIDs,
			Confirmation: transport.Confirmation(stringField(evt, "confirmation")),
		})
	case eventTwinAck:
		if cb.OnTwinReportedComplete == nil {
			return
		}
		cb.OnTwinReportedComplete(uint32(numberField(evt, "item_id")), transport.Result(stringField(evt, "status")))
	case eventTwinUpdate:
		if cb.OnTwinRetrievePropertyComplete == nil {
			return
		}
		cb.OnTwinRetrievePropertyComplete(transport.TwinUpdateKind(stringField(evt, "twin_update_kind")), decodeBytes(stringField(evt, "payload")))
	case eventConnectionStatus:
		if cb.OnConnectionStatusChanged == nil {
			return
		}
		cb.OnConnectionStatusChanged(stringField(evt, "status"), stringField(evt, "reason"))
	case eventMessage:
		if cb.OnMessage == nil {
			return
		}
		cb.OnMessage(&transport.Message{
			Body:       decodeBytes(stringField(evt, "body")),
			Properties: propertiesFromStruct(structField(evt, "properties")),
			Handle:     stringField(evt, "handle"),
		})
	case eventMessageToInput:
		if cb.OnMessageToInput == nil {
			return
		}
		cb.OnMessageToInput(&transport.Message{
			Body:       decodeBytes(stringField(evt, "body")),
			Properties: propertiesFromStruct(structField(evt, "properties")),
			InputName:  stringField(evt, "input_name"),
			Handle:     stringField(evt, "handle"),
		})
	case eventMethodCall:
		if cb.OnMethodComplete == nil {
			return
		}
		cb.OnMethodComplete(stringField(evt, "method"), decodeBytes(stringField(evt, "payload")), transport.MethodHandle(stringField(evt, "handle")))
	}
}
