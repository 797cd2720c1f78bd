package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodDispatcher_SyncRendersResponse(t *testing.T) {
	d := NewMethodDispatcher()
	require.NoError(t, d.SetSyncHandler(func(method string, payload []byte) (MethodStatus, []byte) {
		return 200, []byte("ok")
	}))

	var sentPayload []byte
	var sentStatus MethodStatus
	result, handled := d.DispatchSync("reboot", []byte("{}"), func(payload []byte, status MethodStatus) error {
		sentPayload = payload
		sentStatus = status
		return nil
	})
	require.True(t, handled)
	assert.NoError(t, result.TransportErr)
	assert.Equal(t, MethodStatus(200), result.HandlerStatus)
	assert.Equal(t, []byte("ok"), sentPayload)
	assert.Equal(t, MethodStatus(200), sentStatus)
}

func TestMethodDispatcher_EmptyResponseIsError(t *testing.T) {
	d := NewMethodDispatcher()
	require.NoError(t, d.SetSyncHandler(func(method string, payload []byte) (MethodStatus, []byte) {
		return 200, nil
	}))
	result, handled := d.DispatchSync("reboot", nil, func(payload []byte, status MethodStatus) error { return nil })
	require.True(t, handled)
	assert.Error(t, result.TransportErr)
}

func TestMethodDispatcher_TransportErrorPreservedSeparately(t *testing.T) {
	d := NewMethodDispatcher()
	require.NoError(t, d.SetSyncHandler(func(method string, payload []byte) (MethodStatus, []byte) {
		return 200, []byte("ok")
	}))
	result, handled := d.DispatchSync("reboot", nil, func(payload []byte, status MethodStatus) error {
		return assertErr
	})
	require.True(t, handled)
	// The handler's own status survives even though the transport call failed.
	assert.Equal(t, MethodStatus(200), result.HandlerStatus)
	assert.Error(t, result.TransportErr)
}

func TestMethodDispatcher_AsyncDefersResponse(t *testing.T) {
	d := NewMethodDispatcher()
	var gotHandle any
	require.NoError(t, d.SetAsyncHandler(func(method string, payload []byte, methodHandle any) MethodStatus {
		gotHandle = methodHandle
		return 202
	}))
	status, handled := d.DispatchAsync("update", nil, "handle-1")
	require.True(t, handled)
	assert.Equal(t, MethodStatus(202), status)
	assert.Equal(t, "handle-1", gotHandle)
}

func TestMethodDispatcher_ConflictingShapeRejectedWithoutMutating(t *testing.T) {
	d := NewMethodDispatcher()
	require.NoError(t, d.SetSyncHandler(func(method string, payload []byte) (MethodStatus, []byte) {
		return 200, []byte("ok")
	}))
	err := d.SetAsyncHandler(func(method string, payload []byte, methodHandle any) MethodStatus { return 0 })
	assert.Error(t, err)
	assert.Equal(t, ShapeSync, d.Shape())
}
