package deviceclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azdevice/deviceclient/auth"
	"github.com/azdevice/deviceclient/dispatch"
	"github.com/azdevice/deviceclient/identity"
	"github.com/azdevice/deviceclient/internal/testutil"
	"github.com/azdevice/deviceclient/provisioning"
	"github.com/azdevice/deviceclient/transport"
)

type fakePlatform struct{}

func (fakePlatform) Describe() string { return "test/amd64" }

func newAttachedTestClient(t *testing.T) (*Client, *testutil.FakeTransport) {
	t.Helper()
	tr := testutil.NewFakeTransport()
	c, err := NewFromIdentity(context.Background(), &identity.Identity{DeviceID: "dev1"}, &testutil.FakeAuthorization{}, tr, false, fakePlatform{}, NoopLogger())
	require.NoError(t, err)
	require.Equal(t, StateAttached, c.State())
	return c, tr
}

func TestNewFromIdentity_StartsAttachedAndRegisters(t *testing.T) {
	c, tr := newAttachedTestClient(t)
	assert.Equal(t, StateAttached, c.State())
	assert.False(t, tr.DestroyCalled)
}

func TestNewFromIdentity_RejectsNilCollaborators(t *testing.T) {
	tr := testutil.NewFakeTransport()
	_, err := NewFromIdentity(context.Background(), nil, &testutil.FakeAuthorization{}, tr, false, fakePlatform{}, nil)
	assert.Error(t, err)

	_, err = NewFromIdentity(context.Background(), &identity.Identity{}, nil, tr, false, fakePlatform{}, nil)
	assert.Error(t, err)

	_, err = NewFromIdentity(context.Background(), &identity.Identity{}, &testutil.FakeAuthorization{}, nil, false, fakePlatform{}, nil)
	assert.Error(t, err)
}

func TestNewFromIdentity_TearsDownOnRegisterFailure(t *testing.T) {
	tr := testutil.NewFakeTransport()
	tr.RegisterDeviceResult = transport.ResultError
	authz := &testutil.FakeAuthorization{}

	_, err := NewFromIdentity(context.Background(), &identity.Identity{}, authz, tr, false, fakePlatform{}, nil)
	require.Error(t, err)
	assert.True(t, authz.DestroyCalled)
	assert.True(t, tr.DestroyCalled)
}

func TestNewFromIdentity_DoesNotDestroySharedTransport(t *testing.T) {
	tr := testutil.NewFakeTransport()
	tr.RegisterDeviceResult = transport.ResultError
	authz := &testutil.FakeAuthorization{}

	_, err := NewFromIdentity(context.Background(), &identity.Identity{}, authz, tr, true, fakePlatform{}, nil)
	require.Error(t, err)
	assert.True(t, authz.DestroyCalled)
	assert.False(t, tr.DestroyCalled)
}

func buildAuthFake(id *identity.Identity) (auth.Authorization, error) {
	return &testutil.FakeAuthorization{}, nil
}

func TestNewFromProvisioning_StartsIdleAndHandsOffOnSuccess(t *testing.T) {
	prov := &testutil.FakeProvisioningClient{}
	var builtTransport *testutil.FakeTransport

	c, err := NewFromProvisioning(prov, buildAuthFake,
		func(id *identity.Identity) (transport.Transport, error) {
			builtTransport = testutil.NewFakeTransport()
			return builtTransport, nil
		},
		identity.ProviderMQTT, fakePlatform{}, NoopLogger())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, c.State())

	c.DoWork(context.Background())
	assert.Equal(t, 1, prov.DoWorkCalls)

	prov.Complete(provisioning.Result{Success: true, HubURI: "myhub.azure-devices.net", DeviceID: "dev1"})
	c.DoWork(context.Background())
	assert.Equal(t, StateAttached, c.State())

	c.DoWork(context.Background())
	assert.Equal(t, StateAttached, c.State())
	require.NotNil(t, builtTransport)
}

func TestNewFromProvisioning_MovesToErrorOnRegistrationFailure(t *testing.T) {
	prov := &testutil.FakeProvisioningClient{}
	c, err := NewFromProvisioning(prov, buildAuthFake,
		func(id *identity.Identity) (transport.Transport, error) { return testutil.NewFakeTransport(), nil },
		identity.ProviderMQTT, fakePlatform{}, NoopLogger())
	require.NoError(t, err)

	c.DoWork(context.Background())
	prov.Complete(provisioning.Result{Success: false, Err: NewError("enrollment denied", nil)})
	c.DoWork(context.Background())

	assert.Equal(t, StateError, c.State())
}

func TestClient_AttachReplaysDeferredSubscriptions(t *testing.T) {
	prov := &testutil.FakeProvisioningClient{}
	var tr *testutil.FakeTransport

	c, err := NewFromProvisioning(prov, buildAuthFake,
		func(id *identity.Identity) (transport.Transport, error) {
			tr = testutil.NewFakeTransport()
			return tr, nil
		},
		identity.ProviderMQTT, fakePlatform{}, NoopLogger())
	require.NoError(t, err)

	require.NoError(t, c.SetMessageCallback(func(body []byte, props map[string]string) dispatch.Disposition {
		return dispatch.DispositionAccepted
	}))
	assert.Equal(t, StateIdle, c.State())

	c.DoWork(context.Background())
	prov.Complete(provisioning.Result{Success: true, HubURI: "myhub.azure-devices.net", DeviceID: "dev1"})
	c.DoWork(context.Background())
	c.DoWork(context.Background())

	require.Equal(t, StateAttached, c.State())
	assert.Equal(t, 1, tr.SubscribeC2DCalls)
}

func TestClient_SendEventAsyncEnqueuesAndCompletes(t *testing.T) {
	c, tr := newAttachedTestClient(t)

	var gotConfirmation transport.Confirmation
	err := c.SendEventAsync(&transport.Message{Body: []byte("hello")}, func(conf transport.Confirmation, userCtx any) {
		gotConfirmation = conf
	}, nil)
	require.NoError(t, err)

	c.DoWork(context.Background())
	require.Len(t, tr.SendTelemetryBatchCalls, 1)
	require.Len(t, tr.SendTelemetryBatchCalls[0], 1)

	entryID := tr.SendTelemetryBatchCalls[0][0].ID
	tr.Callbacks.OnSendComplete(transport.CompletedBatch{EntryIDs: []uint64{entryID}, Confirmation: transport.ConfirmationOK})
	assert.Equal(t, transport.ConfirmationOK, gotConfirmation)
}

func TestClient_SendEventAsyncRejectsNilMessage(t *testing.T) {
	c, _ := newAttachedTestClient(t)
	assert.Error(t, c.SendEventAsync(nil, nil, nil))
}

func TestClient_SendReportedStateRoundTrips(t *testing.T) {
	c, tr := newAttachedTestClient(t)

	var gotStatus transport.Result
	id, err := c.SendReportedState([]byte(`{"temp":21}`), func(status transport.Result, userCtx any) {
		gotStatus = status
	}, nil)
	require.NoError(t, err)
	assert.NotZero(t, id)

	tr.ProcessTwinItemFn = func(itemID uint32, payload []byte) transport.ItemResult { return transport.ItemOK }
	c.DoWork(context.Background())

	tr.Callbacks.OnTwinReportedComplete(id, transport.ResultOK)
	assert.Equal(t, transport.ResultOK, gotStatus)
}

func TestClient_SendReportedStateRejectsEmptyPayload(t *testing.T) {
	c, _ := newAttachedTestClient(t)
	_, err := c.SendReportedState(nil, nil, nil)
	assert.Error(t, err)
}

func TestClient_GetTwinAsyncDeliversOneShotThenHonorsCompleteFlag(t *testing.T) {
	c, _ := newAttachedTestClient(t)

	var oneShot []byte
	require.NoError(t, c.GetTwinAsync(context.Background(), func(payload []byte) { oneShot = payload }))

	c.RetrievePropertyComplete(transport.TwinUpdateComplete, []byte(`{"a":1}`), nil)
	assert.Equal(t, []byte(`{"a":1}`), oneShot)

	var desired []byte
	c.RetrievePropertyComplete(transport.TwinUpdatePartial, []byte(`{"b":2}`), func(payload []byte) { desired = payload })
	assert.Equal(t, []byte(`{"b":2}`), desired)
}

func TestClient_RetrievePropertyComplete_DropsPartialBeforeComplete(t *testing.T) {
	c, _ := newAttachedTestClient(t)

	var desired []byte
	c.RetrievePropertyComplete(transport.TwinUpdatePartial, []byte(`{"b":2}`), func(payload []byte) { desired = payload })
	assert.Nil(t, desired)
}

func TestClient_HandleMethodCall_SyncShapeForwardsResponse(t *testing.T) {
	c, tr := newAttachedTestClient(t)
	require.NoError(t, c.SetMethodCallback(func(method string, payload []byte) (dispatch.MethodStatus, []byte) {
		return 200, []byte(`{"ok":true}`)
	}))

	result := c.HandleMethodCall(context.Background(), "reboot", nil, "handle-1")
	assert.Equal(t, dispatch.MethodStatus(200), result.HandlerStatus)
	assert.NoError(t, result.TransportErr)
	require.Len(t, tr.DeviceMethodResponses, 1)
	assert.Equal(t, 200, tr.DeviceMethodResponses[0].Status)
}

func TestClient_HandleMethodCall_AsyncShapeDefersResponse(t *testing.T) {
	c, tr := newAttachedTestClient(t)
	require.NoError(t, c.SetMethodCallbackAsync(func(method string, payload []byte, methodHandle any) dispatch.MethodStatus {
		return 202
	}))

	result := c.HandleMethodCall(context.Background(), "longRunning", nil, "handle-2")
	assert.Equal(t, dispatch.MethodStatus(202), result.HandlerStatus)
	assert.Empty(t, tr.DeviceMethodResponses)

	require.NoError(t, c.DeviceMethodResponse(context.Background(), "handle-2", []byte(`{"done":true}`), 200))
	require.Len(t, tr.DeviceMethodResponses, 1)
}

func TestClient_DestroyIsIdempotent(t *testing.T) {
	c, tr := newAttachedTestClient(t)
	c.Destroy()
	assert.True(t, tr.UnregisterDeviceCalled)
	assert.True(t, tr.DestroyCalled)
	assert.NotPanics(t, func() { c.Destroy() })
}

func TestClient_DestroyDoesNotDestroySharedTransport(t *testing.T) {
	tr := testutil.NewFakeTransport()
	c, err := NewFromIdentity(context.Background(), &identity.Identity{}, &testutil.FakeAuthorization{}, tr, true, fakePlatform{}, nil)
	require.NoError(t, err)

	c.Destroy()
	assert.True(t, tr.UnregisterDeviceCalled)
	assert.False(t, tr.DestroyCalled)
}

func TestClient_DestroyCompletesQueuedEntriesBecauseDestroy(t *testing.T) {
	c, _ := newAttachedTestClient(t)

	var got transport.Confirmation
	require.NoError(t, c.SendEventAsync(&transport.Message{Body: []byte("x")}, func(conf transport.Confirmation, userCtx any) {
		got = conf
	}, nil))

	c.Destroy()
	assert.Equal(t, transport.ConfirmationBecauseDestroy, got)
}

func TestClient_GetSendStatus(t *testing.T) {
	c, _ := newAttachedTestClient(t)
	assert.Equal(t, SendStatusIdle, c.GetSendStatus())

	require.NoError(t, c.SendEventAsync(&transport.Message{Body: []byte("x")}, func(transport.Confirmation, any) {}, nil))
	assert.Equal(t, SendStatusBusy, c.GetSendStatus())
}

func TestClient_GetLastMessageReceiveTime_IndefiniteUntilFirstMessage(t *testing.T) {
	c, _ := newAttachedTestClient(t)
	_, err := c.GetLastMessageReceiveTime()
	assert.Error(t, err)

	require.NoError(t, c.SetMessageCallback(func(body []byte, props map[string]string) dispatch.Disposition {
		return dispatch.DispositionAccepted
	}))
	c.messageDispatcher.DispatchDefault([]byte("hi"), nil)

	_, err = c.GetLastMessageReceiveTime()
	assert.NoError(t, err)
}

func TestClient_SetOption_MessageTimeoutOnlyAffectsFutureEnqueues(t *testing.T) {
	c, _ := newAttachedTestClient(t)
	require.NoError(t, c.SetOption("messageTimeout", 5000))
	assert.EqualValues(t, 5000, c.messageTimeoutSpan)
}

func TestClient_SetOption_UnknownNameForwardsToTransport(t *testing.T) {
	c, tr := newAttachedTestClient(t)
	require.NoError(t, c.SetOption("some_transport_knob", "value"))
	assert.Equal(t, "value", tr.SetOptionCalls["some_transport_knob"])
}

func TestClient_SetOption_BlobUploadWithoutFactoryFails(t *testing.T) {
	c, _ := newAttachedTestClient(t)
	assert.Error(t, c.SetOption("blob_upload_timeout_secs", 60))
}

func TestClient_SetRetryPolicyForwardsToTransport(t *testing.T) {
	c, tr := newAttachedTestClient(t)
	require.NoError(t, c.SetRetryPolicy(RetryExponentialBackoffJitter, 30))
	assert.Equal(t, string(RetryExponentialBackoffJitter), tr.RetryPolicy)
	assert.Equal(t, 30, tr.RetryTimeout)
}
