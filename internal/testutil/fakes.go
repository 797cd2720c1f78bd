// Package testutil provides hand-rolled fakes for the transport, auth,
// and provisioning vtables, in the struct-backed, call-counting style the
// rest of the client core is tested with.
package testutil

import (
	"context"
	"time"

	"github.com/azdevice/deviceclient/provisioning"
	"github.com/azdevice/deviceclient/transport"
)

// FakeAuthorization is a no-op Authorization that records its calls.
type FakeAuthorization struct {
	TrustBundleBytes []byte
	TrustBundleErr   error

	SASLifetime   time.Duration
	SASRefresh    time.Duration
	DestroyCalled bool
}

func (f *FakeAuthorization) TrustBundle() ([]byte, error) { return f.TrustBundleBytes, f.TrustBundleErr }
func (f *FakeAuthorization) SetSASTokenLifetime(d time.Duration)    { f.SASLifetime = d }
func (f *FakeAuthorization) SetSASTokenRefreshTime(d time.Duration) { f.SASRefresh = d }
func (f *FakeAuthorization) Destroy()                               { f.DestroyCalled = true }

// FakeTransport is a programmable Transport: every operation returns
// whatever verdict the test set in advance, and the calls tests inspect are
// recorded (as counters, flags, or argument slices) so a test can assert
// on them.
type FakeTransport struct {
	Callbacks transport.Callbacks

	RegisterDeviceResult   transport.Result
	UnregisterDeviceCalled bool

	SubscribeC2DResult         transport.Result
	SubscribeC2DCalls          int
	SubscribeTwinResult       transport.Result
	SubscribeMethodResult      transport.Result
	SubscribeInputQueueResult  transport.Result
	UnsubscribeCalls           []string

	GetTwinAsyncResult transport.Result
	ProcessTwinItemFn  func(itemID uint32, payload []byte) transport.ItemResult

	SendTelemetryBatchCalls [][]transport.PendingMessage
	SendTelemetryBatchResult transport.Result

	SendDispositionCalls []transport.Disposition
	DeviceMethodResponses []struct {
		Handle  transport.MethodHandle
		Payload []byte
		Status  int
	}

	SetOptionCalls map[string]any
	RetryPolicy    string
	RetryTimeout   int

	DoWorkCalls  int
	DestroyCalled bool
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		RegisterDeviceResult:      transport.ResultOK,
		SubscribeC2DResult:        transport.ResultOK,
		SubscribeTwinResult:       transport.ResultOK,
		SubscribeMethodResult:     transport.ResultOK,
		SubscribeInputQueueResult: transport.ResultOK,
		GetTwinAsyncResult:        transport.ResultOK,
		SendTelemetryBatchResult:  transport.ResultOK,
		SetOptionCalls:            make(map[string]any),
	}
}

func (f *FakeTransport) SetCallbacks(cb transport.Callbacks) { f.Callbacks = cb }

func (f *FakeTransport) RegisterDevice(ctx context.Context) transport.Result {
	return f.RegisterDeviceResult
}
func (f *FakeTransport) UnregisterDevice(ctx context.Context) transport.Result {
	f.UnregisterDeviceCalled = true
	return transport.ResultOK
}

func (f *FakeTransport) SubscribeC2D(ctx context.Context) transport.Result {
	f.SubscribeC2DCalls++
	return f.SubscribeC2DResult
}
func (f *FakeTransport) UnsubscribeC2D(ctx context.Context) transport.Result {
	f.UnsubscribeCalls = append(f.UnsubscribeCalls, "c2d")
	return transport.ResultOK
}
func (f *FakeTransport) SubscribeTwin(ctx context.Context) transport.Result {
	return f.SubscribeTwinResult
}
func (f *FakeTransport) UnsubscribeTwin(ctx context.Context) transport.Result {
	f.UnsubscribeCalls = append(f.UnsubscribeCalls, "twin")
	return transport.ResultOK
}
func (f *FakeTransport) SubscribeMethod(ctx context.Context) transport.Result {
	return f.SubscribeMethodResult
}
func (f *FakeTransport) UnsubscribeMethod(ctx context.Context) transport.Result {
	f.UnsubscribeCalls = append(f.UnsubscribeCalls, "method")
	return transport.ResultOK
}
func (f *FakeTransport) SubscribeInputQueue(ctx context.Context) transport.Result {
	return f.SubscribeInputQueueResult
}
func (f *FakeTransport) UnsubscribeInputQueue(ctx context.Context) transport.Result {
	f.UnsubscribeCalls = append(f.UnsubscribeCalls, "input")
	return transport.ResultOK
}

func (f *FakeTransport) GetTwinAsync(ctx context.Context) transport.Result {
	return f.GetTwinAsyncResult
}

func (f *FakeTransport) ProcessTwinItem(ctx context.Context, itemID uint32, payload []byte) transport.ItemResult {
	if f.ProcessTwinItemFn != nil {
		return f.ProcessTwinItemFn(itemID, payload)
	}
	return transport.ItemOK
}

func (f *FakeTransport) SendTelemetryBatch(ctx context.Context, items []transport.PendingMessage) transport.Result {
	f.SendTelemetryBatchCalls = append(f.SendTelemetryBatchCalls, items)
	return f.SendTelemetryBatchResult
}

func (f *FakeTransport) SendMessageDisposition(ctx context.Context, handle any, disposition transport.Disposition) transport.Result {
	f.SendDispositionCalls = append(f.SendDispositionCalls, disposition)
	return transport.ResultOK
}

func (f *FakeTransport) DeviceMethodResponse(ctx context.Context, handle transport.MethodHandle, payload []byte, status int) transport.Result {
	f.DeviceMethodResponses = append(f.DeviceMethodResponses, struct {
		Handle  transport.MethodHandle
		Payload []byte
		Status  int
	}{handle, payload, status})
	return transport.ResultOK
}

func (f *FakeTransport) SetOption(name string, value any) transport.Result {
	f.SetOptionCalls[name] = value
	return transport.ResultOK
}

func (f *FakeTransport) SetRetryPolicy(policy string, timeoutSeconds int) transport.Result {
	f.RetryPolicy = policy
	f.RetryTimeout = timeoutSeconds
	return transport.ResultOK
}

func (f *FakeTransport) GetSendStatus() (bool, error) { return false, nil }
func (f *FakeTransport) GetHostName() string          { return "fake.azure-devices.net" }
func (f *FakeTransport) GetSupportedPlatformInfo() string {
	return "fake-transport/1.0"
}
func (f *FakeTransport) SetCallbackContext(ctx any) {}

func (f *FakeTransport) DoWork(ctx context.Context) { f.DoWorkCalls++ }

func (f *FakeTransport) Destroy() { f.DestroyCalled = true }

// FakeProvisioningClient is a programmable provisioning.Client: a test
// calls Complete to simulate the completion callback firing.
type FakeProvisioningClient struct {
	RegisterErr  error
	statusCb     func(provisioning.Status)
	completionCb func(provisioning.Result)

	DoWorkCalls   int
	DestroyCalled bool
}

func (f *FakeProvisioningClient) RegisterDevice(ctx context.Context, statusCb func(provisioning.Status), completionCb func(provisioning.Result)) error {
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.statusCb = statusCb
	f.completionCb = completionCb
	return nil
}

func (f *FakeProvisioningClient) SetOption(name string, value any) error { return nil }
func (f *FakeProvisioningClient) SetProvisioningPayload(payload []byte) error { return nil }

func (f *FakeProvisioningClient) DoWork(ctx context.Context) { f.DoWorkCalls++ }
func (f *FakeProvisioningClient) Destroy()                   { f.DestroyCalled = true }

// Complete fires the completion callback recorded by the last
// RegisterDevice call, simulating registration finishing.
func (f *FakeProvisioningClient) Complete(result provisioning.Result) {
	if f.completionCb != nil {
		f.completionCb(result)
	}
}
