// Package provisioning implements the zero-touch enrollment sub-state
// machine: a conceptually separate small state machine whose terminal
// transitions feed the owning client's own state machine. Its driver pump
// and completion callback are its only interface to that client.
package provisioning

import "context"

// Status is the provisioning attempt's own status, reported via the status
// callback as the enrollment proceeds.
type Status string

const (
	StatusConnected      Status = "CONNECTED"
	StatusAuthenticated  Status = "AUTHENTICATED"
	StatusAssigning      Status = "ASSIGNING"
	StatusAssigned       Status = "ASSIGNED"
)

// Result is delivered exactly once, by the completion callback, when
// registration finishes (successfully or not).
type Result struct {
	Success  bool
	HubURI   string
	DeviceID string
	Err      error
}

// Client is the minimal provisioning-device-client contract the core
// depends on: constructed from a URI, id-scope and transport
// factory; driven by DoWork; torn down by Destroy.
type Client interface {
	// RegisterDevice starts enrollment. statusCb is invoked zero or more
	// times as Status transitions happen; completionCb is invoked exactly
	// once with the terminal Result.
	RegisterDevice(ctx context.Context, statusCb func(Status), completionCb func(Result)) error
	SetOption(name string, value any) error
	SetProvisioningPayload(payload []byte) error
	// DoWork pumps one iteration of the provisioning protocol; called once
	// per Client.DoWork tick while registration is in flight.
	DoWork(ctx context.Context)
	Destroy()
}

// TransportFactory constructs the provisioning-specific transport (e.g. a
// TPM or symmetric-key provisioning channel) the way the owning client's
// transport factory constructs a hub transport.
type TransportFactory func() (any, error)

// Config bundles what is needed to construct a provisioning Client.
type Config struct {
	GlobalDeviceEndpoint string
	IDScope              string
	RegistrationID       string
	Transport            TransportFactory
}
