// Package auth defines the Authorization module contract the client core
// consumes: it produces the credentials a transport needs and
// holds the device's keys, tokens, or HSM handle.
package auth

import "time"

// Authorization is the set of operations the client core requires from the
// authorization module, regardless of which credential mode backs it
// (shared key, pre-signed token, x.509, or HSM).
type Authorization interface {
	// TrustBundle returns the X.509 certificates a transport must accept
	// when establishing TLS to a gateway.
	TrustBundle() ([]byte, error)

	SetSASTokenLifetime(d time.Duration)
	SetSASTokenRefreshTime(d time.Duration)

	Destroy()
}

// Mode distinguishes the four credential construction paths: shared access
// key, shared access signature, x.509, and HSM-backed.
type Mode string

const (
	ModeSharedAccessKey  Mode = "SHARED_ACCESS_KEY"
	ModeSharedAccessSAS  Mode = "SHARED_ACCESS_SIGNATURE"
	ModeX509             Mode = "X509"
	ModeHSM              Mode = "HSM"
)

// Credentials bundles the fields needed to construct an Authorization from
// a parsed identity.
type Credentials struct {
	Mode     Mode
	Key      string
	Token    string
	DeviceID string
	ModuleID string
}

// baseAuthorization is a minimal in-process Authorization suitable for
// shared-key and pre-signed-token devices; HSM-backed and x.509 variants
// are expected to be supplied by an external security provider reached
// through the same interface.
type baseAuthorization struct {
	creds       Credentials
	trustBundle []byte
	sasLifetime  time.Duration
	sasRefresh   time.Duration
}

// New constructs an in-process Authorization from parsed credentials.
func New(creds Credentials, trustBundle []byte) Authorization {
	return &baseAuthorization{creds: creds, trustBundle: trustBundle}
}

func (a *baseAuthorization) TrustBundle() ([]byte, error) {
	return a.trustBundle, nil
}

func (a *baseAuthorization) SetSASTokenLifetime(d time.Duration) { a.sasLifetime = d }
func (a *baseAuthorization) SetSASTokenRefreshTime(d time.Duration) { a.sasRefresh = d }

func (a *baseAuthorization) Destroy() {
	a.creds = Credentials{}
	a.trustBundle = nil
}

// FromHSM constructs an Authorization from an HSM-backed security provider,
// identified only by device id; the HSM itself is an external collaborator
// reached through whatever provider-specific mechanism the host platform
// supplies, opaque to this package.
func FromHSM(deviceID string, hsm HSMProvider) Authorization {
	return &hsmAuthorization{deviceID: deviceID, hsm: hsm}
}

// HSMProvider is the minimal seam into a hardware security module: it can
// produce the trust bundle the transport needs and nothing else. All key
// material stays inside the HSM.
type HSMProvider interface {
	TrustBundle() ([]byte, error)
}

type hsmAuthorization struct {
	deviceID string
	hsm      HSMProvider
	sasLifetime time.Duration
	sasRefresh  time.Duration
}

func (a *hsmAuthorization) TrustBundle() ([]byte, error) { return a.hsm.TrustBundle() }
func (a *hsmAuthorization) SetSASTokenLifetime(d time.Duration) { a.sasLifetime = d }
func (a *hsmAuthorization) SetSASTokenRefreshTime(d time.Duration) { a.sasRefresh = d }
func (a *hsmAuthorization) Destroy() {}
