package deviceclient

// RegistrationState is the client's position in the provisioning/attachment
// state machine.
type RegistrationState string

const (
	StateIdle        RegistrationState = "IDLE"
	StatePreRegister RegistrationState = "PRE_REGISTER"
	StateRegistering RegistrationState = "REGISTERING"
	StateRegistered  RegistrationState = "REGISTERED"
	StateAttached    RegistrationState = "ATTACHED"
	StateError       RegistrationState = "ERROR"
)

// validTransitions is a table lookup rather than a chain of switch
// statements, the same shape a circuit breaker's state-transition table
// uses for its own closed/open/half-open machine.
var validTransitions = map[RegistrationState]map[RegistrationState]bool{
	StateIdle: {
		StateRegistering: true,
		StateAttached:    true, // create-from-identity path starts ATTACHED
		StateError:       true,
	},
	StatePreRegister: {
		StateRegistering: true,
		StateError:       true,
	},
	StateRegistering: {
		StateRegistered: true,
		StateError:      true,
	},
	StateRegistered: {
		StateAttached: true,
		StateError:    true,
	},
	StateAttached: {
		StateError: true,
	},
	StateError: {}, // sticky terminal state
}

// IsValidTransition reports whether moving from `from` to `to` is allowed.
func IsValidTransition(from, to RegistrationState) bool {
	if targets, ok := validTransitions[from]; ok {
		return targets[to]
	}
	return false
}

// ConnectionStatus is the coarse connectivity state forwarded to the user's
// connection-status callback.
type ConnectionStatus string

const (
	ConnectionAuthenticated   ConnectionStatus = "CONNECTION_AUTHENTICATED"
	ConnectionUnauthenticated ConnectionStatus = "CONNECTION_UNAUTHENTICATED"
	ConnectionDisconnected    ConnectionStatus = "CONNECTION_DISCONNECTED"
)

// ConnectionStatusReason carries the full reason taxonomy even though the
// client itself only ever emits ProvisioningFailed; the other reasons
// arrive from the transport.
type ConnectionStatusReason string

const (
	ReasonExpiredSASToken      ConnectionStatusReason = "EXPIRED_SAS_TOKEN"
	ReasonDeviceDisabled       ConnectionStatusReason = "DEVICE_DISABLED"
	ReasonBadCredential        ConnectionStatusReason = "BAD_CREDENTIAL"
	ReasonRetryExpired         ConnectionStatusReason = "RETRY_EXPIRED"
	ReasonNoNetwork            ConnectionStatusReason = "NO_NETWORK"
	ReasonCommunicationError  ConnectionStatusReason = "COMMUNICATION_ERROR"
	ReasonNoPingResponse       ConnectionStatusReason = "NO_PING_RESPONSE"
	ReasonProvisioningFailed   ConnectionStatusReason = "PROVISIONING_FAILED"
	ReasonOK                  ConnectionStatusReason = "CONNECTION_OK"
)

// RetryPolicy selects the reconnect-backoff family the transport should use.
// The arithmetic itself lives in the transport; the client only remembers
// the selection and its timeout and forwards both.
type RetryPolicy string

const (
	RetryNone                     RetryPolicy = "RETRY_NONE"
	RetryImmediate                RetryPolicy = "RETRY_IMMEDIATE"
	RetryInterval                 RetryPolicy = "RETRY_INTERVAL"
	RetryExponentialBackoff       RetryPolicy = "RETRY_EXPONENTIAL_BACKOFF"
	RetryExponentialBackoffJitter RetryPolicy = "RETRY_EXPONENTIAL_BACKOFF_WITH_JITTER"
	RetryRandom                   RetryPolicy = "RETRY_RANDOM"
	RetryRandomJitter              RetryPolicy = "RETRY_RANDOM_JITTER"
)

// SendStatus answers GetSendStatus: whether the outbound queue has work.
type SendStatus string

const (
	SendStatusIdle SendStatus = "IDLE"
	SendStatusBusy SendStatus = "BUSY"
)
