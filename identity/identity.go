// Package identity parses a device's connection string or environment into
// a normalized Identity record.
package identity

import (
	"fmt"
	"os"
	"strings"
)

// TransportProvider names the wire protocol the caller intends to use. The
// core never dereferences it beyond passing it through to transport
// construction; it exists so callers can distinguish MQTT from AMQP from
// HTTP identities built from the same parser.
type TransportProvider string

const (
	ProviderMQTT TransportProvider = "MQTT"
	ProviderAMQP TransportProvider = "AMQP"
	ProviderHTTP TransportProvider = "HTTP"
)

// Identity is the normalized result of parsing a connection string or the
// edge-module environment variables.
type Identity struct {
	HubName               string
	HubSuffix             string
	DeviceID              string
	ModuleID              string
	GatewayHostName       string
	SharedAccessKey       string
	SharedAccessSignature string
	UseX509               bool
	UseProvisioning       bool
	Provider              TransportProvider
}

// HostName reconstructs the original HostName value (hub + "." + suffix).
func (id *Identity) HostName() string {
	return id.HubName + "." + id.HubSuffix
}

// recognizedKeys is used only to decide whether to log-and-ignore an
// unrecognized key; it is not itself validation.
var recognizedKeys = map[string]bool{
	"HostName":              true,
	"DeviceId":               true,
	"SharedAccessKey":        true,
	"SharedAccessSignature":  true,
	"x509":                   true,
	"UseProvisioning":        true,
	"GatewayHostName":        true,
	"ModuleId":               true,
}

// Logger is a narrow logging seam so Parse can report ignored keys without
// importing the root package (which would create an import cycle).
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Parse splits a free-form "Key=Value;Key=Value" connection string into an
// Identity. logger may be nil, in which case unrecognized-key warnings are
// discarded.
func Parse(connectionString string, provider TransportProvider, logger Logger) (*Identity, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	id := &Identity{Provider: provider}

	for _, pair := range strings.Split(connectionString, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.Index(pair, "=")
		if eq < 0 {
			return nil, fmt.Errorf("identity: malformed key/value pair %q", pair)
		}
		key := pair[:eq]
		value := pair[eq+1:]

		switch key {
		case "HostName":
			dot := strings.Index(value, ".")
			if dot < 0 {
				return nil, fmt.Errorf("identity: HostName %q has no '.' separating hub from suffix", value)
			}
			id.HubName = value[:dot]
			id.HubSuffix = value[dot+1:]
		case "DeviceId":
			id.DeviceID = value
		case "SharedAccessKey":
			id.SharedAccessKey = value
		case "SharedAccessSignature":
			id.SharedAccessSignature = value
		case "x509":
			if value != "true" {
				return nil, fmt.Errorf("identity: x509 must be exactly \"true\", got %q", value)
			}
			id.UseX509 = true
		case "UseProvisioning":
			if value != "true" {
				return nil, fmt.Errorf("identity: UseProvisioning must be exactly \"true\", got %q", value)
			}
			id.UseProvisioning = true
		case "GatewayHostName":
			id.GatewayHostName = value
		case "ModuleId":
			id.ModuleID = value
		default:
			if !recognizedKeys[key] {
				logger.Warn("identity_unrecognized_key", "key", key)
			}
		}
	}

	if err := validate(id); err != nil {
		return nil, err
	}
	return id, nil
}

// validate applies the post-parse consistency rules: required fields and
// the mutually-exclusive credential checks.
func validate(id *Identity) error {
	if id.HubName == "" || id.HubSuffix == "" {
		return fmt.Errorf("identity: HostName is required and must contain a hub name and suffix")
	}
	if id.DeviceID == "" {
		return fmt.Errorf("identity: DeviceId is required")
	}

	hasKey := id.SharedAccessKey != ""
	hasToken := id.SharedAccessSignature != ""
	hasAltMode := id.UseX509 || id.UseProvisioning

	switch {
	case hasAltMode:
		if hasKey || hasToken {
			return fmt.Errorf("identity: x509/provisioning identities must not carry a SharedAccessKey or SharedAccessSignature")
		}
	case hasKey == hasToken:
		// Either both present or both absent: exactly one is required.
		return fmt.Errorf("identity: exactly one of SharedAccessKey or SharedAccessSignature is required when x509/provisioning is not set")
	}
	return nil
}

// Edge-hosted-module environment variable names.
const (
	EnvConnectionString  = "EdgeHubConnectionString"
	EnvCACertificateFile = "EdgeModuleCACertificateFile"
	EnvAuthScheme        = "IOTEDGE_AUTHSCHEME"
	EnvDeviceID          = "IOTEDGE_DEVICEID"
	EnvModuleID          = "IOTEDGE_MODULEID"
	EnvHubHostName       = "IOTEDGE_IOTHUBHOSTNAME"
	EnvGatewayHostName   = "IOTEDGE_GATEWAYHOSTNAME"
)

// EnvResult bundles the Identity produced for an edge module with the trust
// bundle path it must load before any network activity.
type EnvResult struct {
	Identity       *Identity
	TrustBundlePath string
}

// ParseEnvironment builds an Identity for an edge-hosted module from its
// environment variables. If EdgeHubConnectionString is set, it overrides
// every other env-derived field and is parsed with Parse.
func ParseEnvironment(provider TransportProvider, logger Logger) (*EnvResult, error) {
	if cs := os.Getenv(EnvConnectionString); cs != "" {
		id, err := Parse(cs, provider, logger)
		if err != nil {
			return nil, err
		}
		return &EnvResult{Identity: id, TrustBundlePath: os.Getenv(EnvCACertificateFile)}, nil
	}

	scheme := os.Getenv(EnvAuthScheme)
	if scheme != "sasToken" {
		return nil, fmt.Errorf("identity: %s must be \"sasToken\", got %q", EnvAuthScheme, scheme)
	}

	deviceID := os.Getenv(EnvDeviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("identity: %s is required", EnvDeviceID)
	}

	hostName := os.Getenv(EnvHubHostName)
	dot := strings.Index(hostName, ".")
	if dot < 0 || dot == len(hostName)-1 {
		return nil, fmt.Errorf("identity: %s must contain '.' followed by non-empty content, got %q", EnvHubHostName, hostName)
	}

	trustBundlePath := os.Getenv(EnvCACertificateFile)
	if trustBundlePath == "" {
		return nil, fmt.Errorf("identity: %s is required for edge-hosted modules", EnvCACertificateFile)
	}

	id := &Identity{
		HubName:         hostName[:dot],
		HubSuffix:       hostName[dot+1:],
		DeviceID:        deviceID,
		ModuleID:        os.Getenv(EnvModuleID),
		GatewayHostName: os.Getenv(EnvGatewayHostName),
		UseProvisioning: false,
		Provider:        provider,
	}

	return &EnvResult{Identity: id, TrustBundlePath: trustBundlePath}, nil
}
