// Package diagnostics composes the product-info (user-agent) string,
// implements the diagnostic-sampling counter, and exposes Prometheus
// metrics for the client core. Tracing setup lives in
// transport/grpctransport, not here.
package diagnostics

import "fmt"

// PlatformInfo is the process-wide platform info external collaborator.
type PlatformInfo interface {
	// Describe returns a short platform identifier, e.g. "linux/amd64 go1.24".
	Describe() string
}

// SDKName/SDKVersion identify this module in the composed UA string.
const (
	SDKName    = "deviceclient"
	SDKVersion = "1.0.0"
)

// ProductInfo composes a UA-style string from a user tag, the SDK identity,
// and platform info.
type ProductInfo struct {
	userTag  string
	platform PlatformInfo
}

// NewProductInfo constructs a composer with no user tag set.
func NewProductInfo(platform PlatformInfo) *ProductInfo {
	return &ProductInfo{platform: platform}
}

// SetUserTag sets the user-supplied tag prepended to the composed string.
func (p *ProductInfo) SetUserTag(tag string) {
	p.userTag = tag
}

// String renders the composed product-info string.
func (p *ProductInfo) String() string {
	platform := ""
	if p.platform != nil {
		platform = p.platform.Describe()
	}
	if p.userTag == "" {
		return fmt.Sprintf("%s/%s (%s)", SDKName, SDKVersion, platform)
	}
	return fmt.Sprintf("%s %s/%s (%s)", p.userTag, SDKName, SDKVersion, platform)
}
