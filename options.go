package deviceclient

import (
	"time"

	"github.com/azdevice/deviceclient/internal/typeutil"
	"github.com/azdevice/deviceclient/options"
	"github.com/azdevice/deviceclient/transport"
)

// SetBlobUploadFactory installs the constructor used to lazily create the
// blob-upload collaborator the first time blob_upload_timeout_secs or
// CURLOPT_VERBOSE is set.
// Without one, those options fail.
func (c *Client) SetBlobUploadFactory(factory func() (BlobUpload, error)) {
	c.blobUploadFactory = factory
}

// SetOption dispatches a named option through the options router: known
// names are handled locally or forwarded to a specific collaborator, and
// anything else falls through to the transport (and, best effort, to
// blob-upload).
func (c *Client) SetOption(name string, value any) error {
	return c.optionsRouter.Dispatch(name, value)
}

func (c *Client) wireOptionsRouter() {
	r := c.optionsRouter

	r.Register("messageTimeout", func(value any) error {
		ms, err := typeutil.AsInt(value)
		if err != nil {
			return NewInvalidArgument(err.Error())
		}
		if ms < 0 {
			return NewInvalidArgument("messageTimeout must not be negative")
		}
		c.messageTimeoutSpan = uint64(ms)
		return nil
	})

	r.Register("product_info", func(value any) error {
		tag, err := typeutil.AsString(value)
		if err != nil {
			return NewInvalidArgument(err.Error())
		}
		c.productInfo.SetUserTag(tag)
		return nil
	})

	r.Register("diag_sampling_percentage", func(value any) error {
		pct, err := typeutil.AsInt(value)
		if err != nil {
			return NewInvalidArgument(err.Error())
		}
		if err := c.sampler.SetPercentage(pct); err != nil {
			return NewInvalidArgument(err.Error())
		}
		return nil
	})

	r.Register("blob_upload_timeout_secs", c.forwardToBlobUpload("blob_upload_timeout_secs"))
	r.Register("CURLOPT_VERBOSE", c.forwardToBlobUpload("CURLOPT_VERBOSE"))

	r.Register("sas_token_refresh_time", func(value any) error {
		secs, err := typeutil.AsInt(value)
		if err != nil {
			return NewInvalidArgument(err.Error())
		}
		if c.authz == nil {
			return NewNotProvisioned("no authorization module attached")
		}
		c.authz.SetSASTokenRefreshTime(time.Duration(secs) * time.Second)
		return nil
	})

	r.Register("sas_token_lifetime", func(value any) error {
		secs, err := typeutil.AsInt(value)
		if err != nil {
			return NewInvalidArgument(err.Error())
		}
		if c.authz == nil {
			return NewNotProvisioned("no authorization module attached")
		}
		c.authz.SetSASTokenLifetime(time.Duration(secs) * time.Second)
		return nil
	})

	r.Register("logtrace", func(value any) error {
		on, err := typeutil.AsBool(value)
		if err != nil {
			return NewInvalidArgument(err.Error())
		}
		c.logTrace = on
		if c.transport != nil {
			if result := c.transport.SetOption("logtrace", on); result != transport.ResultOK {
				return NewError("transport: set logtrace failed", nil)
			}
			return nil
		}
		if c.provisioningClient != nil {
			return c.provisioningClient.SetOption("logtrace", on)
		}
		return nil
	})

	r.SetFallback(c.forwardUnknownOptionNamed)
}

func (c *Client) forwardToBlobUpload(name string) options.Handler {
	return func(value any) error {
		if err := c.ensureBlobUpload(); err != nil {
			return err
		}
		return c.blobUpload.SetOption(name, value)
	}
}

func (c *Client) ensureBlobUpload() error {
	if c.blobUpload != nil {
		return nil
	}
	if c.blobUploadFactory == nil {
		return NewNotProvisioned("no blob-upload factory configured")
	}
	bu, err := c.blobUploadFactory()
	if err != nil {
		return NewError("blob-upload: construction failed", err)
	}
	c.blobUpload = bu
	return nil
}

// forwardUnknownOptionNamed is the table's fallback entry: forward to the
// transport, then best-effort to blob-upload if one already exists.
func (c *Client) forwardUnknownOptionNamed(name string, value any) error {
	if c.transport == nil {
		return NewNotProvisioned("no transport attached")
	}
	if result := c.transport.SetOption(name, value); result != transport.ResultOK {
		return NewError("transport: set option failed", nil)
	}
	if c.blobUpload != nil {
		_ = c.blobUpload.SetOption(name, value)
	}
	return nil
}
