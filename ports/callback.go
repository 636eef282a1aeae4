package ports

import (
	"context"

	"github.com/layer-3/esrlink/core"
)

// CallbackService hands out callbacks with globally unique urls
type CallbackService interface {
	Create() Callback
}

// Callback is a url that eventually receives one payload
type Callback interface {
	URL() string

	// Wait blocks until the payload arrives, the callback is canceled or ctx ends.
	// A payload carrying "rejected" is returned as is.
	Wait(ctx context.Context) (core.CallbackPayload, error)

	// Cancel stops waiting, no payload is accepted afterwards
	Cancel()
}
