package relay

import "context"

// Provider is one remote image-to-3D backend. Adapters translate between the
// vendor's REST API and ProviderTask reports; the relay owns the poll loop.
type Provider interface {
	Name() string
	// CheckCredentials fails with a configuration error when the adapter cannot
	// authenticate. It never makes a network call.
	CheckCredentials() error
	StatusTable() *StatusTable
	// Submit uploads the image and creates a generation job, returning the
	// provider task id.
	Submit(ctx context.Context, image Image, opts SubmitOptions) (string, error)
	// Poll reads the task's current status once.
	Poll(ctx context.Context, taskID string) (*ProviderTask, error)
}

// CallbackParser is implemented by providers that can push task updates to a
// webhook instead of being polled.
type CallbackParser interface {
	ParseCallback(body []byte) (*ProviderTask, error)
}
