package services

import "context"

// Call is a single completion request handed to a Provider.
type Call struct {
	APIKey string
	Model  string
	Prompt string
}

// Reply is the raw upstream answer. Body is relayed untouched in passthrough mode.
type Reply struct {
	StatusCode int
	Body       []byte
	Attempts   int
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Reply) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Provider forwards one prompt to an LLM backend.
//
// Complete returns an error only when no usable HTTP exchange happened
// (transport failure, timeout, cancellation). Non-2xx answers come back
// as a Reply so the caller can decide whether to relay them.
type Provider interface {
	Name() string
	Complete(ctx context.Context, call Call) (*Reply, error)
	ExtractText(body []byte) (string, error)
}
