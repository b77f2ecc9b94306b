// Package providers adapts text-generation backends into a single
// completion service that never fails loudly.
package providers

import (
	"context"
	"time"
)

// Backend generates a completion for a single user prompt.
type Backend interface {
	// Generate returns the completion text for prompt using model, which is
	// already resolved to the backend's upstream name.
	Generate(ctx context.Context, model, prompt string) (string, error)

	// Name returns the backend identifier (e.g., "openai").
	Name() string
}

// Completer is the contract the generation engine depends on. An empty
// string means the call failed after all retries.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) string
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, model, prompt string) string

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, model, prompt string) string {
	return f(ctx, model, prompt)
}

// CallResult is the tagged outcome of one Complete call.
type CallResult struct {
	Text     string        `json:"text"`
	Model    string        `json:"model"`
	Upstream string        `json:"upstream"`
	Backend  string        `json:"backend"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
	Err      error         `json:"-"`
}

// OK reports whether the call produced text.
func (r CallResult) OK() bool {
	return r.Err == nil && r.Text != ""
}
