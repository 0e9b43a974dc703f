// Package generate produces grounded answers from assembled prompts.
// Engines wrap LLM backends behind a common blocking and streaming
// interface.
package generate

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidModel indicates the model is not supported by the engine.
var ErrInvalidModel = errors.New("generate: invalid model")

// ModelError provides details about a model validation failure.
type ModelError struct {
	Model  string
	Engine string
	Reason string
	Err    error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("generate: model %q rejected by %s: %s", e.Model, e.Engine, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Request is a single generation call.
type Request struct {
	// Prompt is the fully assembled prompt text.
	Prompt string
	// Model selects the backend model.
	Model string
	// Temperature controls sampling randomness. Zero means the
	// backend default.
	Temperature float64
	// MaxTokens caps the response length. Zero means the backend
	// default.
	MaxTokens int
}

// Event is one increment of a streaming generation. Exactly one of
// Text or Err is set; the channel closes after the final event.
type Event struct {
	Text string
	Err  error
}

// Engine generates answers from prompts.
type Engine interface {
	// Generate produces the complete answer (blocking).
	Generate(ctx context.Context, req *Request) (string, error)

	// Stream produces the answer incrementally. The returned channel
	// is closed when generation completes or fails.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)

	// Name returns the engine name for logging.
	Name() string

	// SupportsModel returns true if the engine supports the model.
	SupportsModel(model string) bool
}

// streamBuffer is the event channel capacity; small enough to apply
// backpressure, large enough to avoid stalling producers.
const streamBuffer = 10
