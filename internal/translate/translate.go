// Package translate defines the contract between the dispatch engine and
// the remote text-generation service. The engine depends only on the
// Processor interface; concrete clients live under internal/platform.
package translate

import "context"

// Processor submits one unit of text to the remote service and returns
// the generated result. Implementations must not retry or sleep on
// their own account: all resilience policy (backoff, rate-limit
// handling, requeueing) belongs to the dispatch engine.
//
// A successful call returns a non-empty string. An empty string with a
// nil error is treated by the engine as a soft failure and retried.
type Processor interface {
	Process(ctx context.Context, content string) (string, error)
}

// ProcessorFunc adapts an ordinary function to the Processor interface.
type ProcessorFunc func(ctx context.Context, content string) (string, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, content string) (string, error) {
	return f(ctx, content)
}
