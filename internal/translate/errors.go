package translate

import "errors"

// Common errors shared between the engine and Processor implementations.
var (
	// ErrEmptyResult is returned when the service produced no usable text.
	// The engine treats this as a soft failure and retries with backoff.
	ErrEmptyResult = errors.New("empty result from text-generation service")

	// ErrPermanent marks a failure attributable to the unit itself
	// (e.g. invalid input). The engine never retries a permanent
	// failure; the unit is recorded as failed immediately.
	ErrPermanent = errors.New("permanent processing failure")

	// ErrExhaustedRetries is recorded when a unit ran out of retry
	// attempts. The job itself continues; partial success is a valid
	// outcome.
	ErrExhaustedRetries = errors.New("exceeded maximum retry attempts")
)
