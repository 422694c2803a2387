package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the translator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid gemini translator configuration")
)
