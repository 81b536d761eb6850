package app

import "errors"

// Error taxonomy of the notification engine. None of these is fatal to the host process.
var (
	// ErrConfiguration marks a missing or invalid preference; recovered with defaults.
	ErrConfiguration = errors.New("invalid notification configuration")
	// ErrTransientStorage marks storage that stayed unreachable after retries; the pass aborts.
	ErrTransientStorage = errors.New("storage temporarily unavailable")
	// ErrTransport marks a per-recipient delivery failure; the batch continues.
	ErrTransport = errors.New("notification transport failed")
	// ErrValidation marks a malformed URL or timezone; recovered by skipping or falling back.
	ErrValidation = errors.New("validation failed")
)
