package platform

import "errors"

// Sentinel errors for plugin lifecycle operations.
var (
	// ErrNotAttached is returned when operating on a plugin that is not
	// attached to an engine.
	ErrNotAttached = errors.New("platform: plugin not attached")

	// ErrAlreadyAttached is returned when a plugin is added to an engine twice.
	ErrAlreadyAttached = errors.New("platform: plugin already attached")
)
