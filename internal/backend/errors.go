package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the chosen backend cannot serve requests right
	// now. The orchestrator falls back to the next capable backend.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrModelNotAvailable means the requested model could not be resolved
	// against the installed variants and could not be pulled.
	ErrModelNotAvailable = errors.New("model not available")

	// ErrUnknownBackend means the identifier is not registered at all.
	ErrUnknownBackend = errors.New("unknown backend")
)

func unavailable(id string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", id, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", id, ErrUnavailable, cause)
}
