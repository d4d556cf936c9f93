package engine

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine. Oracle failures never surface; they degrade to heuristics.
var (
	ErrNotFound     = errors.New("not found")
	ErrClosed       = errors.New("session closed")
	ErrInvalidInput = errors.New("invalid input")
)

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func closed(id string) error {
	return fmt.Errorf("%w: session %s is closed", ErrClosed, id)
}
