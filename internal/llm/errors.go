package llm

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when the local model cannot be loaded.
// The Selector absorbs it by falling back to the remote backend.
var ErrModelUnavailable = errors.New("local model unavailable")

// GenerationError is a generation failure that could not be recovered by fallback
type GenerationError struct {
	Backend string // "remote" or "local"
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s backend): %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationError reports whether err carries a GenerationError
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
