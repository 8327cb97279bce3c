package verify

import (
	"errors"

	"github.com/ppiankov/verity/internal/llm"
)

var (
	// ErrInputInvalid is returned for an empty or whitespace-only statement
	ErrInputInvalid = errors.New("statement is empty")

	// ErrEmptyDecomposition is returned when no questions were produced and
	// the empty-decomposition policy is "error"
	ErrEmptyDecomposition = errors.New("decomposition produced no questions")
)

// IsGenerationFailure reports whether err is an unrecovered backend failure
func IsGenerationFailure(err error) bool {
	return llm.IsGenerationError(err)
}
