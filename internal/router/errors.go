package router

import (
	"errors"
	"fmt"
)

// ErrNoRoute indicates the role or model id has no route table entry.
// This is a configuration error: no fallback is attempted.
var ErrNoRoute = errors.New("no route found")

// ExhaustedError indicates every provider in a chain failed or was skipped.
// The caller may retry the whole call later; the task stays eligible for
// the same stage.
type ExhaustedError struct {
	// Role is the role whose chain was exhausted ("" for direct calls).
	Role string
	// Model is the model the chain was resolved to.
	Model string
	// Attempted is how many providers were considered.
	Attempted int
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("all %d providers exhausted for role %q (model %s)", e.Attempted, e.Role, e.Model)
	}
	return fmt.Sprintf("all providers exhausted for model %s", e.Model)
}

// IsExhausted reports whether err is an ExhaustedError.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
