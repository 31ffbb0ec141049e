// Package render defines the errors a diagram renderer reports.
//
// Every renderer error wraps ErrRenderFailed, so callers that only care whether
// a render worked can test for that, while the more specific variants allow the
// cause (timeout, exit status, missing executable) to be told apart.
package render

import (
	"errors"
	"fmt"
)

var (
	// ErrRenderFailed is the base error for any unsuccessful render.
	ErrRenderFailed = errors.New("render failed")

	// ErrRenderTimeout indicates the converter did not finish within its time limit
	// and was killed.
	ErrRenderTimeout = errors.New("render timed out")

	// ErrRenderNonZeroExit indicates the converter ran but exited with a non-zero status.
	ErrRenderNonZeroExit = errors.New("converter exited non-zero")

	// ErrRenderToolNotFound indicates the converter executable could not be resolved.
	ErrRenderToolNotFound = errors.New("converter executable not found")
)

// Errorf returns a formatted error wrapping ErrRenderFailed.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrRenderFailed}, args...)...)
}

// Wrap attaches a specific cause to ErrRenderFailed, keeping both visible to errors.Is.
func Wrap(specific error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrRenderFailed, fmt.Sprintf(format, args...), specific)
}
