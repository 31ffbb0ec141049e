// Package git defines the error reported by converter.GitClient implementations.
package git

import (
	"errors"
	"fmt"
)

// ErrGitOperation indicates the changed-files set could not be computed: the
// path is not inside a repository, the reference does not resolve, or the
// repository could not be read. Implementations wrap their cause with Errorf.
var ErrGitOperation = errors.New("git operation failed")

// Errorf returns a formatted error that wraps ErrGitOperation.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGitOperation}, args...)...)
}
