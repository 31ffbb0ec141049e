package git

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorf(t *testing.T) {
	cause := errors.New("reference not found")
	err := Errorf("resolve %q: %w", "v1.0", cause)

	assert.ErrorIs(t, err, ErrGitOperation)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `git operation failed: resolve "v1.0": reference not found`, err.Error())
}
