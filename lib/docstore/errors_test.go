package docstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	err := newError(ErrNotFound, "model key %q does not exist", "users_1")

	assert.Equal(t, 404, err.StatusCode)
	assert.Equal(t, `model key "users_1" does not exist (status 404)`, err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrNotFound)

	// same status code, different kind
	assert.False(t, errors.Is(newError(ErrMissingID, "x"), ErrInvalidPairs))
	assert.False(t, errors.Is(errors.New("model key does not exist"), ErrNotFound))
}
