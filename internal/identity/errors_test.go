package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindNotLoggedIn, StatusCode: 404, Message: "no user"})

	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, KindNotLoggedIn, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := unavailableError(cause)

	assert.Equal(t, "[503] request failed: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[502] HTTP error occurred: 502", upstreamError(502, nil).Error())
}
