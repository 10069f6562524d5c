package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, InvalidArgument, KindOf(New(InvalidArgument, "bad wager")))
	assert.Equal(t, Conflict, KindOf(Newf(Conflict, "wait %d seconds", 15)))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := New(NotFound, "no such subscription")
	wrapped := fmt.Errorf("unfollow: %w", err)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, NotFound))
	assert.False(t, IsKind(wrapped, Conflict))
}

func TestIsKindNilError(t *testing.T) {
	assert.False(t, IsKind(nil, Internal))
}

func TestWrapKeepsChain(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(Upstream, "twitch unreachable", cause)

	require.Error(t, err)
	assert.True(t, IsKind(err, Upstream))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "twitch unreachable")
	assert.Contains(t, err.Error(), "refused")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(Upstream, "ignored", nil))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "You can't pay yourself.", Message(New(InvalidArgument, "You can't pay yourself.")))

	// Wrapped cause stays out of the user-visible message.
	err := Wrap(Upstream, "The feed is unreachable right now.", errors.New("http 503"))
	assert.Equal(t, "The feed is unreachable right now.", Message(err))

	assert.Equal(t, "Something went wrong. Please try again later.", Message(errors.New("pq: connection reset")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "insufficient_funds", InsufficientFunds.String())
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "forbidden", Forbidden.String())
}
