package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSample = New(KindSlotUnavailable, "slot_unavailable", "slot is no longer available")

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("create booking: %w", errSample)

	assert.Equal(t, KindSlotUnavailable, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestIs_MatchesCopies(t *testing.T) {
	specific := errSample.With("09:00 is full")
	wrapped := fmt.Errorf("outer: %w", specific)

	assert.ErrorIs(t, wrapped, errSample)
	assert.Equal(t, "09:00 is full", specific.Error())
}

func TestWrap_KeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("pg: connection reset")
	err := errSample.Wrap(cause)

	ae, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "slot is no longer available", ae.Message)
	assert.ErrorIs(t, err, cause)
}
