package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := InvalidArgument("clock.advise_periodic", "interval must be positive")
	assert.Equal(t, "INVALID_ARGUMENT: clock.advise_periodic: interval must be positive", err.Error())

	cause := errors.New("boom")
	wrapped := PartialFailure("graph.stop", cause)
	assert.Equal(t, "PARTIAL_FAILURE: graph.stop: one or more stages failed: boom", wrapped.Error())
}

func TestError_IsHelpers_SeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", Timeout("queue.pop"))

	assert.True(t, IsTimeout(err))
	assert.False(t, IsInvalidArgument(err))
	assert.Equal(t, CodeTimeout, CodeOf(err))
}

func TestError_SentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Transitioning("stage.get_state"))

	assert.True(t, errors.Is(err, ErrTransitioning))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestPartialFailure_KeepsFirstCause(t *testing.T) {
	stageErr := errors.New("renderer refused to stop")
	err := PartialFailure("graph.stop", stageErr)

	assert.True(t, IsPartialFailure(err))
	assert.True(t, errors.Is(err, stageErr), "cause must remain reachable")
	assert.True(t, errors.Is(err, ErrPartialFailure))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}
