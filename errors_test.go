package busmsg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError("SEND", ErrCodeNoSpace, "")
	assert.Equal(t, "busmsg: not enough buffer space (op=SEND)", err.Error())

	err = NewError("", ErrCodeBadFrame, "truncated header")
	assert.Equal(t, "busmsg: truncated header", err.Error())
}

func TestErrorIsByCode(t *testing.T) {
	err := NewError("SEND", ErrCodeNoSpace, "")
	assert.ErrorIs(t, err, NewError("OTHER", ErrCodeNoSpace, "different message"))
	assert.NotErrorIs(t, err, NewError("SEND", ErrCodeNoTask, ""))
}

func TestWrapErrorUnwraps(t *testing.T) {
	inner := ErrNoSpace
	err := WrapError("SEND", ErrCodeNoSpace, inner)

	assert.ErrorIs(t, err, ErrNoSpace)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "SEND", e.Op)
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("tick failed: %w", ErrNoMessage)
	assert.ErrorIs(t, err, ErrNoMessage)
	assert.NotErrorIs(t, err, ErrNoTask)
}
