package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("new error carries its code", func(t *testing.T) {
		err := New(CodeValidation, "bad phone")
		assert.True(t, HasCode(err, CodeValidation))
		assert.Equal(t, CodeValidation, CodeOf(err))
		assert.Equal(t, "bad phone", Message(err))
	})

	t.Run("wrapped cause stays reachable", func(t *testing.T) {
		cause := errors.New("dial tcp: refused")
		err := Wrap(cause, CodeUnavailable, "otp service unavailable")
		assert.True(t, Is(err, cause))
		assert.True(t, HasCode(err, CodeUnavailable))
		assert.Contains(t, err.Error(), "dial tcp")
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("certify: %w", New(CodeInvalidState, "already complete"))
		assert.True(t, HasCode(err, CodeInvalidState))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.Equal(t, "internal error", Message(err))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}
