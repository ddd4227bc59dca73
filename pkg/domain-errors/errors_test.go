package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "coded", err: New(CodeNotFound, "case not found"), want: CodeNotFound},
		{name: "wrapped by fmt", err: fmt.Errorf("load: %w", New(CodeConflict, "status changed")), want: CodeConflict},
		{name: "outermost code wins", err: Wrap(New(CodeNotFound, "inner"), CodeTimeout, "outer"), want: CodeTimeout},
		{name: "uncoded defaults to internal", err: base, want: CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
			assert.True(t, HasCode(tt.err, tt.want) || tt.want == CodeInternal)
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("throttled")
	err := Wrap(cause, CodeInternal, "failed to persist case")

	assert.True(t, Is(err, cause))
	assert.Equal(t, "internal_error: failed to persist case: throttled", err.Error())
	assert.False(t, HasCode(cause, CodeInternal))
}
