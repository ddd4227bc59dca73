package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "ok", TruncateBody([]byte("ok")))

	long := strings.Repeat("a", 1500)
	assert.Len(t, TruncateBody([]byte(long)), MaxResponseBody)

	// a two-byte rune straddling the cap is dropped whole
	body := strings.Repeat("a", MaxResponseBody-1) + "é" + "tail"
	got := TruncateBody([]byte(body))
	assert.Equal(t, strings.Repeat("a", MaxResponseBody-1), got)
}
