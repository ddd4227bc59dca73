package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil stays nil", input: nil, want: nil},
		{name: "drops blanks", input: []string{"", "  "}, want: []string{}},
		{
			name:  "case-insensitive duplicates keep first position",
			input: []string{" Verification.Approved", "verification.rejected", "VERIFICATION.APPROVED "},
			want:  []string{"verification.approved", "verification.rejected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrimLower(tt.input))
		})
	}
}
