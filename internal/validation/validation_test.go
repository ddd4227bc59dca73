package validation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)

func ddmmyyyy(t time.Time) string {
	return t.Format(DateLayout)
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		input   string
		valid   bool
		wantErr string
	}{
		{input: "123456789", valid: true},
		{input: "000000000", valid: true},
		{input: "12345678", wantErr: "document number must be exactly 9 digits"},
		{input: "1234567890", wantErr: "document number must be exactly 9 digits"},
		{input: "12345678O", wantErr: "document number must be numeric"},
		{input: "1234-5678", wantErr: "document number must be numeric"},
		{input: "12 345 678", wantErr: "document number must be numeric"},
		{input: "ABC", wantErr: "document number must be numeric"},
		{input: "", wantErr: "document number is required"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			res := ValidateIdentifier(tt.input)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.wantErr, res.Error)
		})
	}
}

func TestValidateIdentifierAllNineDigitStrings(t *testing.T) {
	for _, v := range []string{"100000000", "999999999", "314159265", "271828182"} {
		assert.True(t, ValidateIdentifier(v).Valid, v)
	}
}

func TestValidateExpiry(t *testing.T) {
	t.Run("ten year window accepted", func(t *testing.T) {
		issue := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
		res := ValidateExpiry(ddmmyyyy(issue), ddmmyyyy(issue.AddDate(10, 0, 0)), today)
		assert.True(t, res.Valid, res.Errors)
		assert.Empty(t, res.Warnings)
		assert.False(t, res.Expired)
	})

	t.Run("one day tolerance either side", func(t *testing.T) {
		issue := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
		for _, delta := range []int{-1, 1} {
			res := ValidateExpiry(ddmmyyyy(issue), ddmmyyyy(issue.AddDate(10, 0, delta)), today)
			assert.True(t, res.Valid, "delta %d: %v", delta, res.Errors)
		}
		res := ValidateExpiry(ddmmyyyy(issue), ddmmyyyy(issue.AddDate(10, 0, 2)), today)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "expiry date must be 10 years after issue date")
	})

	t.Run("leap day issue", func(t *testing.T) {
		res := ValidateExpiry("29/02/2020", "28/02/2030", today)
		assert.True(t, res.Valid, res.Errors)
	})

	t.Run("unparseable dates", func(t *testing.T) {
		assert.False(t, ValidateExpiry("2020-03-01", "01/03/2030", today).Valid)
		assert.False(t, ValidateExpiry("01/03/2020", "31/02/2030", today).Valid)
	})

	t.Run("issue in the future", func(t *testing.T) {
		issue := today.AddDate(0, 0, 1)
		res := ValidateExpiry(ddmmyyyy(issue), ddmmyyyy(issue.AddDate(10, 0, 0)), today)
		assert.Contains(t, res.Errors, "issue date is in the future")
	})

	t.Run("expiry before issue", func(t *testing.T) {
		res := ValidateExpiry("01/03/2020", "01/03/2019", today)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "expiry date is before issue date")
	})

	t.Run("expired reports days", func(t *testing.T) {
		expiry := dateOnly(today).AddDate(0, 0, -12)
		issue := expiry.AddDate(-10, 0, 0)
		res := ValidateExpiry(ddmmyyyy(issue), ddmmyyyy(expiry), today)
		require.False(t, res.Valid)
		assert.True(t, res.Expired)
		assert.Equal(t, 12, res.ExpiredDays)
		assert.Contains(t, res.Errors, "document expired 12 days ago")
	})

	t.Run("expiring today is valid with a warning", func(t *testing.T) {
		expiry := dateOnly(today)
		res := ValidateExpiry(ddmmyyyy(expiry.AddDate(-10, 0, 0)), ddmmyyyy(expiry), today)
		assert.True(t, res.Valid)
		assert.Equal(t, 0, res.DaysRemaining)
		assert.Len(t, res.Warnings, 1)
	})
}

func TestExpiryWarningBoundary(t *testing.T) {
	for _, tc := range []struct {
		days        int
		wantWarning bool
	}{
		{days: 29, wantWarning: true},
		{days: 30, wantWarning: true},
		{days: 31, wantWarning: false},
	} {
		t.Run(fmt.Sprintf("%d days", tc.days), func(t *testing.T) {
			expiry := dateOnly(today).AddDate(0, 0, tc.days)
			issue := expiry.AddDate(-10, 0, 0)
			res := ValidateExpiry(ddmmyyyy(issue), ddmmyyyy(expiry), today)

			assert.True(t, res.Valid, "warnings never invalidate")
			assert.Equal(t, tc.days, res.DaysRemaining)
			if tc.wantWarning {
				assert.Equal(t, []string{fmt.Sprintf("document expires in %d days", tc.days)}, res.Warnings)
			} else {
				assert.Empty(t, res.Warnings)
			}
		})
	}
}

func TestValidateCombined(t *testing.T) {
	valid := map[string]string{
		FieldIDNumber:     "123456789",
		FieldDateOfIssue:  "01/03/2020",
		FieldDateOfExpiry: "01/03/2030",
	}

	t.Run("all checks pass", func(t *testing.T) {
		res := Validate(valid, today)
		assert.True(t, res.Valid)
		assert.Empty(t, res.Errors)
	})

	t.Run("errors from both checks aggregate", func(t *testing.T) {
		fields := map[string]string{
			FieldIDNumber:     "12345",
			FieldDateOfIssue:  "01/03/2010",
			FieldDateOfExpiry: "01/03/2020",
		}
		res := Validate(fields, today)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{
			"document number must be exactly 9 digits",
			fmt.Sprintf("document expired %d days ago", res.ExpiredDays),
		}, res.Errors)
	})

	t.Run("missing dates on a national id", func(t *testing.T) {
		res := Validate(map[string]string{FieldIDNumber: "123456789"}, today)
		assert.False(t, res.Valid)
		assert.Contains(t, res.Errors, "expiry date is required")
	})

	t.Run("passport skips the numeric and window rules", func(t *testing.T) {
		res := NewValidator().Validate("passport", map[string]string{
			FieldPassportNo:   "BN0123456",
			FieldDateOfExpiry: "01/03/2031",
		}, today)
		assert.True(t, res.Valid, res.Errors)
	})

	t.Run("expired passport is invalid", func(t *testing.T) {
		res := NewValidator().Validate("passport", map[string]string{
			FieldPassportNo:   "BN0123456",
			FieldDateOfExpiry: "01/03/2021",
		}, today)
		assert.False(t, res.Valid)
		assert.True(t, res.Expired)
	})
}
