package validation

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the DD/MM/YYYY layout printed on documents.
	DateLayout = "02/01/2006"
	// ExpiryWarningDays is the inclusive horizon for the "expires soon" warning.
	ExpiryWarningDays = 30
	// OmangValidityYears is the validity period of a national identity card.
	OmangValidityYears = 10

	windowTolerance = 24 * time.Hour
)

// ExpiryResult is the verdict on a document's issue/expiry dates.
type ExpiryResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
	// Expired is set when the expiry date is before today.
	Expired     bool
	ExpiredDays int
	// DaysRemaining is set when the document has not expired.
	DaysRemaining int
}

// ValidateExpiry applies the national identity card rules: issue not in the
// future, expiry not before issue, expiry within a day of issue + 10 years,
// and expiry not before today. A document expiring within 30 days (inclusive)
// carries a warning but stays valid.
func ValidateExpiry(issue, expiry string, now time.Time) ExpiryResult {
	return validateExpiry(issue, expiry, now, OmangValidityYears)
}

// validateExpiry skips the validity window check when validityYears is 0 and
// the issue checks when issue is empty.
func validateExpiry(issue, expiry string, now time.Time, validityYears int) ExpiryResult {
	var res ExpiryResult
	expiryDate, err := time.Parse(DateLayout, expiry)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid expiry date %q: expected DD/MM/YYYY", expiry))
		return res
	}
	today := dateOnly(now)

	if issue != "" || validityYears > 0 {
		issueDate, err := time.Parse(DateLayout, issue)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("invalid issue date %q: expected DD/MM/YYYY", issue))
			return res
		}
		if issueDate.After(today) {
			res.Errors = append(res.Errors, "issue date is in the future")
		}
		if expiryDate.Before(issueDate) {
			res.Errors = append(res.Errors, "expiry date is before issue date")
		} else if validityYears > 0 {
			expected := issueDate.AddDate(validityYears, 0, 0)
			if diff := expiryDate.Sub(expected).Abs(); diff > windowTolerance {
				res.Errors = append(res.Errors, fmt.Sprintf("expiry date must be %d years after issue date", validityYears))
			}
		}
	}

	days := daysBetween(today, expiryDate)
	if days < 0 {
		res.Expired = true
		res.ExpiredDays = -days
		res.Errors = append(res.Errors, fmt.Sprintf("document expired %d days ago", -days))
	} else {
		res.DaysRemaining = days
		if days <= ExpiryWarningDays {
			res.Warnings = append(res.Warnings, fmt.Sprintf("document expires in %d days", days))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b (both UTC midnights).
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
