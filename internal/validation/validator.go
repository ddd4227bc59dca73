// Package validation applies jurisdiction rules to extracted document fields.
package validation

import (
	"time"
)

// Field names read by the validator.
const (
	FieldIDNumber     = "id_number"
	FieldPassportNo   = "passport_number"
	FieldLicenceNo    = "licence_number"
	FieldDateOfIssue  = "date_of_issue"
	FieldDateOfExpiry = "date_of_expiry"
)

// Rules are the checks that apply to one document type.
type Rules struct {
	// IdentifierField names the document number field.
	IdentifierField string
	// IdentifierDigits requires a pure numeric identifier of this length; 0 skips the format check.
	IdentifierDigits int
	// ValidityYears requires expiry to sit this many years after issue; 0 skips the window check.
	ValidityYears int
	// RequireDates fails validation when issue or expiry is absent.
	RequireDates bool
}

// OmangRules are the Botswana national identity card rules.
var OmangRules = Rules{
	IdentifierField:  FieldIDNumber,
	IdentifierDigits: OmangDigits,
	ValidityYears:    OmangValidityYears,
	RequireDates:     true,
}

var defaultRules = map[string]Rules{
	"national_id":     OmangRules,
	"passport":        {IdentifierField: FieldPassportNo},
	"drivers_licence": {IdentifierField: FieldLicenceNo},
	"other_id":        {IdentifierField: FieldIDNumber},
}

// Result is the combined verdict. Warnings never affect Valid.
type Result struct {
	Valid         bool
	Errors        []string
	Warnings      []string
	Expired       bool
	ExpiredDays   int
	DaysRemaining int
}

// Validator selects rules by document type.
type Validator struct {
	rules map[string]Rules
}

// NewValidator builds a validator with the built-in rules.
func NewValidator() *Validator {
	return &Validator{rules: defaultRules}
}

// Validate checks fields against the national identity card rules.
func Validate(fields map[string]string, now time.Time) Result {
	return apply(OmangRules, fields, now)
}

// Validate checks fields against the rules for documentType; unknown types
// get the other_id rules.
func (v *Validator) Validate(documentType string, fields map[string]string, now time.Time) Result {
	rules, ok := v.rules[documentType]
	if !ok {
		rules = v.rules["other_id"]
	}
	return apply(rules, fields, now)
}

func apply(rules Rules, fields map[string]string, now time.Time) Result {
	var res Result

	if rules.IdentifierDigits > 0 {
		if id := validateDigits(fields[rules.IdentifierField], rules.IdentifierDigits); !id.Valid {
			res.Errors = append(res.Errors, id.Error)
		}
	}

	issue, expiry := fields[FieldDateOfIssue], fields[FieldDateOfExpiry]
	switch {
	case expiry == "" && rules.RequireDates:
		res.Errors = append(res.Errors, "expiry date is required")
	case expiry != "":
		if issue == "" && rules.RequireDates {
			res.Errors = append(res.Errors, "issue date is required")
			break
		}
		exp := validateExpiry(issue, expiry, now, rules.ValidityYears)
		res.Errors = append(res.Errors, exp.Errors...)
		res.Warnings = append(res.Warnings, exp.Warnings...)
		res.Expired = exp.Expired
		res.ExpiredDays = exp.ExpiredDays
		res.DaysRemaining = exp.DaysRemaining
	}

	res.Valid = len(res.Errors) == 0
	return res
}
