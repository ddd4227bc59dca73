package extraction

import "regexp"

// Field names produced by the profiles.
const (
	FieldIDNumber      = "id_number"
	FieldPassportNo    = "passport_number"
	FieldLicenceNo     = "licence_number"
	FieldSurname       = "surname"
	FieldForenames     = "forenames"
	FieldDateOfBirth   = "date_of_birth"
	FieldPlaceOfBirth  = "place_of_birth"
	FieldSex           = "sex"
	FieldNationality   = "nationality"
	FieldDateOfIssue   = "date_of_issue"
	FieldDateOfExpiry  = "date_of_expiry"
	FieldEyeColour     = "eye_colour"
	FieldLicenceClass  = "licence_class"
	FieldIssuingAuthor = "issuing_authority"
)

// DocumentNumberFields hold document identifiers, in the order one is
// picked when a case carries several.
var DocumentNumberFields = []string{FieldIDNumber, FieldPassportNo, FieldLicenceNo}

// FieldSpec describes one labelled field. Pattern's first capture group is
// the value. A nil Pattern marks a field filled by the name-line heuristic.
type FieldSpec struct {
	Field    string
	Pattern  *regexp.Regexp
	Weight   float64
	Required bool
}

// Profile is the extraction layout for one document type.
type Profile struct {
	DocumentType string
	Fields       []FieldSpec
}

// Weight returns the importance weight of field, or 0 if the profile does not know it.
func (p Profile) Weight(field string) float64 {
	for _, f := range p.Fields {
		if f.Field == field {
			return f.Weight
		}
	}
	return 0
}

// Required lists required field names in profile order.
func (p Profile) Required() []string {
	var out []string
	for _, f := range p.Fields {
		if f.Required {
			out = append(out, f.Field)
		}
	}
	return out
}

func label(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

const datePattern = `(\d{2}/\d{2}/\d{4})`

var nationalIDProfile = Profile{
	DocumentType: "national_id",
	Fields: []FieldSpec{
		{Field: FieldIDNumber, Pattern: label(`\b(?:id|omang)\s*(?:no\.?|number)\s*[:.]?\s*([0-9A-Z]{5,12})\b`), Weight: 2.0, Required: true},
		{Field: FieldSurname, Weight: 2.0, Required: true},
		{Field: FieldForenames, Weight: 2.0, Required: true},
		{Field: FieldDateOfBirth, Pattern: label(`date\s+of\s+birth\s*:?\s*` + datePattern), Weight: 1.5, Required: true},
		{Field: FieldDateOfExpiry, Pattern: label(`date\s+of\s+expiry\s*:?\s*` + datePattern), Weight: 1.5, Required: true},
		{Field: FieldDateOfIssue, Pattern: label(`date\s+of\s+issue\s*:?\s*` + datePattern), Weight: 1.2, Required: true},
		{Field: FieldSex, Pattern: label(`\bsex\s*:?\s*([MF])\b`), Weight: 1.0},
		{Field: FieldPlaceOfBirth, Pattern: label(`place\s+of\s+birth\s*:?\s*([A-Z][A-Z ]*[A-Z])`), Weight: 0.8},
		{Field: FieldNationality, Pattern: label(`nationality\s*:?\s*([A-Z]+)`), Weight: 0.8},
		{Field: FieldEyeColour, Pattern: label(`colou?r\s+of\s+eyes\s*:?\s*([A-Z]+)`), Weight: 0.3},
	},
}

var passportProfile = Profile{
	DocumentType: "passport",
	Fields: []FieldSpec{
		{Field: FieldPassportNo, Pattern: label(`passport\s*(?:no\.?|number)\s*:?\s*([A-Z0-9]{6,9})\b`), Weight: 2.0, Required: true},
		{Field: FieldSurname, Weight: 2.0, Required: true},
		{Field: FieldForenames, Weight: 2.0, Required: true},
		{Field: FieldDateOfBirth, Pattern: label(`date\s+of\s+birth\s*:?\s*` + datePattern), Weight: 1.5, Required: true},
		{Field: FieldDateOfExpiry, Pattern: label(`date\s+of\s+expiry\s*:?\s*` + datePattern), Weight: 1.5, Required: true},
		{Field: FieldDateOfIssue, Pattern: label(`date\s+of\s+issue\s*:?\s*` + datePattern), Weight: 1.2},
		{Field: FieldNationality, Pattern: label(`nationality\s*:?\s*([A-Z]+)`), Weight: 0.8, Required: true},
		{Field: FieldSex, Pattern: label(`\bsex\s*:?\s*([MF])\b`), Weight: 1.0},
		{Field: FieldPlaceOfBirth, Pattern: label(`place\s+of\s+birth\s*:?\s*([A-Z][A-Z ]*[A-Z])`), Weight: 0.8},
		{Field: FieldIssuingAuthor, Pattern: label(`authority\s*:?\s*([A-Z][A-Z ]*[A-Z])`), Weight: 0.3},
	},
}

var driversLicenceProfile = Profile{
	DocumentType: "drivers_licence",
	Fields: []FieldSpec{
		{Field: FieldLicenceNo, Pattern: label(`licen[cs]e\s*(?:no\.?|number)\s*:?\s*([A-Z0-9]{5,15})\b`), Weight: 2.0, Required: true},
		{Field: FieldSurname, Weight: 2.0, Required: true},
		{Field: FieldForenames, Weight: 2.0, Required: true},
		{Field: FieldIDNumber, Pattern: label(`\b(?:id|omang)\s*(?:no\.?|number)\s*:?\s*([0-9A-Z]{5,12})\b`), Weight: 1.5},
		{Field: FieldDateOfBirth, Pattern: label(`date\s+of\s+birth\s*:?\s*` + datePattern), Weight: 1.5, Required: true},
		{Field: FieldDateOfExpiry, Pattern: label(`(?:date\s+of\s+expiry|valid\s+until)\s*:?\s*` + datePattern), Weight: 1.5, Required: true},
		{Field: FieldDateOfIssue, Pattern: label(`date\s+of\s+issue\s*:?\s*` + datePattern), Weight: 1.2},
		{Field: FieldLicenceClass, Pattern: label(`(?:class|code)\s*:?\s*([A-Z0-9]{1,3})\b`), Weight: 0.5},
	},
}

var otherIDProfile = Profile{
	DocumentType: "other_id",
	Fields: []FieldSpec{
		{Field: FieldIDNumber, Pattern: label(`\b(?:id|document)\s*(?:no\.?|number)\s*:?\s*([0-9A-Z]{5,15})\b`), Weight: 2.0, Required: true},
		{Field: FieldSurname, Weight: 2.0, Required: true},
		{Field: FieldForenames, Weight: 2.0},
		{Field: FieldDateOfBirth, Pattern: label(`date\s+of\s+birth\s*:?\s*` + datePattern), Weight: 1.5},
		{Field: FieldDateOfExpiry, Pattern: label(`date\s+of\s+expiry\s*:?\s*` + datePattern), Weight: 1.5},
		{Field: FieldDateOfIssue, Pattern: label(`date\s+of\s+issue\s*:?\s*` + datePattern), Weight: 1.2},
	},
}

var defaultProfiles = map[string]Profile{
	nationalIDProfile.DocumentType:     nationalIDProfile,
	passportProfile.DocumentType:       passportProfile,
	driversLicenceProfile.DocumentType: driversLicenceProfile,
	otherIDProfile.DocumentType:        otherIDProfile,
}
