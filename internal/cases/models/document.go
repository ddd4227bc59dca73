package models

import "strings"

// DocumentType names the identity document a case verifies.
type DocumentType string

const (
	DocumentNationalID     DocumentType = "national_id"
	DocumentPassport       DocumentType = "passport"
	DocumentDriversLicence DocumentType = "drivers_licence"
	DocumentOtherID        DocumentType = "other_id"
)

// documentAliases accepts common spellings from client integrations.
var documentAliases = map[string]DocumentType{
	"national_id":     DocumentNationalID,
	"national-id":     DocumentNationalID,
	"omang":           DocumentNationalID,
	"passport":        DocumentPassport,
	"drivers_licence": DocumentDriversLicence,
	"drivers-licence": DocumentDriversLicence,
	"drivers_license": DocumentDriversLicence,
	"other_id":        DocumentOtherID,
	"other-id":        DocumentOtherID,
}

// ParseDocumentType normalizes raw; an empty value defaults to national_id.
func ParseDocumentType(raw string) (DocumentType, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DocumentNationalID, true
	}
	dt, ok := documentAliases[raw]
	return dt, ok
}

func (d DocumentType) String() string {
	return string(d)
}
