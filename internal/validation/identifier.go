package validation

import "fmt"

// OmangDigits is the length of a Botswana national identity number.
const OmangDigits = 9

// IdentifierResult is the verdict on a document number.
type IdentifierResult struct {
	Valid bool
	Error string
}

// ValidateIdentifier checks a national identity number: digits only, then
// exactly OmangDigits of them. The numeric check runs first so "12345678O"
// reports a composition error rather than a length error.
func ValidateIdentifier(value string) IdentifierResult {
	return validateDigits(value, OmangDigits)
}

func validateDigits(value string, digits int) IdentifierResult {
	if value == "" {
		return IdentifierResult{Error: "document number is required"}
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return IdentifierResult{Error: "document number must be numeric"}
		}
	}
	if len(value) != digits {
		return IdentifierResult{Error: fmt.Sprintf("document number must be exactly %d digits", digits)}
	}
	return IdentifierResult{Valid: true}
}
