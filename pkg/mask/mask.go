// Package mask renders document identifiers for external boundaries
// (webhook payloads, API responses, logs).
package mask

const prefix = "***"

// DocumentNumber keeps only the last four characters of an identifier.
// Values of four characters or fewer are fully masked; empty stays empty.
func DocumentNumber(value string) string {
	if value == "" {
		return ""
	}
	r := []rune(value)
	if len(r) <= 4 {
		return prefix
	}
	return prefix + string(r[len(r)-4:])
}

// Email hides the local part except its first character.
func Email(value string) string {
	for i, c := range value {
		if c == '@' {
			if i == 0 {
				return prefix + value[i:]
			}
			return value[:1] + prefix + value[i:]
		}
	}
	return DocumentNumber(value)
}
