package extraction

import "strings"

// bannerWords are boilerplate printed on documents in capitals that must not
// be mistaken for a holder's name.
var bannerWords = map[string]struct{}{
	"REPUBLIC": {}, "OF": {}, "BOTSWANA": {}, "NATIONAL": {}, "IDENTITY": {},
	"CARD": {}, "OMANG": {}, "PASSPORT": {}, "DRIVING": {}, "DRIVERS": {},
	"LICENCE": {}, "LICENSE": {}, "SURNAME": {}, "FORENAMES": {}, "NAMES": {},
	"NAME": {}, "GOVERNMENT": {}, "SIGNATURE": {}, "HOLDER": {}, "SPECIMEN": {},
}

// nameLines returns lines made only of uppercase letters and spaces that
// carry no banner word, in document order.
func nameLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !isUpperWords(line) {
			continue
		}
		banner := false
		for _, w := range strings.Fields(line) {
			if _, ok := bannerWords[w]; ok {
				banner = true
				break
			}
		}
		if !banner {
			out = append(out, strings.Join(strings.Fields(line), " "))
		}
	}
	return out
}

func isUpperWords(s string) bool {
	letters := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
		case r == ' ':
		default:
			return false
		}
	}
	return letters >= 2
}
