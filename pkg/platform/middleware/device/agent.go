// Package device summarizes the reviewer's client software for audit entries.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Summary condenses a User-Agent header into "Browser Version / OS".
// Bots and unparseable agents keep their raw product token.
func Summary(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	if ua.Bot() || name == "" {
		if i := strings.IndexByte(userAgent, ' '); i > 0 {
			return userAgent[:i]
		}
		return userAgent
	}
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	var b strings.Builder
	b.WriteString(name)
	if version != "" {
		b.WriteString(" " + version)
	}
	if osName := ua.OS(); osName != "" {
		b.WriteString(" / " + osName)
	}
	if ua.Mobile() {
		b.WriteString(" (mobile)")
	}
	return b.String()
}
