package export

import (
	"strings"
)

const maxFilenameRunes = 100

// SuggestedFilename derives a download name from a project title: every
// character outside [A-Za-z0-9] becomes an underscore and ".mp4" is
// appended.
func SuggestedFilename(title string) string {
	return SanitizeName(title, maxFilenameRunes, "story") + ".mp4"
}

// SanitizeName replaces every non-alphanumeric ASCII character with an
// underscore and caps the result at maxLen runes. Empty input yields
// fallback.
func SanitizeName(s string, maxLen int, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if isAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := b.String()
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
