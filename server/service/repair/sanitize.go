package repair

import "strings"

// MaxTextLength is the maximum length, in characters, of a sanitized text.
const MaxTextLength = 256

var unsafeChars = strings.NewReplacer(
	"<", "",
	">", "",
	"&", "",
	"?", "",
	":", "",
	`\`, "",
	"[", "",
	"]", "",
)

// Sanitize returns the canonical form of a repair text: unsafe characters
// stripped, surrounding whitespace trimmed and at most MaxTextLength characters.
// The result is both the cache key and the model input, and Sanitize is idempotent.
func Sanitize(text string) string {
	s := strings.TrimSpace(unsafeChars.Replace(text))
	if runes := []rune(s); len(runes) > MaxTextLength {
		// Truncation can expose trailing whitespace.
		s = strings.TrimSpace(string(runes[:MaxTextLength]))
	}
	return s
}
