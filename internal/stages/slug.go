package stages

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxHandleLen = 60

// Slug turns a title into a storefront handle: accents folded, lowercase,
// runs of anything else collapsed to a single dash.
func Slug(title string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	handle := strings.TrimSuffix(b.String(), "-")
	if len(handle) > maxHandleLen {
		handle = strings.TrimSuffix(handle[:maxHandleLen], "-")
	}
	return handle
}
