package clan

import "strings"

// tagAlphabet is the character set the game uses for player and clan tags.
const tagAlphabet = "0289PYLQGRJCUV"

// NormalizeTag applies the deterministic correction the game community
// expects: uppercase, strip everything non-alphanumeric, O becomes 0, and a
// single leading #.
func NormalizeTag(tag string) string {
	var b strings.Builder
	b.WriteByte('#')
	for _, r := range strings.ToUpper(tag) {
		if r == 'O' {
			r = '0'
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidTag reports whether a normalized tag is plausible: at least three
// characters after the #, all from the tag alphabet.
func ValidTag(tag string) bool {
	if len(tag) < 4 || tag[0] != '#' {
		return false
	}
	for _, r := range tag[1:] {
		if !strings.ContainsRune(tagAlphabet, r) {
			return false
		}
	}
	return true
}
