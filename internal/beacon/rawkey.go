package beacon

import (
	"regexp"
	"strings"
)

var (
	rawKeyPattern = regexp.MustCompile(`^(IBC_[0-9A-F]{32}(?:[0-9A-F]{8})?|EDS_[0-9A-F]+|[0-9A-F]{2}(?::[0-9A-F]{2}){5})$`)
	macPattern    = regexp.MustCompile(`^[0-9A-F]{2}(?::[0-9A-F]{2}){5}$`)
	keySeparators = regexp.MustCompile(`[\s,]+`)
)

// NormalizeRawKey upper-cases an already-canonical key typed by a user.
// It returns "" for anything that is not an IBC_, EDS_ or colon MAC key.
func NormalizeRawKey(token string) Key {
	s := strings.ToUpper(strings.TrimSpace(token))
	if !rawKeyPattern.MatchString(s) {
		return ""
	}
	return Key(s)
}

// ParsePreloadKeys reads a raw key block. Tokens are separated by commas or
// whitespace; invalid tokens are dropped and duplicates keep their first
// position.
func ParsePreloadKeys(text string) []Key {
	var keys []Key
	seen := make(map[Key]struct{})
	for _, tok := range keySeparators.Split(text, -1) {
		k := NormalizeRawKey(tok)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
