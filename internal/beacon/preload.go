package beacon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PreloadEntry is one expected iBeacon declared in configuration text.
type PreloadEntry struct {
	Key   Key    `json:"key"`
	UUID  string `json:"uuid"`
	Major string `json:"major"`
	Minor string `json:"minor"`
}

// parseMode selects how the row parser reacts to a bad row.
type parseMode int

const (
	// collectFirstError stops at the first bad row and reports it.
	collectFirstError parseMode = iota
	// skipOnFailure drops bad rows and keeps going.
	skipOnFailure
)

// ValidatePreloadIBeacon checks a preload block and reports the first bad row.
//
// Parameters:
//   - text: Freeform preload text, rows separated by ';' or line breaks
//
// Returns:
//   - error: nil when every row is valid, otherwise a *ValidationError
//     unwrapping to ErrInvalidUUID, ErrInvalidValue or ErrOutOfRange
func ValidatePreloadIBeacon(text string) error {
	_, err := parsePreload(text, collectFirstError)
	return err
}

// ParsePreloadIBeacon returns the valid rows of a preload block in order.
// Rows that fail validation are skipped; it never fails.
func ParsePreloadIBeacon(text string) []PreloadEntry {
	entries, _ := parsePreload(text, skipOnFailure) //nolint:errcheck // skip mode never returns an error
	return entries
}

func parsePreload(text string, mode parseMode) ([]PreloadEntry, error) {
	var entries []PreloadEntry
	for i, row := range splitRows(text) {
		parts := tokenize(row)
		if len(parts) == 0 {
			continue
		}
		entry, err := parseRow(parts)
		if err != nil {
			if mode == collectFirstError {
				var fe *fieldError
				if errors.As(err, &fe) {
					return nil, &ValidationError{Line: i + 1, Reason: fe.reason, Err: fe.err}
				}
				return nil, &ValidationError{Line: i + 1, Reason: err.Error(), Err: err}
			}
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// tokenize treats commas as whitespace. A row made only of separators is blank.
func tokenize(row string) []string {
	return strings.Fields(strings.ReplaceAll(row, ",", " "))
}

// parseRow turns the tokens of "uuid[, major[, minor]]" into an entry.
func parseRow(parts []string) (PreloadEntry, error) {
	uuid := strings.ToUpper(strings.ReplaceAll(parts[0], "-", ""))
	if len(uuid) != 32 || !isHex(uuid) {
		return PreloadEntry{}, &fieldError{
			reason: fmt.Sprintf("UUID must be 32 hex (got '%s')", parts[0]),
			err:    ErrInvalidUUID,
		}
	}

	major, minor := "0000", "0000"
	var err error
	if len(parts) > 1 {
		if major, err = Hex4(parts[1]); err != nil {
			return PreloadEntry{}, err
		}
	}
	if len(parts) > 2 {
		if minor, err = Hex4(parts[2]); err != nil {
			return PreloadEntry{}, err
		}
	}

	return PreloadEntry{
		Key:   Key(IBeaconPrefix + uuid + major + minor),
		UUID:  uuid,
		Major: major,
		Minor: minor,
	}, nil
}

// Hex4 normalises a major/minor token to four upper-case hex digits.
//
// Accepted forms, tried in order: empty (zero), "0x" prefixed hex, plain
// decimal digits, then 1–4 bare hex digits. "16" is therefore decimal 16
// and "ff" is hex 255.
//
// Returns:
//   - string: Four upper-case hex digits
//   - error: ErrInvalidValue for unparseable input, ErrOutOfRange for values
//     outside 0..65535
func Hex4(v string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return "0000", nil
	}

	var (
		n   uint64
		err error
	)
	switch {
	case strings.HasPrefix(s, "0x"):
		n, err = strconv.ParseUint(s[2:], 16, 64)
	case isDigits(s):
		n, err = strconv.ParseUint(s, 10, 64)
	case len(s) <= 4 && isHex(s):
		n, err = strconv.ParseUint(s, 16, 64)
	default:
		return "", invalidValue(v)
	}
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return "", &fieldError{reason: "out of range", err: ErrOutOfRange}
		}
		return "", invalidValue(v)
	}
	if n > 0xFFFF {
		return "", &fieldError{reason: "out of range", err: ErrOutOfRange}
	}
	return fmt.Sprintf("%04X", n), nil
}

func invalidValue(v string) error {
	return &fieldError{reason: "invalid value: " + v, err: ErrInvalidValue}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// splitRows splits on ';' and then on line breaks. An empty chunk yields no
// rows and a trailing line break does not open a new row, so "a;;b" and
// "a\nb\n" both produce two rows.
func splitRows(text string) []string {
	var rows []string
	for _, chunk := range strings.Split(text, ";") {
		rows = append(rows, splitLines(chunk)...)
	}
	return rows
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		if !isLineBreak(rs[i]) {
			continue
		}
		lines = append(lines, string(rs[start:i]))
		if rs[i] == '\r' && i+1 < len(rs) && rs[i+1] == '\n' {
			i++
		}
		start = i + 1
	}
	if start < len(rs) {
		lines = append(lines, string(rs[start:]))
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
