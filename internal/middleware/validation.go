package middleware

import (
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// SanitizeString strips null bytes and control characters (except
// newlines and tabs) and trims whitespace. Applied to every identifier
// that arrives from the browser before it is used as a lookup key.
func SanitizeString(input string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(input, ""))
}
