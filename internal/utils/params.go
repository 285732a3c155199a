// Package utils holds request parameter parsing shared by the handlers.
package utils

import (
	"strconv"
	"strings"
)

// PositiveID parses s as a strictly positive decimal id. Signs, blanks and
// overflowing values are rejected.
func PositiveID(s string) (int, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, strconv.IntSize)
	if err != nil || n <= 0 {
		return 0, false
	}
	return int(n), true
}

// BoolDefault parses common truthy/falsy spellings ("1", "true", "yes",
// "on" and their negatives), returning def for anything else.
func BoolDefault(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}
