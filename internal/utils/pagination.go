// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrBadTime is returned by ParseOptionalTime for unparsable input.
var ErrBadTime = errors.New("time must be RFC 3339 or YYYY-MM-DD")

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseOptionalTime parses an RFC 3339 timestamp or a bare date (UTC
// midnight). Blank input returns nil.
func ParseOptionalTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ErrBadTime
}

// SortDesc interprets a sort direction parameter: "asc" is ascending,
// anything else (including "") is descending.
func SortDesc(dir string) bool {
	return !strings.EqualFold(strings.TrimSpace(dir), "asc")
}
