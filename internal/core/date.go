package core

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format written to the ledger.
const DateLayout = "2006-01-02"

// isoLayouts are tried before the bare calendar date.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseLedgerDate parses a date cell: full ISO-8601 first (a trailing "Z" is
// accepted, naive values are UTC), then a bare YYYY-MM-DD.
func ParseLedgerDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
