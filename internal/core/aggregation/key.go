package aggregation

import (
	"fmt"
	"time"
)

// KeyFormat selects which identity fields take part in a row's key.
type KeyFormat string

const (
	KeyHandle      KeyFormat = "handle"       // group
	KeyHandleDate  KeyFormat = "handle_date"  // group-date
	KeyHandleRange KeyFormat = "handle_range" // group-start-end
)

const keySeparator = "-"

// ValidKeyFormat reports whether f is a known key format.
func ValidKeyFormat(f KeyFormat) bool {
	switch f {
	case KeyHandle, KeyHandleDate, KeyHandleRange:
		return true
	}
	return false
}

// DeriveKey returns the identity key for id under format f.
//
// The result is "" whenever a field the format needs is absent, so an
// incomplete identity never matches a stored record.
func DeriveKey(f KeyFormat, id Identity) string {
	if id.GroupKey == "" {
		return ""
	}
	switch f {
	case KeyHandle:
		return id.GroupKey
	case KeyHandleDate:
		if id.Date.IsZero() {
			return ""
		}
		return id.GroupKey + keySeparator + KeyDate(id.Date)
	case KeyHandleRange:
		if id.PeriodStart.IsZero() || id.PeriodEnd.IsZero() {
			return ""
		}
		return id.GroupKey + keySeparator + KeyDate(id.PeriodStart) + keySeparator + KeyDate(id.PeriodEnd)
	default:
		return ""
	}
}

// keyFromStrings derives a key from textual identity parts. Dates may be in
// any layout ParseDay accepts; they are canonicalized before joining.
func keyFromStrings(f KeyFormat, group string, dates ...string) (string, error) {
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day, err := ParseDay(d)
		if err != nil {
			return "", fmt.Errorf("derive key for %q: %w", group, err)
		}
		days = append(days, day)
	}

	id := Identity{GroupKey: group}
	switch f {
	case KeyHandleDate:
		if len(days) != 1 {
			return "", fmt.Errorf("derive key: %s needs 1 date, got %d", f, len(days))
		}
		id.Date = days[0]
	case KeyHandleRange:
		if len(days) != 2 {
			return "", fmt.Errorf("derive key: %s needs 2 dates, got %d", f, len(days))
		}
		id.PeriodStart, id.PeriodEnd = days[0], days[1]
	}
	return DeriveKey(f, id), nil
}
