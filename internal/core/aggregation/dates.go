package aggregation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// KeyDateLayout is the only date format used inside identity keys.
	KeyDateLayout = "1/2/06"

	// DayLayout is the storage and display format for calendar days.
	DayLayout = "2006-01-02"
)

// DateStyle selects which textual input format a run parameter must match.
type DateStyle string

const (
	DateStyleUS  DateStyle = "us"  // M/D/YY or M/D/YYYY
	DateStyleISO DateStyle = "iso" // YYYY-MM-DD
)

var (
	usDatePattern  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/(\d{2}|\d{4})$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Layouts accepted when reading a day out of a stored or queried value.
// "1/2/2006" precedes "1/2/06" so four-digit years are not cut short.
var dayLayouts = []string{
	DayLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"1/2/2006",
	KeyDateLayout,
}

// ValidStyle reports whether s is a supported input style.
func ValidStyle(s DateStyle) bool {
	return s == DateStyleUS || s == DateStyleISO
}

// ParseInputDate parses a run parameter. The value must match the style's
// pattern exactly before it is handed to the time parser.
func ParseInputDate(s string, style DateStyle) (time.Time, error) {
	switch style {
	case DateStyleUS:
		if !usDatePattern.MatchString(s) {
			return time.Time{}, fmt.Errorf("date %q does not match M/D/YY or M/D/YYYY", s)
		}
		for _, layout := range []string{"1/2/2006", KeyDateLayout} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("date %q is not a calendar day", s)
	case DateStyleISO:
		if !isoDatePattern.MatchString(s) {
			return time.Time{}, fmt.Errorf("date %q does not match YYYY-MM-DD", s)
		}
		t, err := time.Parse(DayLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q is not a calendar day", s)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date style %q", style)
	}
}

// ParseDay truncates a date-like value to a UTC calendar day. Strings in any
// of the accepted layouts and time.Time values are supported; nil and blank
// strings yield the zero time with no error.
func ParseDay(v any) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		if val.IsZero() {
			return time.Time{}, nil
		}
		return TruncateDay(val), nil
	case *time.Time:
		if val == nil {
			return time.Time{}, nil
		}
		return ParseDay(*val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range dayLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return TruncateDay(t), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value of type %T", v)
	}
}

// TruncateDay converts t to UTC and drops the time of day.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DayLayout)
}

// KeyDate renders t in the identity-key layout, or "" for the zero time.
func KeyDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(KeyDateLayout)
}
