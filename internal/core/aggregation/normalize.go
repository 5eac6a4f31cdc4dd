package aggregation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ColumnKind says how a positional query column feeds an AggregateRow.
type ColumnKind string

const (
	ColumnGroup       ColumnKind = "group"
	ColumnMetric      ColumnKind = "metric"
	ColumnDate        ColumnKind = "date"
	ColumnFirstActive ColumnKind = "first_active"
	ColumnLastActive  ColumnKind = "last_active"
	ColumnTags        ColumnKind = "tags"
	ColumnIgnore      ColumnKind = "ignore"
)

// ValidColumnKind reports whether k is a known column kind.
func ValidColumnKind(k ColumnKind) bool {
	switch k {
	case ColumnGroup, ColumnMetric, ColumnDate, ColumnFirstActive, ColumnLastActive, ColumnTags, ColumnIgnore:
		return true
	}
	return false
}

// Column describes one position of a query's SELECT projection.
type Column struct {
	Name string     `yaml:"name"`
	Kind ColumnKind `yaml:"kind"`
}

// RowContext carries values a row takes from the run rather than the query.
type RowContext struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Normalizer turns positional query rows into AggregateRows.
type Normalizer struct {
	Columns        []Column
	Sentinel       string
	LowercaseGroup bool
}

// MetricNames lists the metric columns in projection order.
func (n Normalizer) MetricNames() []string {
	var names []string
	for _, c := range n.Columns {
		if c.Kind == ColumnMetric {
			names = append(names, c.Name)
		}
	}
	return names
}

// Normalize builds one row from raw. Null metrics become 0, blank group
// values become the sentinel, and dates are cut to calendar days.
func (n Normalizer) Normalize(raw []any, rc RowContext) (AggregateRow, error) {
	if len(raw) != len(n.Columns) {
		return AggregateRow{}, fmt.Errorf("normalize: row has %d values, projection has %d columns", len(raw), len(n.Columns))
	}

	row := AggregateRow{
		PeriodStart: rc.PeriodStart,
		PeriodEnd:   rc.PeriodEnd,
		Metrics:     make(Metrics),
	}

	for i, col := range n.Columns {
		v := raw[i]
		switch col.Kind {
		case ColumnGroup:
			handles := Handles(v, n.Sentinel, n.LowercaseGroup)
			if len(handles) != 1 {
				return AggregateRow{}, fmt.Errorf("normalize: column %q yielded %d handles, want 1", col.Name, len(handles))
			}
			row.GroupKey = handles[0]
		case ColumnMetric:
			row.Metrics[col.Name] = CoalesceInt(v)
		case ColumnDate:
			day, err := ParseDay(v)
			if err != nil {
				return AggregateRow{}, fmt.Errorf("normalize: column %q: %w", col.Name, err)
			}
			row.Date = day
		case ColumnFirstActive:
			day, err := ParseDay(v)
			if err != nil {
				return AggregateRow{}, fmt.Errorf("normalize: column %q: %w", col.Name, err)
			}
			row.FirstActive = day
		case ColumnLastActive:
			day, err := ParseDay(v)
			if err != nil {
				return AggregateRow{}, fmt.Errorf("normalize: column %q: %w", col.Name, err)
			}
			row.LastActive = day
		case ColumnTags:
			row.Tags = JoinTags(v)
		case ColumnIgnore:
		default:
			return AggregateRow{}, fmt.Errorf("normalize: column %q has unknown kind %q", col.Name, col.Kind)
		}
	}

	if row.GroupKey == "" {
		return AggregateRow{}, fmt.Errorf("normalize: projection has no group column")
	}
	if !row.Date.IsZero() && (!row.PeriodStart.IsZero() || !row.PeriodEnd.IsZero()) {
		return AggregateRow{}, fmt.Errorf("normalize: row %q carries both a date and a period", row.GroupKey)
	}
	return row, nil
}

// Handles flattens an attribution value into trimmed handle names.
//
// Accepted shapes are a plain string, a list of strings, or a list of tag
// objects with a "name" field. Blank names are dropped and duplicates kept
// once. An empty result is replaced by exactly one sentinel.
func Handles(v any, sentinel string, lowercase bool) []string {
	names := lo.Compact(lo.Map(flatten(v), func(s string, _ int) string {
		s = strings.TrimSpace(s)
		if lowercase {
			s = strings.ToLower(s)
		}
		return s
	}))
	names = lo.Uniq(names)
	if len(names) == 0 {
		return []string{sentinel}
	}
	return names
}

// JoinTags dedupes (exact match), sorts and joins a multi-valued text
// attribute with ", ". It returns nil when nothing is left.
func JoinTags(v any) *string {
	tags := lo.Uniq(lo.Compact(lo.Map(flatten(v), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	if len(tags) == 0 {
		return nil
	}
	sort.Strings(tags)
	joined := strings.Join(tags, ", ")
	return &joined
}

func flatten(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case *string:
		if val == nil {
			return nil
		}
		return []string{*val}
	case []string:
		return val
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		if name, ok := val["name"].(string); ok {
			return []string{name}
		}
		return nil
	default:
		return nil
	}
}

// CoalesceInt reads a numeric value. Missing, null and unparsable values
// yield 0. Fractions are truncated toward zero.
func CoalesceInt(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return int64(val)
	case float64:
		return int64(val)
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err == nil {
			return d.IntPart()
		}
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err == nil {
			return d.IntPart()
		}
	}
	return 0
}
