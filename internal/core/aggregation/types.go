package aggregation

import (
	"time"
)

// Sentinel group keys. A row never carries an empty group key: missing
// attribution is mapped to one of these before the row is built.
const (
	SentinelAll        = "(all)"
	SentinelDirect     = "(direct)"
	SentinelNoResponse = "(no response)"
)

// Metric names used by the shipped aggregate shapes. Metric names double as
// store field names.
const (
	MetricEvents           = "events"
	MetricPageviews        = "pageviews"
	MetricUniqueVisitors   = "unique_visitors"
	MetricApplyPageViews   = "apply_page_views"
	MetricProgramPageViews = "program_page_views"

	MetricCount    = "count"
	MetricAdvanced = "advanced"
	MetricRejected = "rejected"
	MetricPending  = "pending"
)

// IsSentinel reports whether key is one of the reserved group keys.
func IsSentinel(key string) bool {
	switch key {
	case SentinelAll, SentinelDirect, SentinelNoResponse:
		return true
	}
	return false
}

// Metrics maps a metric name to its value.
type Metrics map[string]int64

// Clone returns an independent copy of m.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AggregateRow is one computed summary unit.
//
// Date and PeriodStart/PeriodEnd are mutually exclusive: daily rows carry a
// Date, windowed rows carry a period, all-time rows carry neither. Zero
// time values mean "absent".
type AggregateRow struct {
	GroupKey    string    `json:"group_key"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Date        time.Time `json:"date"`
	Metrics     Metrics   `json:"metrics"`
	FirstActive time.Time `json:"first_active"`
	LastActive  time.Time `json:"last_active"`
	Tags        *string   `json:"tags,omitempty"`
}

// Identity returns the identity fields of the row. Metrics never take part.
func (r AggregateRow) Identity() Identity {
	return Identity{
		GroupKey:    r.GroupKey,
		Date:        r.Date,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
	}
}

// Identity holds the fields a row is correlated on.
type Identity struct {
	GroupKey    string
	Date        time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// PersistedRecord is the store's view of a previously written row.
type PersistedRecord struct {
	ID       string
	Identity Identity
	Metrics  Metrics
}
