package aggregation

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Outcome is the mutually exclusive review state a fact is counted under.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeAdvanced
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return MetricAdvanced
	case OutcomeRejected:
		return MetricRejected
	default:
		return MetricPending
	}
}

// OutcomeClassifier maps a free-text status onto an Outcome. Matching is
// case-insensitive; anything not listed is pending.
type OutcomeClassifier struct {
	Advanced []string
	Rejected []string
}

// Classify returns the outcome for status.
func (c OutcomeClassifier) Classify(status string) Outcome {
	s := strings.TrimSpace(status)
	for _, a := range c.Advanced {
		if strings.EqualFold(s, a) {
			return OutcomeAdvanced
		}
	}
	for _, r := range c.Rejected {
		if strings.EqualFold(s, r) {
			return OutcomeRejected
		}
	}
	return OutcomePending
}

// Fact is one dated, attributed occurrence (an application, a signup).
// A fact with several group keys counts once toward each of them.
type Fact struct {
	Date      time.Time
	GroupKeys []string
	Outcome   Outcome
}

// AccumulateOptions bounds the emitted date sequence. With both From and To
// set, every calendar day in [From, To] is emitted even when no fact falls
// on it; facts before From still count toward the running totals and facts
// after To are ignored. Otherwise the distinct fact dates are used.
type AccumulateOptions struct {
	From time.Time
	To   time.Time
}

type tally struct {
	count    int64
	advanced int64
	rejected int64
	pending  int64
}

func (t *tally) add(o Outcome) {
	t.count++
	switch o {
	case OutcomeAdvanced:
		t.advanced++
	case OutcomeRejected:
		t.rejected++
	default:
		t.pending++
	}
}

func (t *tally) metrics() Metrics {
	return Metrics{
		MetricCount:    t.count,
		MetricAdvanced: t.advanced,
		MetricRejected: t.rejected,
		MetricPending:  t.pending,
	}
}

// running keeps per-key tallies plus the "(all)" tally and the sorted set of
// keys seen so far.
type running struct {
	byKey map[string]*tally
	keys  []string
	all   tally
}

func newRunning() *running {
	return &running{byKey: make(map[string]*tally)}
}

func (r *running) fold(f Fact) {
	keys := lo.Uniq(lo.Compact(lo.Map(f.GroupKeys, func(k string, _ int) string {
		return strings.TrimSpace(k)
	})))
	if len(keys) == 0 {
		keys = []string{SentinelNoResponse}
	}
	for _, k := range keys {
		t, ok := r.byKey[k]
		if !ok {
			t = &tally{}
			r.byKey[k] = t
			i := sort.SearchStrings(r.keys, k)
			r.keys = append(r.keys, "")
			copy(r.keys[i+1:], r.keys[i:])
			r.keys[i] = k
		}
		t.add(f.Outcome)
	}
	r.all.add(f.Outcome)
}

// snapshot emits the nonzero keys in key order followed by "(all)".
func (r *running) snapshot(date time.Time) []AggregateRow {
	rows := make([]AggregateRow, 0, len(r.keys)+1)
	for _, k := range r.keys {
		t := r.byKey[k]
		if t.count == 0 {
			continue
		}
		rows = append(rows, AggregateRow{GroupKey: k, Date: date, Metrics: t.metrics()})
	}
	return append(rows, AggregateRow{GroupKey: SentinelAll, Date: date, Metrics: r.all.metrics()})
}

// Accumulate computes daily running totals per group key.
//
// For each emitted date the result holds one row per group key whose
// running count is nonzero, then one "(all)" row. "(all)" counts each fact
// once regardless of how many keys it carries.
func Accumulate(facts []Fact, opts AccumulateOptions) []AggregateRow {
	sorted := make([]Fact, len(facts))
	for i, f := range facts {
		f.Date = TruncateDay(f.Date)
		sorted[i] = f
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	dates := emitDates(sorted, opts)
	r := newRunning()
	var out []AggregateRow
	next := 0
	for _, d := range dates {
		for next < len(sorted) && !sorted[next].Date.After(d) {
			r.fold(sorted[next])
			next++
		}
		out = append(out, r.snapshot(d)...)
	}
	return out
}

// Totals folds every fact into all-time totals: one undated row per group
// key in key order, then "(all)".
func Totals(facts []Fact) []AggregateRow {
	r := newRunning()
	for _, f := range facts {
		r.fold(f)
	}
	return r.snapshot(time.Time{})
}

func emitDates(sorted []Fact, opts AccumulateOptions) []time.Time {
	if !opts.From.IsZero() && !opts.To.IsZero() {
		from, to := TruncateDay(opts.From), TruncateDay(opts.To)
		var days []time.Time
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
		return days
	}

	var days []time.Time
	for _, f := range sorted {
		if len(days) == 0 || !days[len(days)-1].Equal(f.Date) {
			days = append(days, f.Date)
		}
	}
	return days
}
