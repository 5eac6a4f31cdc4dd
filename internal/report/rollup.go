package report

import (
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
)

// ErrNoAllRow is returned when a summary is asked of rows without "(all)".
var ErrNoAllRow = errors.New(`rows carry no "(all)" total`)

var hundred = decimal.NewFromInt(100)

// DailyDeltas turns cumulative daily rows into per-day increments. A group's
// first day keeps its full value. The result is ordered by group, then date.
func DailyDeltas(rows []aggregation.AggregateRow, metrics []string) []DailyValue {
	byGroup := lo.GroupBy(rows, func(r aggregation.AggregateRow) string { return r.GroupKey })
	groups := lo.Keys(byGroup)
	sort.Strings(groups)

	var out []DailyValue
	for _, g := range groups {
		series := byGroup[g]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

		prev := aggregation.Metrics{}
		for _, r := range series {
			delta := make(aggregation.Metrics, len(metrics))
			for _, m := range metrics {
				delta[m] = r.Metrics[m] - prev[m]
			}
			out = append(out, DailyValue{Group: g, Date: aggregation.FormatDay(r.Date), Metrics: delta})
			prev = r.Metrics
		}
	}
	return out
}

// DailyTotals sums metrics per day over every group except "(all)".
func DailyTotals(rows []aggregation.AggregateRow, metrics []string) []DailyValue {
	sums := make(map[time.Time]aggregation.Metrics)
	for _, r := range rows {
		if r.GroupKey == aggregation.SentinelAll {
			continue
		}
		day, ok := sums[r.Date]
		if !ok {
			day = make(aggregation.Metrics, len(metrics))
			for _, m := range metrics {
				day[m] = 0
			}
			sums[r.Date] = day
		}
		for _, m := range metrics {
			day[m] += r.Metrics[m]
		}
	}

	days := lo.Keys(sums)
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return lo.Map(days, func(d time.Time, _ int) DailyValue {
		return DailyValue{Date: aggregation.FormatDay(d), Metrics: sums[d]}
	})
}

// TopGroups ranks real groups by metric, highest first. Sentinel groups are
// left out. With minCount > 0, groups whose countMetric is below it are
// dropped. n <= 0 returns every group.
func TopGroups(rows []aggregation.AggregateRow, metric string, n int, countMetric string, minCount int64) []RankedGroup {
	ranked := lo.FilterMap(rows, func(r aggregation.AggregateRow, _ int) (RankedGroup, bool) {
		if aggregation.IsSentinel(r.GroupKey) {
			return RankedGroup{}, false
		}
		if minCount > 0 && r.Metrics[countMetric] < minCount {
			return RankedGroup{}, false
		}
		return RankedGroup{Group: r.GroupKey, Value: r.Metrics[metric], Metrics: r.Metrics.Clone()}, true
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value > ranked[j].Value
		}
		return ranked[i].Group < ranked[j].Group
	})
	return limit(ranked, n)
}

// RankByAdvancement ranks real groups with at least minCount facts by the
// percentage of them that advanced, rounded to two places.
func RankByAdvancement(rows []aggregation.AggregateRow, n int, minCount int64) []QualityRow {
	ranked := lo.FilterMap(rows, func(r aggregation.AggregateRow, _ int) (QualityRow, bool) {
		count := r.Metrics[aggregation.MetricCount]
		if aggregation.IsSentinel(r.GroupKey) || count <= 0 || count < minCount {
			return QualityRow{}, false
		}
		advanced := r.Metrics[aggregation.MetricAdvanced]
		return QualityRow{
			Group:    r.GroupKey,
			Count:    count,
			Advanced: advanced,
			Rate:     rate(advanced, count),
		}, true
	})
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Rate.Cmp(ranked[j].Rate); c != 0 {
			return c > 0
		}
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Group < ranked[j].Group
	})
	return limit(ranked, n)
}

// Summarize reads the exact totals from the "(all)" row and sets them
// against the per-group sum, sentinels other than "(all)" included.
func Summarize(rows []aggregation.AggregateRow) (Summary, error) {
	all, ok := lo.Find(rows, func(r aggregation.AggregateRow) bool { return r.GroupKey == aggregation.SentinelAll })
	if !ok {
		return Summary{}, ErrNoAllRow
	}

	s := Summary{
		AllCount: all.Metrics[aggregation.MetricCount],
		Advanced: all.Metrics[aggregation.MetricAdvanced],
		Rejected: all.Metrics[aggregation.MetricRejected],
		Pending:  all.Metrics[aggregation.MetricPending],
		Factor:   decimal.Zero,
	}
	for _, r := range rows {
		if r.GroupKey != aggregation.SentinelAll {
			s.GroupSum += r.Metrics[aggregation.MetricCount]
		}
	}
	if s.AllCount > 0 {
		s.Factor = decimal.NewFromInt(s.GroupSum).DivRound(decimal.NewFromInt(s.AllCount), 4)
	}
	s.AdvancedRate = rate(s.Advanced, s.AllCount)
	return s, nil
}

func rate(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).DivRound(decimal.NewFromInt(whole), 2)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// latestDay keeps the rows of the most recent date.
func latestDay(rows []aggregation.AggregateRow) []aggregation.AggregateRow {
	var last time.Time
	for _, r := range rows {
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return lo.Filter(rows, func(r aggregation.AggregateRow, _ int) bool { return r.Date.Equal(last) })
}

// inPeriod keeps the rows of one range window.
func inPeriod(rows []aggregation.AggregateRow, start, end time.Time) []aggregation.AggregateRow {
	return lo.Filter(rows, func(r aggregation.AggregateRow, _ int) bool {
		return r.PeriodStart.Equal(start) && r.PeriodEnd.Equal(end)
	})
}
