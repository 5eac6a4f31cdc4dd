package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
)

func day(s string) time.Time {
	t, err := time.Parse(aggregation.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func windowRow(handle string, events int64) aggregation.AggregateRow {
	return aggregation.AggregateRow{
		GroupKey:    handle,
		PeriodStart: day("2025-01-01"),
		PeriodEnd:   day("2025-03-15"),
		Metrics:     aggregation.Metrics{aggregation.MetricEvents: events},
	}
}

func windowRecord(id, handle string, events int64) aggregation.PersistedRecord {
	return aggregation.PersistedRecord{
		ID: id,
		Identity: aggregation.Identity{
			GroupKey:    handle,
			PeriodStart: day("2025-01-01"),
			PeriodEnd:   day("2025-03-15"),
		},
		Metrics: aggregation.Metrics{aggregation.MetricEvents: events},
	}
}

func TestReconcile_PartitionsCreatesAndUpdates(t *testing.T) {
	computed := []aggregation.AggregateRow{
		windowRow("c", 3),
		windowRow("a", 1),
		windowRow("b", 2),
	}
	persisted := []aggregation.PersistedRecord{
		windowRecord("rec-b", "b", 9),
	}

	plan := Reconcile(computed, persisted, Options{Format: aggregation.KeyHandleRange})

	require.Len(t, plan.ToCreate, 2)
	assert.Equal(t, "c", plan.ToCreate[0].GroupKey)
	assert.Equal(t, "a", plan.ToCreate[1].GroupKey)

	require.Len(t, plan.ToUpdate, 1)
	assert.Equal(t, "rec-b", plan.ToUpdate[0].ID)
	assert.Equal(t, "b-1/1/25-3/15/25", plan.ToUpdate[0].Key)
	assert.Equal(t, int64(2), plan.ToUpdate[0].Row.Metrics[aggregation.MetricEvents])

	assert.Empty(t, plan.ToZero)
	assert.Empty(t, plan.Warnings)
}

func TestReconcile_EveryComputedRowLandsOnce(t *testing.T) {
	var computed []aggregation.AggregateRow
	var persisted []aggregation.PersistedRecord
	for i, h := range []string{"a", "b", "c", "d", "e", "f"} {
		computed = append(computed, windowRow(h, int64(i)))
		if i%2 == 0 {
			persisted = append(persisted, windowRecord("rec-"+h, h, 0))
		}
	}

	plan := Reconcile(computed, persisted, Options{Format: aggregation.KeyHandleRange, DetectStaleness: true})

	seen := map[string]int{}
	for _, r := range plan.ToCreate {
		seen[r.GroupKey]++
	}
	for _, u := range plan.ToUpdate {
		seen[u.Row.GroupKey]++
	}
	require.Len(t, seen, len(computed))
	for h, n := range seen {
		assert.Equal(t, 1, n, h)
	}
	assert.Empty(t, plan.ToZero)
}

func TestReconcile_StaleRecordIsZeroedWithTotalRefreshed(t *testing.T) {
	stale := aggregation.PersistedRecord{
		ID: "recX",
		Identity: aggregation.Identity{
			GroupKey:    "X",
			PeriodStart: day("2025-01-01"),
			PeriodEnd:   day("2025-03-15"),
		},
		Metrics: aggregation.Metrics{
			aggregation.MetricCount:    4,
			aggregation.MetricAdvanced: 1,
			"total_count":              10,
		},
	}
	computed := []aggregation.AggregateRow{windowRow("Y", 7)}

	plan := Reconcile(computed, []aggregation.PersistedRecord{stale}, Options{
		Format:          aggregation.KeyHandleRange,
		DetectStaleness: true,
		ZeroMetrics:     []string{aggregation.MetricRejected},
		TotalMetric:     "total_count",
		GrandTotal:      12,
	})

	require.Len(t, plan.ToZero, 1)
	z := plan.ToZero[0]
	assert.Equal(t, "recX", z.ID)
	assert.Equal(t, "X-1/1/25-3/15/25", z.Key)
	assert.Equal(t, aggregation.Metrics{
		aggregation.MetricCount:    0,
		aggregation.MetricAdvanced: 0,
		aggregation.MetricRejected: 0,
		"total_count":              12,
	}, z.Row.Metrics)
	assert.Equal(t, "X", z.Row.GroupKey)
	assert.Equal(t, day("2025-03-15"), z.Row.PeriodEnd)

	// The snapshot is read-only.
	assert.Equal(t, int64(4), stale.Metrics[aggregation.MetricCount])
}

func TestReconcile_StalenessOffLeavesRecordsAlone(t *testing.T) {
	plan := Reconcile(
		[]aggregation.AggregateRow{windowRow("Y", 1)},
		[]aggregation.PersistedRecord{windowRecord("recX", "X", 5)},
		Options{Format: aggregation.KeyHandleRange},
	)
	assert.Empty(t, plan.ToZero)
	assert.Len(t, plan.ToCreate, 1)
}

func TestReconcile_AlreadyZeroedRecordIsSkipped(t *testing.T) {
	rec := windowRecord("recX", "X", 0)
	rec.Metrics["total_count"] = 12

	plan := Reconcile(nil, []aggregation.PersistedRecord{rec}, Options{
		Format:          aggregation.KeyHandleRange,
		DetectStaleness: true,
		TotalMetric:     "total_count",
		GrandTotal:      12,
	})
	assert.Empty(t, plan.ToZero)

	plan = Reconcile(nil, []aggregation.PersistedRecord{rec}, Options{
		Format:          aggregation.KeyHandleRange,
		DetectStaleness: true,
		TotalMetric:     "total_count",
		GrandTotal:      13,
	})
	require.Len(t, plan.ToZero, 1)
	assert.Equal(t, int64(13), plan.ToZero[0].Row.Metrics["total_count"])
}

func TestReconcile_DuplicatePersistedKeyLastWins(t *testing.T) {
	persisted := []aggregation.PersistedRecord{
		windowRecord("first", "a", 1),
		windowRecord("second", "a", 2),
	}

	plan := Reconcile([]aggregation.AggregateRow{windowRow("a", 5)}, persisted, Options{
		Format:          aggregation.KeyHandleRange,
		DetectStaleness: true,
	})

	require.Len(t, plan.ToUpdate, 1)
	assert.Equal(t, "second", plan.ToUpdate[0].ID)

	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnDuplicateKey, plan.Warnings[0].Kind)
	assert.Equal(t, "second", plan.Warnings[0].RecordID)

	// The shadowed record is never matched, so it is zeroed.
	require.Len(t, plan.ToZero, 1)
	assert.Equal(t, "first", plan.ToZero[0].ID)
}

func TestReconcile_UnindexableRecordsAreSkipped(t *testing.T) {
	broken := aggregation.PersistedRecord{
		ID:       "broken",
		Identity: aggregation.Identity{GroupKey: "a"},
		Metrics:  aggregation.Metrics{aggregation.MetricEvents: 3},
	}

	plan := Reconcile([]aggregation.AggregateRow{windowRow("a", 1)}, []aggregation.PersistedRecord{broken}, Options{
		Format:          aggregation.KeyHandleRange,
		DetectStaleness: true,
	})

	assert.Len(t, plan.ToCreate, 1)
	assert.Empty(t, plan.ToUpdate)
	assert.Empty(t, plan.ToZero)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnUnindexableRecord, plan.Warnings[0].Kind)
}

func TestReconcile_UnkeyedComputedRowIsCreated(t *testing.T) {
	row := aggregation.AggregateRow{GroupKey: "a", Metrics: aggregation.Metrics{aggregation.MetricEvents: 1}}
	persisted := []aggregation.PersistedRecord{{
		ID:       "rec",
		Identity: aggregation.Identity{GroupKey: "a", Date: day("2025-01-01")},
	}}

	plan := Reconcile([]aggregation.AggregateRow{row}, persisted, Options{Format: aggregation.KeyHandleDate})

	require.Len(t, plan.ToCreate, 1)
	assert.Empty(t, plan.ToUpdate)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnUnkeyedRow, plan.Warnings[0].Kind)
}

func TestReconcile_DuplicateComputedKeyWarns(t *testing.T) {
	plan := Reconcile(
		[]aggregation.AggregateRow{windowRow("a", 1), windowRow("a", 2)},
		nil,
		Options{Format: aggregation.KeyHandleRange},
	)
	assert.Len(t, plan.ToCreate, 2)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnDuplicateComputed, plan.Warnings[0].Kind)
}

func TestReconcile_DailyKeyMatchesAcrossDays(t *testing.T) {
	computed := []aggregation.AggregateRow{
		{GroupKey: "A", Date: day("2025-01-01"), Metrics: aggregation.Metrics{aggregation.MetricCount: 1}},
		{GroupKey: "A", Date: day("2025-01-02"), Metrics: aggregation.Metrics{aggregation.MetricCount: 2}},
	}
	persisted := []aggregation.PersistedRecord{{
		ID:       "a2",
		Identity: aggregation.Identity{GroupKey: "A", Date: day("2025-01-02")},
	}}

	plan := Reconcile(computed, persisted, Options{Format: aggregation.KeyHandleDate})

	require.Len(t, plan.ToCreate, 1)
	assert.Equal(t, day("2025-01-01"), plan.ToCreate[0].Date)
	require.Len(t, plan.ToUpdate, 1)
	assert.Equal(t, "A-1/2/25", plan.ToUpdate[0].Key)
}

func TestReconcile_Deterministic(t *testing.T) {
	computed := []aggregation.AggregateRow{windowRow("a", 1), windowRow("b", 2), windowRow("c", 3)}
	persisted := []aggregation.PersistedRecord{
		windowRecord("r1", "b", 0),
		windowRecord("r2", "z", 4),
		windowRecord("r3", "y", 5),
		windowRecord("r4", "z", 6),
	}
	opts := Options{Format: aggregation.KeyHandleRange, DetectStaleness: true, TotalMetric: "total", GrandTotal: 6}

	first, err := json.Marshal(Reconcile(computed, persisted, opts))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(Reconcile(computed, persisted, opts))
		require.NoError(t, err)
		require.JSONEq(t, string(first), string(again))
		require.Equal(t, string(first), string(again))
	}
}

func TestReconcile_ZeroOrderFollowsSnapshot(t *testing.T) {
	persisted := []aggregation.PersistedRecord{
		windowRecord("r3", "c", 1),
		windowRecord("r1", "a", 1),
		windowRecord("r2", "b", 1),
	}
	plan := Reconcile(nil, persisted, Options{Format: aggregation.KeyHandleRange, DetectStaleness: true})

	require.Len(t, plan.ToZero, 3)
	assert.Equal(t, []string{"r3", "r1", "r2"}, []string{plan.ToZero[0].ID, plan.ToZero[1].ID, plan.ToZero[2].ID})
}
