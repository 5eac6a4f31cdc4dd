// Package reconcile diffs freshly computed aggregate rows against a store
// snapshot and applies the resulting plan in bounded batches.
package reconcile

import (
	"fmt"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
)

// WarningKind classifies a non-fatal data-quality finding.
type WarningKind string

const (
	// WarnDuplicateKey: two stored records derive the same key. The later one
	// owns the key.
	WarnDuplicateKey WarningKind = "duplicate_key"
	// WarnUnindexableRecord: a stored record derives an empty key.
	WarnUnindexableRecord WarningKind = "unindexable_record"
	// WarnUnkeyedRow: a computed row derives an empty key and is always created.
	WarnUnkeyedRow WarningKind = "unkeyed_row"
	// WarnDuplicateComputed: two computed rows derive the same key.
	WarnDuplicateComputed WarningKind = "duplicate_computed_key"
)

// Warning is a data-quality finding surfaced alongside a plan.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Key      string      `json:"key,omitempty"`
	RecordID string      `json:"record_id,omitempty"`
	Message  string      `json:"message"`
}

// Update pairs a computed row with the stored record it replaces.
type Update struct {
	ID  string                   `json:"id"`
	Key string                   `json:"key"`
	Row aggregation.AggregateRow `json:"row"`
}

// Zero is a stored record that no longer appears in the computation. Row
// holds its identity with every metric reset.
type Zero struct {
	ID  string                   `json:"id"`
	Key string                   `json:"key"`
	Row aggregation.AggregateRow `json:"row"`
}

// Plan is the outcome of one reconciliation. ToCreate and ToUpdate follow
// the order of the computed rows; ToZero follows the order of the snapshot.
type Plan struct {
	ToCreate []aggregation.AggregateRow `json:"to_create"`
	ToUpdate []Update                   `json:"to_update"`
	ToZero   []Zero                     `json:"to_zero"`
	Warnings []Warning                  `json:"warnings,omitempty"`
}

// Options configures a reconciliation.
type Options struct {
	Format aggregation.KeyFormat

	// DetectStaleness emits unmatched stored records in ToZero.
	DetectStaleness bool

	// ZeroMetrics are reset on stale records in addition to the metrics the
	// record already carries.
	ZeroMetrics []string

	// TotalMetric, when set, is written as GrandTotal on stale records
	// instead of being reset.
	TotalMetric string
	GrandTotal  int64
}

// Reconcile partitions computed into creates and updates against persisted,
// and optionally collects stale records for zeroing.
func Reconcile(computed []aggregation.AggregateRow, persisted []aggregation.PersistedRecord, opts Options) Plan {
	var plan Plan

	keys := make([]string, len(persisted))
	index := make(map[string]int, len(persisted))
	for i, rec := range persisted {
		key := aggregation.DeriveKey(opts.Format, rec.Identity)
		keys[i] = key
		if key == "" {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind:     WarnUnindexableRecord,
				RecordID: rec.ID,
				Message:  fmt.Sprintf("stored record %s has incomplete identity fields", rec.ID),
			})
			continue
		}
		if prev, dup := index[key]; dup {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind:     WarnDuplicateKey,
				Key:      key,
				RecordID: rec.ID,
				Message:  fmt.Sprintf("stored records %s and %s share key %q; %s wins", persisted[prev].ID, rec.ID, key, rec.ID),
			})
		}
		index[key] = i
	}

	matched := make([]bool, len(persisted))
	seen := make(map[string]bool, len(computed))
	for _, row := range computed {
		key := aggregation.DeriveKey(opts.Format, row.Identity())
		if key == "" {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind:    WarnUnkeyedRow,
				Message: fmt.Sprintf("computed row %q has incomplete identity fields", row.GroupKey),
			})
			plan.ToCreate = append(plan.ToCreate, row)
			continue
		}
		if seen[key] {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind:    WarnDuplicateComputed,
				Key:     key,
				Message: fmt.Sprintf("computed rows share key %q", key),
			})
		}
		seen[key] = true

		i, ok := index[key]
		if !ok {
			plan.ToCreate = append(plan.ToCreate, row)
			continue
		}
		matched[i] = true
		plan.ToUpdate = append(plan.ToUpdate, Update{ID: persisted[i].ID, Key: key, Row: row})
	}

	if !opts.DetectStaleness {
		return plan
	}

	for i, rec := range persisted {
		if keys[i] == "" || matched[i] {
			continue
		}
		row := zeroRow(rec, opts)
		if sameMetrics(rec.Metrics, row.Metrics) {
			continue
		}
		plan.ToZero = append(plan.ToZero, Zero{ID: rec.ID, Key: keys[i], Row: row})
	}
	return plan
}

// zeroRow resets every metric of rec, and of opts.ZeroMetrics, to 0 and
// refreshes the total metric.
func zeroRow(rec aggregation.PersistedRecord, opts Options) aggregation.AggregateRow {
	row := rec.Row()
	metrics := make(aggregation.Metrics, len(rec.Metrics)+len(opts.ZeroMetrics)+1)
	for name := range rec.Metrics {
		metrics[name] = 0
	}
	for _, name := range opts.ZeroMetrics {
		metrics[name] = 0
	}
	if opts.TotalMetric != "" {
		metrics[opts.TotalMetric] = opts.GrandTotal
	}
	row.Metrics = metrics
	return row
}

// sameMetrics reports whether stored already holds every value of want, so a
// record zeroed by an earlier run is not zeroed again.
func sameMetrics(stored, want aggregation.Metrics) bool {
	for name, w := range want {
		if v, ok := stored[name]; !ok || v != w {
			return false
		}
	}
	return true
}
