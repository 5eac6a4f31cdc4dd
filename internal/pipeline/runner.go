// Package pipeline runs configured aggregate variants end to end: compute
// rows, snapshot the output table, reconcile and apply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/aevon-lab/attribution-rollup/internal/analytics"
	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/config"
	"github.com/aevon-lab/attribution-rollup/internal/core/reconcile"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
	"github.com/aevon-lab/attribution-rollup/internal/metrics"
)

// WarnUnusableFact: a fact record has no readable date and was skipped.
const WarnUnusableFact reconcile.WarningKind = "unusable_fact"

// ErrNoQuerier is returned when an analytics variant runs without a
// configured analytics backend.
var ErrNoQuerier = errors.New("no analytics backend configured")

// RunParams are the per-run inputs. Start and End are in the variant's date
// input style; when both are empty the variant's default window applies.
type RunParams struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	DryRun bool   `json:"dry_run"`
}

// RunResult summarizes one run.
type RunResult struct {
	RunID    string                `json:"run_id"`
	Variant  string                `json:"variant"`
	Table    string                `json:"table"`
	Start    string                `json:"start,omitempty"`
	End      string                `json:"end,omitempty"`
	DryRun   bool                  `json:"dry_run"`
	Computed int                   `json:"computed"`
	Snapshot int                   `json:"snapshot"`
	Applied  reconcile.ApplyResult `json:"applied"`
	Warnings []reconcile.Warning   `json:"warnings,omitempty"`
	Duration time.Duration         `json:"duration_ns"`

	// Plan is only returned for dry runs.
	Plan *reconcile.Plan `json:"plan,omitempty"`
}

// Runner executes variants. One Run is strictly sequential.
type Runner struct {
	querier analytics.Querier
	store   storage.TableStore
	runs    storage.RunLog
	metrics *metrics.Collectors
	opts    reconcile.ApplierOptions
	now     func() time.Time
}

// NewRunner creates a Runner. querier may be nil when only store-sourced
// variants run; runs and collectors may be nil.
func NewRunner(
	querier analytics.Querier,
	store storage.TableStore,
	runs storage.RunLog,
	collectors *metrics.Collectors,
	opts reconcile.ApplierOptions,
) *Runner {
	return &Runner{
		querier: querier,
		store:   store,
		runs:    runs,
		metrics: collectors,
		opts:    opts,
		now:     time.Now,
	}
}

// Run validates params, computes the variant's rows, reconciles them with
// the output table and applies the plan. Parameter problems are returned as
// *config.ValidationError before any I/O.
func (r *Runner) Run(ctx context.Context, v *Variant, params RunParams) (RunResult, error) {
	started := r.now()
	result := RunResult{
		RunID:   uuid.NewString(),
		Variant: v.Name,
		Table:   v.Table,
		DryRun:  params.DryRun,
	}

	win, err := v.ResolveWindow(params, r.now())
	if err != nil {
		return result, err
	}
	if !win.IsZero() {
		result.Start = aggregation.FormatDay(win.Start)
		result.End = aggregation.FormatDay(win.End)
	}

	slog.Info("[Pipeline] Run starting",
		"run_id", result.RunID,
		"variant", v.Name,
		"table", v.Table,
		"start", result.Start,
		"end", result.End,
		"dry_run", params.DryRun,
	)

	err = r.execute(ctx, v, win, &result)
	result.Duration = r.now().Sub(started)
	r.finish(ctx, v, params, started, &result, err)
	return result, err
}

func (r *Runner) execute(ctx context.Context, v *Variant, win config.RunWindow, result *RunResult) error {
	var (
		rows     []aggregation.AggregateRow
		warnings []reconcile.Warning
		err      error
	)
	switch v.Source {
	case SourceAnalytics:
		rows, err = r.queryRows(ctx, v, win)
	case SourceStore:
		rows, warnings, err = r.factRows(ctx, v, win)
	default:
		err = fmt.Errorf("variant %s: unsupported source %q", v.Name, v.Source)
	}
	if err != nil {
		return err
	}
	grandTotal := applyTotals(v, rows)
	result.Computed = len(rows)

	layout := v.Layout()
	records, err := r.store.FetchRecords(ctx, v.Table, layout.FieldNames())
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", v.Table, err)
	}
	persisted := make([]aggregation.PersistedRecord, 0, len(records))
	for _, rec := range records {
		p := layout.Persisted(rec.ID, rec.Fields)
		if !inScope(v, win, p.Identity) {
			continue
		}
		persisted = append(persisted, p)
	}
	result.Snapshot = len(persisted)

	plan := reconcile.Reconcile(rows, persisted, reconcile.Options{
		Format:          v.KeyFormat,
		DetectStaleness: v.DetectStaleness,
		ZeroMetrics:     v.ResetMetrics(),
		TotalMetric:     v.TotalMetric,
		GrandTotal:      grandTotal,
	})
	result.Warnings = append(warnings, plan.Warnings...)
	for _, w := range result.Warnings {
		slog.Warn("[Pipeline] Data quality warning",
			"variant", v.Name,
			"kind", w.Kind,
			"key", w.Key,
			"record_id", w.RecordID,
			"message", w.Message,
		)
		r.metrics.AddWarning(v.Name, string(w.Kind))
	}

	slog.Info("[Pipeline] Plan computed",
		"variant", v.Name,
		"computed", len(rows),
		"snapshot", len(persisted),
		"to_create", len(plan.ToCreate),
		"to_update", len(plan.ToUpdate),
		"to_zero", len(plan.ToZero),
		"warnings", len(result.Warnings),
	)

	if result.DryRun {
		result.Plan = &plan
		return nil
	}

	applier := reconcile.NewApplier(r.store, v.Table, layout, r.opts)
	applied, err := applier.Apply(ctx, plan)
	result.Applied = applied
	r.metrics.AddOperations(v.Name, reconcile.PassCreate, applied.Created)
	r.metrics.AddOperations(v.Name, reconcile.PassUpdate, applied.Updated)
	r.metrics.AddOperations(v.Name, reconcile.PassZero, applied.Zeroed)
	if err != nil {
		return fmt.Errorf("apply %s: %w", v.Table, err)
	}
	return nil
}

// finish logs, records and counts a completed run. Failing to record the
// run is logged and never changes the run's outcome.
func (r *Runner) finish(ctx context.Context, v *Variant, params RunParams, started time.Time, result *RunResult, runErr error) {
	status := storage.RunStatusSucceeded
	switch {
	case runErr != nil:
		status = storage.RunStatusFailed
	case params.DryRun:
		status = storage.RunStatusDryRun
	}

	r.metrics.ObserveRun(v.Name, status, result.Duration.Seconds())

	if runErr != nil {
		slog.Error("[Pipeline] Run failed",
			"run_id", result.RunID,
			"variant", v.Name,
			"error", runErr,
			"created", result.Applied.Created,
			"updated", result.Applied.Updated,
			"zeroed", result.Applied.Zeroed,
		)
	} else {
		slog.Info("[Pipeline] Run complete",
			"run_id", result.RunID,
			"variant", v.Name,
			"status", status,
			"created", result.Applied.Created,
			"updated", result.Applied.Updated,
			"zeroed", result.Applied.Zeroed,
			"duration", result.Duration,
		)
	}

	if r.runs == nil {
		return
	}
	rec := storage.RunRecord{
		ID:      result.RunID,
		Variant: v.Name,
		Table:   v.Table,
		Params: map[string]string{
			"start":   result.Start,
			"end":     result.End,
			"dry_run": strconv.FormatBool(params.DryRun),
		},
		Status:     status,
		Created:    result.Applied.Created,
		Updated:    result.Applied.Updated,
		Zeroed:     result.Applied.Zeroed,
		Warnings:   len(result.Warnings),
		StartedAt:  started.UTC(),
		FinishedAt: started.Add(result.Duration).UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// Record even when the run's own context was canceled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.runs.RecordRun(recordCtx, rec); err != nil {
		slog.Warn("[Pipeline] Failed to record run", "run_id", result.RunID, "error", err)
	}
}

func (r *Runner) queryRows(ctx context.Context, v *Variant, win config.RunWindow) ([]aggregation.AggregateRow, error) {
	if r.querier == nil {
		return nil, fmt.Errorf("variant %s: %w", v.Name, ErrNoQuerier)
	}
	query, err := v.query.Render(win)
	if err != nil {
		return nil, err
	}
	raw, err := r.querier.RunQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("variant %s: query: %w", v.Name, err)
	}

	var rc aggregation.RowContext
	if v.Window == WindowRange {
		rc = aggregation.RowContext{PeriodStart: win.Start, PeriodEnd: win.End}
	}
	n := v.normalizer()
	rows := make([]aggregation.AggregateRow, 0, len(raw))
	for i, values := range raw {
		row, err := n.Normalize(values, rc)
		if err != nil {
			return nil, fmt.Errorf("variant %s: result row %d: %w", v.Name, i, err)
		}
		rows = append(rows, row)
	}
	return aggregation.MergeByKey(rows, v.KeyFormat), nil
}

func (r *Runner) factRows(ctx context.Context, v *Variant, win config.RunWindow) ([]aggregation.AggregateRow, []reconcile.Warning, error) {
	f := v.Facts
	fields := []string{f.DateField, f.GroupsField}
	if f.StatusField != "" {
		fields = append(fields, f.StatusField)
	}
	records, err := r.store.FetchRecords(ctx, f.Table, fields)
	if err != nil {
		return nil, nil, fmt.Errorf("variant %s: read facts from %s: %w", v.Name, f.Table, err)
	}

	var (
		facts    = make([]aggregation.Fact, 0, len(records))
		warnings []reconcile.Warning
		classify = v.classifier()
	)
	for _, rec := range records {
		day, err := aggregation.ParseDay(rec.Fields[f.DateField])
		if err != nil {
			warnings = append(warnings, reconcile.Warning{
				Kind:     WarnUnusableFact,
				RecordID: rec.ID,
				Message:  fmt.Sprintf("fact in %s skipped: %v", f.Table, err),
			})
			continue
		}
		status, _ := rec.Fields[f.StatusField].(string)
		facts = append(facts, aggregation.Fact{
			Date:      day,
			GroupKeys: aggregation.Handles(rec.Fields[f.GroupsField], v.Sentinel, v.LowercaseGroup),
			Outcome:   classify.Classify(status),
		})
	}

	switch v.Mode {
	case ModeCumulative:
		return aggregation.Accumulate(facts, aggregation.AccumulateOptions{From: win.Start, To: win.End}), warnings, nil
	case ModeTotals:
		if !win.IsZero() {
			facts = lo.Filter(facts, func(fct aggregation.Fact, _ int) bool {
				return !fct.Date.Before(win.Start) && !fct.Date.After(win.End)
			})
		}
		rows := aggregation.Totals(facts)
		if v.Window == WindowRange {
			for i := range rows {
				rows[i].PeriodStart, rows[i].PeriodEnd = win.Start, win.End
			}
		}
		return rows, warnings, nil
	default:
		return nil, nil, fmt.Errorf("variant %s: unsupported mode %q", v.Name, v.Mode)
	}
}

// applyTotals writes the per-day total into every row's TotalMetric and
// returns the latest total, used for stale records. The total for a day is
// the "(all)" row's count when present, else the sum of the row counts.
func applyTotals(v *Variant, rows []aggregation.AggregateRow) int64 {
	if v.TotalMetric == "" || v.CountMetric == "" {
		return 0
	}

	type dayTotal struct {
		sum    int64
		all    int64
		hasAll bool
	}
	totals := make(map[time.Time]*dayTotal)
	var latest time.Time
	for _, row := range rows {
		t, ok := totals[row.Date]
		if !ok {
			t = &dayTotal{}
			totals[row.Date] = t
		}
		if row.GroupKey == aggregation.SentinelAll {
			t.all, t.hasAll = row.Metrics[v.CountMetric], true
		} else {
			t.sum += row.Metrics[v.CountMetric]
		}
		if row.Date.After(latest) {
			latest = row.Date
		}
	}
	value := func(t *dayTotal) int64 {
		if t.hasAll {
			return t.all
		}
		return t.sum
	}
	for i := range rows {
		rows[i].Metrics[v.TotalMetric] = value(totals[rows[i].Date])
	}
	if t, ok := totals[latest]; ok {
		return value(t)
	}
	return 0
}

// inScope reports whether a stored record belongs to this run. Range rows
// of other windows and daily rows outside the window are left alone.
func inScope(v *Variant, win config.RunWindow, id aggregation.Identity) bool {
	if win.IsZero() {
		return true
	}
	switch v.Window {
	case WindowRange:
		if id.PeriodStart.IsZero() && id.PeriodEnd.IsZero() {
			return true // unindexable; let reconcile report it
		}
		return id.PeriodStart.Equal(win.Start) && id.PeriodEnd.Equal(win.End)
	case WindowDaily:
		if id.Date.IsZero() {
			return true
		}
		return !id.Date.Before(win.Start) && !id.Date.After(win.End)
	default:
		return true
	}
}
