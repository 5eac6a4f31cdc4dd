package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
)

// Pass names reported in ApplyError and metrics.
const (
	PassCreate = "create"
	PassUpdate = "update"
	PassZero   = "zero"
)

// ApplierOptions controls how a plan is written.
type ApplierOptions struct {
	// BatchSize is clamped to 1..storage.MaxBatchSize. Zero means the maximum.
	BatchSize int

	// RequestsPerSecond throttles store calls when positive.
	RequestsPerSecond float64
	Burst             int
}

func (o ApplierOptions) normalized() ApplierOptions {
	n := o
	if n.BatchSize <= 0 || n.BatchSize > storage.MaxBatchSize {
		n.BatchSize = storage.MaxBatchSize
	}
	if n.Burst <= 0 {
		n.Burst = 1
	}
	return n
}

// ApplyResult counts what a plan application wrote.
type ApplyResult struct {
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Zeroed     int      `json:"zeroed"`
	Calls      int      `json:"calls"`
	CreatedIDs []string `json:"created_ids,omitempty"`
}

// ApplyError reports the chunk a pass stopped at. Chunks before it were
// written and are not rolled back.
type ApplyError struct {
	Pass    string
	Chunk   int
	Applied int
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s pass failed at chunk %d after %d rows: %v", e.Pass, e.Chunk, e.Applied, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Applier writes plans to one table of a TableStore, one chunk at a time.
type Applier struct {
	store   storage.TableStore
	table   string
	layout  aggregation.Layout
	opts    ApplierOptions
	limiter *rate.Limiter
}

// NewApplier creates an Applier for table.
func NewApplier(store storage.TableStore, table string, layout aggregation.Layout, opts ApplierOptions) *Applier {
	opts = opts.normalized()
	a := &Applier{
		store:  store,
		table:  table,
		layout: layout.WithDefaults(),
		opts:   opts,
	}
	if opts.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	return a
}

// BatchSize returns the effective chunk size.
func (a *Applier) BatchSize() int { return a.opts.BatchSize }

// Apply runs the create, update and zero passes in that order. Calls are
// sequential. The first failing chunk aborts the run; the returned result
// still counts everything written before it.
func (a *Applier) Apply(ctx context.Context, plan Plan) (ApplyResult, error) {
	var result ApplyResult

	creates := lo.Map(plan.ToCreate, func(row aggregation.AggregateRow, _ int) map[string]any {
		return a.layout.Fields(row)
	})
	for i, chunk := range lo.Chunk(creates, a.opts.BatchSize) {
		if err := a.wait(ctx); err != nil {
			return result, &ApplyError{Pass: PassCreate, Chunk: i, Applied: result.Created, Err: err}
		}
		ids, err := a.store.CreateRecords(ctx, a.table, chunk)
		result.Calls++
		if err != nil {
			return result, &ApplyError{Pass: PassCreate, Chunk: i, Applied: result.Created, Err: err}
		}
		result.Created += len(chunk)
		result.CreatedIDs = append(result.CreatedIDs, ids...)
	}

	updates := lo.Map(plan.ToUpdate, func(u Update, _ int) storage.Record {
		return storage.Record{ID: u.ID, Fields: a.layout.Fields(u.Row)}
	})
	n, err := a.updatePass(ctx, PassUpdate, updates, &result)
	result.Updated += n
	if err != nil {
		return result, err
	}

	// Identity fields of a stale record stay as stored.
	zeroes := lo.Map(plan.ToZero, func(z Zero, _ int) storage.Record {
		fields := make(map[string]any, len(z.Row.Metrics))
		for name, v := range z.Row.Metrics {
			fields[name] = v
		}
		return storage.Record{ID: z.ID, Fields: fields}
	})
	n, err = a.updatePass(ctx, PassZero, zeroes, &result)
	result.Zeroed += n
	if err != nil {
		return result, err
	}

	slog.Info("[Applier] Plan applied",
		"table", a.table,
		"created", result.Created,
		"updated", result.Updated,
		"zeroed", result.Zeroed,
		"calls", result.Calls,
	)
	return result, nil
}

func (a *Applier) updatePass(ctx context.Context, pass string, records []storage.Record, result *ApplyResult) (int, error) {
	applied := 0
	for i, chunk := range lo.Chunk(records, a.opts.BatchSize) {
		if err := a.wait(ctx); err != nil {
			return applied, &ApplyError{Pass: pass, Chunk: i, Applied: applied, Err: err}
		}
		err := a.store.UpdateRecords(ctx, a.table, chunk)
		result.Calls++
		if err != nil {
			slog.Error("[Applier] Chunk failed", "table", a.table, "pass", pass, "chunk", i, "error", err)
			return applied, &ApplyError{Pass: pass, Chunk: i, Applied: applied, Err: err}
		}
		applied += len(chunk)
	}
	return applied, nil
}

func (a *Applier) wait(ctx context.Context) error {
	if a.limiter == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}
