package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aevon-lab/attribution-rollup/internal/lock"
)

// ErrRunInProgress is returned when another run holds the output table.
var ErrRunInProgress = errors.New("a run is already writing this table")

// Executor runs one variant. Runner and Guard both implement it.
type Executor interface {
	Run(ctx context.Context, v *Variant, params RunParams) (RunResult, error)
}

// Guard serializes writes per output table. Identical concurrent triggers
// share one run; a different run against a held table fails fast with
// ErrRunInProgress. Dry runs never take the table lock.
type Guard struct {
	next   Executor
	locker lock.Locker
	group  singleflight.Group
}

func NewGuard(next Executor, locker lock.Locker) *Guard {
	return &Guard{next: next, locker: locker}
}

// Run executes through the guard. Params are validated before the table
// lock is taken. Callers sharing a run all observe the context of the
// first one.
func (g *Guard) Run(ctx context.Context, v *Variant, params RunParams) (RunResult, error) {
	if _, err := v.ResolveWindow(params, time.Now()); err != nil {
		return RunResult{Variant: v.Name, Table: v.Table, DryRun: params.DryRun}, err
	}
	key := v.Name + "|" + params.Start + "|" + params.End + "|" + strconv.FormatBool(params.DryRun)

	res, err, _ := g.group.Do(key, func() (any, error) {
		if params.DryRun {
			return g.next.Run(ctx, v, params)
		}
		release, err := g.locker.TryLock(ctx, v.Table)
		if errors.Is(err, lock.ErrHeld) {
			return RunResult{Variant: v.Name, Table: v.Table}, fmt.Errorf("table %s: %w", v.Table, ErrRunInProgress)
		}
		if err != nil {
			return RunResult{Variant: v.Name, Table: v.Table}, err
		}
		defer release()
		return g.next.Run(ctx, v, params)
	})
	return res.(RunResult), err
}
