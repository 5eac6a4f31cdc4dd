package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/attribution-rollup/internal/core/aggregation"
	"github.com/aevon-lab/attribution-rollup/internal/core/config"
	"github.com/aevon-lab/attribution-rollup/internal/lock"
)

// blockingExecutor counts calls and blocks each one until release is closed.
type blockingExecutor struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{started: make(chan struct{}, 10), release: make(chan struct{})}
}

func (e *blockingExecutor) Run(_ context.Context, v *Variant, params RunParams) (RunResult, error) {
	e.calls.Add(1)
	e.started <- struct{}{}
	<-e.release
	return RunResult{Variant: v.Name, Table: v.Table, DryRun: params.DryRun}, nil
}

func TestGuard_CollapsesIdenticalTriggers(t *testing.T) {
	exec := newBlockingExecutor()
	g := NewGuard(exec, lock.NewLocalLocker())
	v := &Variant{Name: "posthog_handles", Table: "PostHog data", DateInput: aggregation.DateStyleUS}

	var wg sync.WaitGroup
	results := make([]RunResult, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = g.Run(context.Background(), v, RunParams{})
	}()
	<-exec.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = g.Run(context.Background(), v, RunParams{})
	}()
	// Give the second caller time to join the in-flight run.
	time.Sleep(50 * time.Millisecond)
	close(exec.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, results[0], results[1])
}

func TestGuard_RejectsSecondRunOnSameTable(t *testing.T) {
	exec := newBlockingExecutor()
	g := NewGuard(exec, lock.NewLocalLocker())
	all := &Variant{Name: "posthog_handles", Table: "PostHog data", DateInput: aggregation.DateStyleUS}
	other := &Variant{Name: "posthog_handles_v2", Table: "PostHog data", DateInput: aggregation.DateStyleUS}

	done := make(chan error, 1)
	go func() {
		_, err := g.Run(context.Background(), all, RunParams{})
		done <- err
	}()
	<-exec.started

	_, err := g.Run(context.Background(), other, RunParams{})
	require.ErrorIs(t, err, ErrRunInProgress)

	// Dry runs skip the table lock.
	dry := make(chan error, 1)
	go func() {
		_, err := g.Run(context.Background(), other, RunParams{DryRun: true})
		dry <- err
	}()
	<-exec.started

	close(exec.release)
	require.NoError(t, <-done)
	require.NoError(t, <-dry)

	// The lock is free again.
	_, err = g.Run(context.Background(), other, RunParams{})
	require.NoError(t, err)
}

// countingLocker records every lock attempt.
type countingLocker struct {
	attempts atomic.Int32
}

func (l *countingLocker) TryLock(context.Context, string) (func(), error) {
	l.attempts.Add(1)
	return func() {}, nil
}

func TestGuard_InvalidParamsFailBeforeLocking(t *testing.T) {
	exec := newBlockingExecutor()
	locker := &countingLocker{}
	g := NewGuard(exec, locker)
	v := &Variant{Name: "handles_range", Table: "Handles range", Window: WindowRange, DateInput: aggregation.DateStyleUS}

	res, err := g.Run(context.Background(), v, RunParams{Start: "bogus", End: "alsobogus"})

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
	assert.Equal(t, "handles_range", res.Variant)
	assert.Zero(t, locker.attempts.Load())
	assert.Zero(t, exec.calls.Load())
}
