package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusDryRun    = "dry_run"
)

// ErrRunNotFound is returned when a variant has no recorded run.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the durable summary of one pipeline run.
type RunRecord struct {
	ID         string            `json:"id"`
	Variant    string            `json:"variant"`
	Table      string            `json:"table"`
	Params     map[string]string `json:"params,omitempty"`
	Status     string            `json:"status"`
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Zeroed     int               `json:"zeroed"`
	Warnings   int               `json:"warnings"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// RunLog records finished runs.
type RunLog interface {
	RecordRun(ctx context.Context, run RunRecord) error
	// LastRun returns the most recently started run of variant.
	LastRun(ctx context.Context, variant string) (RunRecord, error)
}

// MemoryRunLog keeps runs in process memory.
type MemoryRunLog struct {
	mu   sync.Mutex
	runs map[string]RunRecord
}

func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{runs: make(map[string]RunRecord)}
}

func (l *MemoryRunLog) RecordRun(_ context.Context, run RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.runs[run.Variant]; ok && prev.StartedAt.After(run.StartedAt) {
		return nil
	}
	l.runs[run.Variant] = run
	return nil
}

func (l *MemoryRunLog) LastRun(_ context.Context, variant string) (RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[variant]
	if !ok {
		return RunRecord{}, ErrRunNotFound
	}
	return run, nil
}
