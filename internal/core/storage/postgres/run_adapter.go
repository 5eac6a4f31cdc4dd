package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
)

// RunAdapter implements storage.RunLog using the pipeline_runs table.
type RunAdapter struct {
	db *sql.DB
}

// NewRunAdapter creates a RunAdapter sharing the given connection.
func NewRunAdapter(db *sql.DB) *RunAdapter {
	return &RunAdapter{db: db}
}

// RecordRun inserts run. An empty id is filled in.
func (a *RunAdapter) RecordRun(ctx context.Context, run storage.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	var params []byte
	if len(run.Params) > 0 {
		var err error
		params, err = json.Marshal(run.Params)
		if err != nil {
			return fmt.Errorf("record run: marshal params: %w", err)
		}
	}

	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, queryInsertRun,
		run.ID,
		run.Variant,
		run.Table,
		params,
		run.Status,
		run.Created,
		run.Updated,
		run.Zeroed,
		run.Warnings,
		runErr,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	slog.Debug("[RunAdapter] Recorded run", "variant", run.Variant, "status", run.Status, "run_id", run.ID)
	return nil
}

// LastRun returns the most recently started run of variant, or
// storage.ErrRunNotFound.
func (a *RunAdapter) LastRun(ctx context.Context, variant string) (storage.RunRecord, error) {
	var (
		run    storage.RunRecord
		params []byte
		runErr sql.NullString
	)
	err := a.db.QueryRowContext(ctx, queryLastRun, variant).Scan(
		&run.ID,
		&run.Variant,
		&run.Table,
		&params,
		&run.Status,
		&run.Created,
		&run.Updated,
		&run.Zeroed,
		&run.Warnings,
		&runErr,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RunRecord{}, storage.ErrRunNotFound
	}
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("last run of %s: %w", variant, err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return storage.RunRecord{}, fmt.Errorf("last run of %s: unmarshal params: %w", variant, err)
		}
	}
	run.Error = runErr.String
	return run, nil
}
