package storage

import (
	"context"
	"errors"
)

// MaxBatchSize is the most rows a single create or update call may carry.
const MaxBatchSize = 50

// ErrBatchTooLarge is returned when a write call exceeds MaxBatchSize.
var ErrBatchTooLarge = errors.New("batch exceeds store limit")

// ErrRecordNotFound is returned when an update names an id the table does not hold.
var ErrRecordNotFound = errors.New("record not found")

// Record is one stored row: an opaque id plus its field values.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// TableStore is the persistent table service aggregates are written to.
//
// Updates merge: fields absent from an update keep their stored value.
// Create and update accept at most MaxBatchSize rows per call.
type TableStore interface {
	// FetchRecords returns every record of table, projected to fields.
	// An empty fields list returns all fields.
	FetchRecords(ctx context.Context, table string, fields []string) ([]Record, error)

	// CreateRecords inserts rows and returns their new ids in input order.
	CreateRecords(ctx context.Context, table string, rows []map[string]any) ([]string, error)

	// UpdateRecords merges each record's fields into the stored record with the same id.
	UpdateRecords(ctx context.Context, table string, records []Record) error
}

// Project copies the named fields out of fields. An empty names list
// copies everything.
func Project(fields map[string]any, names []string) map[string]any {
	if len(names) == 0 {
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := fields[n]; ok {
			out[n] = v
		}
	}
	return out
}
