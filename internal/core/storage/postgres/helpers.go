package postgres

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
)

// marshalFields encodes a record's fields as a JSONB document.
// Nil maps encode as an empty object, never as JSON null.
func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return b, nil
}

// unmarshalFields decodes a JSONB document. Numbers stay json.Number so
// integer metrics survive without a float round trip.
func unmarshalFields(doc []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(doc) == 0 {
		return fields, nil
	}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return fields, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecordRow scans an (id, fields) row and projects it to names.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanRecordRow(row scanner, names []string) (storage.Record, error) {
	var (
		id  string
		doc []byte
	)
	if err := row.Scan(&id, &doc); err != nil {
		return storage.Record{}, fmt.Errorf("failed to scan record row: %w", err)
	}
	fields, err := unmarshalFields(doc)
	if err != nil {
		return storage.Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	return storage.Record{ID: id, Fields: storage.Project(fields, names)}, nil
}
