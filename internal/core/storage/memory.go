package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryTableStore is an in-memory TableStore. Records keep insertion order.
// Useful for dry runs and tests.
type MemoryTableStore struct {
	mu     sync.RWMutex
	tables map[string][]Record
}

// NewMemoryTableStore creates an empty store.
func NewMemoryTableStore() *MemoryTableStore {
	return &MemoryTableStore{tables: make(map[string][]Record)}
}

func (s *MemoryTableStore) FetchRecords(_ context.Context, table string, fields []string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.tables[table]
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, Record{ID: r.ID, Fields: Project(r.Fields, fields)})
	}
	return out, nil
}

func (s *MemoryTableStore) CreateRecords(_ context.Context, table string, rows []map[string]any) ([]string, error) {
	if len(rows) > MaxBatchSize {
		return nil, fmt.Errorf("create %d records in %s: %w", len(rows), table, ErrBatchTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(rows))
	for _, fields := range rows {
		id := uuid.NewString()
		s.tables[table] = append(s.tables[table], Record{ID: id, Fields: Project(fields, nil)})
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemoryTableStore) UpdateRecords(_ context.Context, table string, records []Record) error {
	if len(records) > MaxBatchSize {
		return fmt.Errorf("update %d records in %s: %w", len(records), table, ErrBatchTooLarge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.tables[table]
	index := make(map[string]int, len(stored))
	for i, r := range stored {
		index[r.ID] = i
	}
	// Validate the whole batch first so a bad id leaves the table untouched.
	for _, r := range records {
		if _, ok := index[r.ID]; !ok {
			return fmt.Errorf("update %s/%s: %w", table, r.ID, ErrRecordNotFound)
		}
	}
	for _, r := range records {
		target := stored[index[r.ID]].Fields
		for k, v := range r.Fields {
			target[k] = v
		}
	}
	return nil
}

// Seed appends records as-is, keeping their ids.
func (s *MemoryTableStore) Seed(table string, records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.tables[table] = append(s.tables[table], Record{ID: r.ID, Fields: Project(r.Fields, nil)})
	}
}

// Len returns the number of records in table.
func (s *MemoryTableStore) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}
