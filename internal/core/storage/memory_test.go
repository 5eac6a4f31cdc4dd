package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryTableStore_CreateFetchUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTableStore()

	ids, err := s.CreateRecords(ctx, "traffic", []map[string]any{
		{"handle": "a", "events": int64(1), "campaigns": "x"},
		{"handle": "b", "events": int64(2)},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	err = s.UpdateRecords(ctx, "traffic", []Record{{ID: ids[0], Fields: map[string]any{"events": int64(5)}}})
	require.NoError(t, err)

	records, err := s.FetchRecords(ctx, "traffic", []string{"handle", "events", "campaigns"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, ids[0], records[0].ID)
	require.Equal(t, map[string]any{"handle": "a", "events": int64(5), "campaigns": "x"}, records[0].Fields)
	require.Equal(t, map[string]any{"handle": "b", "events": int64(2)}, records[1].Fields)
}

func TestMemoryTableStore_BatchLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTableStore()

	rows := make([]map[string]any, MaxBatchSize+1)
	for i := range rows {
		rows[i] = map[string]any{"handle": fmt.Sprint(i)}
	}
	_, err := s.CreateRecords(ctx, "traffic", rows)
	require.ErrorIs(t, err, ErrBatchTooLarge)
	require.Equal(t, 0, s.Len("traffic"))

	_, err = s.CreateRecords(ctx, "traffic", rows[:MaxBatchSize])
	require.NoError(t, err)

	updates := make([]Record, MaxBatchSize+1)
	err = s.UpdateRecords(ctx, "traffic", updates)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestMemoryTableStore_UpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTableStore()
	s.Seed("traffic", Record{ID: "rec1", Fields: map[string]any{"events": int64(1)}})

	err := s.UpdateRecords(ctx, "traffic", []Record{
		{ID: "rec1", Fields: map[string]any{"events": int64(2)}},
		{ID: "missing", Fields: map[string]any{"events": int64(3)}},
	})
	require.ErrorIs(t, err, ErrRecordNotFound)

	records, err := s.FetchRecords(ctx, "traffic", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), records[0].Fields["events"])
}

func TestProject(t *testing.T) {
	in := map[string]any{"a": 1, "b": 2}
	require.Equal(t, map[string]any{"a": 1}, Project(in, []string{"a", "z"}))

	all := Project(in, nil)
	all["a"] = 9
	require.Equal(t, 1, in["a"])
}
