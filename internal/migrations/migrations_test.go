package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_ArePaired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFiles, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected embedded file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestMigrationFiles_CreateStoreTables(t *testing.T) {
	up, err := fs.ReadFile(MigrationFiles, "000001_create_table_records.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS table_records")
	require.Contains(t, string(up), "UNIQUE (table_name, id)")

	runs, err := fs.ReadFile(MigrationFiles, "000002_create_pipeline_runs.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(runs), "CREATE TABLE IF NOT EXISTS pipeline_runs")
}
