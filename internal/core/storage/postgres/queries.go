package postgres

// SQL queries for the table record store and the run log

const (
	// queryFetchRecords reads one logical table in insertion order.
	queryFetchRecords = `
		SELECT id, fields
		FROM table_records
		WHERE table_name = $1
		ORDER BY seq ASC
	`

	// queryInsertRecord stores a new row. Ids are generated client-side so a
	// batch can report them in input order.
	queryInsertRecord = `
		INSERT INTO table_records (table_name, id, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	// queryMergeRecord merges the supplied fields into the stored document.
	// Keys absent from $3 keep their stored value.
	queryMergeRecord = `
		UPDATE table_records
		SET fields = fields || $3::jsonb, updated_at = $4
		WHERE table_name = $1 AND id = $2
	`

	queryInsertRun = `
		INSERT INTO pipeline_runs (
			id, variant, table_name, params, status,
			created, updated, zeroed, warnings, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	queryLastRun = `
		SELECT
			id, variant, table_name, params, status,
			created, updated, zeroed, warnings, error, started_at, finished_at
		FROM pipeline_runs
		WHERE variant = $1
		ORDER BY started_at DESC
		LIMIT 1
	`
)
