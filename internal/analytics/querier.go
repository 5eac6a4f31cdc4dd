// Package analytics runs aggregate queries against the analytics backend.
package analytics

import (
	"context"
	"fmt"
)

// Querier runs one query and returns its rows as positional tuples matching
// the query's SELECT projection.
type Querier interface {
	RunQuery(ctx context.Context, query string) ([][]any, error)
}

// QueryError is a non-success response from the analytics backend.
type QueryError struct {
	Status int
	Body   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("analytics query failed with status %d: %s", e.Status, e.Body)
}
