package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseQuerier runs queries directly against ClickHouse, for events
// exported out of PostHog.
type ClickHouseQuerier struct {
	conn driver.Conn
}

// ClickHouseOptions configures OpenClickHouse.
type ClickHouseOptions struct {
	Addrs       []string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// OpenClickHouse connects and pings.
func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (*ClickHouseQuerier, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addrs,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	slog.Info("[ClickHouse] Connected", "addrs", opts.Addrs, "database", opts.Database)
	return NewClickHouseQuerier(conn), nil
}

// NewClickHouseQuerier wraps an open connection.
func NewClickHouseQuerier(conn driver.Conn) *ClickHouseQuerier {
	return &ClickHouseQuerier{conn: conn}
}

// RunQuery scans every row into values of each column's scan type. Nullable
// columns yield nil for NULL.
func (q *ClickHouseQuerier) RunQuery(ctx context.Context, query string) ([][]any, error) {
	rows, err := q.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query: %w", err)
	}
	defer rows.Close()

	types := rows.ColumnTypes()
	var out [][]any
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("clickhouse: scan row %d: %w", len(out), err)
		}
		row := make([]any, len(dest))
		for i, d := range dest {
			row[i] = deref(d)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the connection.
func (q *ClickHouseQuerier) Close() error {
	return q.conn.Close()
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
