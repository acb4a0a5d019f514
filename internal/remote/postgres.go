package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/openpoi/placecache/internal/core/observability"
)

// PostgresSource implements RowSource over a Postgres connection pool.
type PostgresSource struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresSource{db: db}, nil
}

func (s *PostgresSource) Close() error { return s.db.Close() }

func (s *PostgresSource) Select(ctx context.Context, table string, columns []string, limit int) ([]Row, error) {
	cols := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = pq.QuoteIdentifier(c)
		}
		cols = strings.Join(quoted, ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM %s", cols, pq.QuoteIdentifier(table))
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q)
	observability.ObserveUpstreamLatency("postgres", time.Since(start).Seconds())
	if err != nil {
		return nil, asRowError(err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, asRowError(err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, asRowError(err)
		}
		row := make(Row, len(names))
		for i, name := range names {
			if b, ok := vals[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, asRowError(err)
	}
	return out, nil
}

func asRowError(err error) *RowError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &RowError{Code: string(pqErr.Code), Message: pqErr.Message}
	}
	return &RowError{Message: err.Error()}
}
