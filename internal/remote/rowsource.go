// Package remote translates rows from the remote store into normalized
// Place and Review records, resolving the review join despite schema
// drift between deployments.
package remote

import (
	"context"
	"fmt"
)

// Row is one remote record, column name to value.
type Row map[string]any

// RowError is the structured error shape of the remote collaborator.
type RowError struct {
	Code    string
	Message string
}

func (e *RowError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote query: %s", e.Message)
	}
	return fmt.Sprintf("remote query [%s]: %s", e.Code, e.Message)
}

// RowSource is the generic query surface of the remote row store:
// select columns from a named table with an upper row limit. No other
// filtering is pushed to the remote side.
type RowSource interface {
	Select(ctx context.Context, table string, columns []string, limit int) ([]Row, error)
}

// String pulls a column as a string, tolerating byte slices.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Has reports whether the column is present with a non-nil value.
func (r Row) Has(col string) bool {
	v, ok := r[col]
	return ok && v != nil
}
