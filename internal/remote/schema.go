package remote

import "context"

// ReviewSchema resolves where reviews live. Deployments disagree on both
// the table name and the join column, so both are expressed as ordered
// candidate lists tried in sequence; the first accessible match wins.
type ReviewSchema struct {
	Tables     []string
	JoinFields []string
}

func DefaultReviewSchema() ReviewSchema {
	return ReviewSchema{
		Tables:     []string{"place_reviews", "reviews"},
		JoinFields: []string{"place_id", "placeId", "place", "placeUuid"},
	}
}

// ResolveRows queries review-table candidates in order and returns the
// rows of the first table that answers, along with its name. Every
// candidate erroring yields the last error.
func (s ReviewSchema) ResolveRows(ctx context.Context, src RowSource, limit int) (string, []Row, error) {
	var lastErr error
	for _, table := range s.Tables {
		rows, err := src.Select(ctx, table, nil, limit)
		if err != nil {
			lastErr = err
			continue
		}
		return table, rows, nil
	}
	if lastErr == nil {
		lastErr = &RowError{Message: "no review table configured"}
	}
	return "", nil, lastErr
}

// ResolveJoinField picks the join column: the first candidate present in
// any of the sampled rows. With no rows (or no match) the first candidate
// is assumed, so grouping still has a deterministic key.
func (s ReviewSchema) ResolveJoinField(rows []Row) string {
	fallback := "place_id"
	if len(s.JoinFields) > 0 {
		fallback = s.JoinFields[0]
	}
	for _, field := range s.JoinFields {
		for _, row := range rows {
			if row.Has(field) {
				return field
			}
		}
	}
	return fallback
}
