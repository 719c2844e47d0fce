package fusion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// QueryResult is the raw column/row answer to a SELECT.
type QueryResult struct {
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// RunQuery selects columns (all columns when none are given) from the
// active table. A table without rows yields a result with no rows.
func (c *TableClient) RunQuery(ctx context.Context, columns ...string) (*QueryResult, error) {
	if c.tableID == "" {
		return nil, ErrNoTable
	}

	sel := "*"
	if len(columns) > 0 {
		sel = strings.Join(columns, ", ")
	}

	res, err := c.exec.Execute(ctx, &RequestDescriptor{
		Name:   "sql_select",
		Method: http.MethodGet,
		Path:   "/query",
		Query:  url.Values{"sql": {fmt.Sprintf("SELECT %s FROM %s", sel, c.tableID)}},
	})
	if err != nil {
		return nil, err
	}

	var out QueryResult
	if err := res.Decode(&out); err != nil {
		return nil, err
	}

	if out.Columns == nil {
		out.Columns = []string{}
	}

	if out.Rows == nil {
		out.Rows = [][]any{}
	}

	return &out, nil
}

// ColumnIndex returns the position of name in Columns, or -1.
func (r *QueryResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}

	return -1
}

// Unique returns the distinct values of column in first-seen order. One
// distinct value is returned as a single value, anything else as an
// ordered collection.
func (r *QueryResult) Unique(column string) (Values, error) {
	idx := r.ColumnIndex(column)
	if idx < 0 {
		return Values{}, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	seen := make(map[string]bool)

	var distinct []any

	for _, row := range r.Rows {
		if idx >= len(row) {
			continue
		}

		k := fmt.Sprintf("%T:%v", row[idx], row[idx])
		if seen[k] {
			continue
		}

		seen[k] = true
		distinct = append(distinct, row[idx])
	}

	if len(distinct) == 1 {
		return Single(distinct[0]), nil
	}

	return Ordered(distinct...), nil
}
