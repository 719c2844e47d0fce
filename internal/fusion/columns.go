package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ColumnTypeNumber is the type given to inserted columns.
const ColumnTypeNumber = "NUMBER"

// Column describes one column of a table.
type Column struct {
	Kind     string `json:"kind"`
	ColumnID int    `json:"columnId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// ColumnResult is the outcome of inserting one column.
type ColumnResult struct {
	Name   string
	Column *Column
	Err    error
}

type columnInsert struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type columnList struct {
	Items []Column `json:"items"`
}

// ListColumns returns the active table's columns in table order. A table
// with no columns yields an empty slice.
func (c *TableClient) ListColumns(ctx context.Context) ([]Column, error) {
	path, err := c.tablePath("/columns")
	if err != nil {
		return nil, err
	}

	res, err := c.exec.Execute(ctx, &RequestDescriptor{
		Name:   "list_columns",
		Method: http.MethodGet,
		Path:   path,
	})
	if err != nil {
		return nil, err
	}

	var list columnList
	if err := res.Decode(&list); err != nil {
		return nil, err
	}

	if list.Items == nil {
		return []Column{}, nil
	}

	return list.Items, nil
}

// InsertColumns adds one NUMBER column per name, in order. A failed insert
// does not undo earlier ones and does not stop later ones: every name gets a
// ColumnResult and the returned error joins the failures.
func (c *TableClient) InsertColumns(ctx context.Context, names []string) ([]ColumnResult, error) {
	path, err := c.tablePath("/columns")
	if err != nil {
		return nil, err
	}

	results := make([]ColumnResult, 0, len(names))

	var errs []error

	for _, name := range names {
		r := ColumnResult{Name: name}

		r.Column, r.Err = c.insertColumn(ctx, path, name)
		if r.Err != nil {
			c.logger.Warn("column insert failed",
				slog.String("table_id", c.tableID),
				slog.String("column", name),
				slog.String("error", r.Err.Error()),
			)

			errs = append(errs, fmt.Errorf("insert column %q: %w", name, r.Err))
		}

		results = append(results, r)
	}

	return results, errors.Join(errs...)
}

func (c *TableClient) insertColumn(ctx context.Context, path, name string) (*Column, error) {
	res, err := c.exec.Execute(ctx, &RequestDescriptor{
		Name:   "insert_columns",
		Method: http.MethodPost,
		Path:   path,
		Body:   columnInsert{Name: name, Type: ColumnTypeNumber},
	})
	if err != nil {
		return nil, err
	}

	var col Column
	if err := res.Decode(&col); err != nil {
		return nil, err
	}

	return &col, nil
}
