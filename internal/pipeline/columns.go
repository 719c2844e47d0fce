package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eternadata/ftables-go/internal/fusion"
)

// ErrEmptyHeader is returned when there are no local column names to check.
var ErrEmptyHeader = errors.New("pipeline: no local column names")

// ColumnLister lists a table's columns.
type ColumnLister interface {
	ListColumns(ctx context.Context) ([]fusion.Column, error)
}

// ColumnEditor lists and inserts columns.
type ColumnEditor interface {
	ColumnLister
	InsertColumns(ctx context.Context, names []string) ([]fusion.ColumnResult, error)
}

// ColumnStatus reports whether one local column exists remotely.
type ColumnStatus struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

// Verification compares local column names with a table's columns.
type Verification struct {
	Columns []ColumnStatus `json:"columns"`
	Missing []string       `json:"missing"`
}

// VerifyColumns checks every local header name against the remote columns.
// A remote column named with the local name in double quotes also counts.
func VerifyColumns(ctx context.Context, c ColumnLister, header []string) (*Verification, error) {
	if len(header) == 0 {
		return nil, ErrEmptyHeader
	}

	remote, err := c.ListColumns(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(remote))
	for _, col := range remote {
		names[col.Name] = true
	}

	v := &Verification{Columns: make([]ColumnStatus, 0, len(header))}

	for _, name := range header {
		present := names[name] || names[`"`+name+`"`]
		v.Columns = append(v.Columns, ColumnStatus{Name: name, Present: present})

		if !present {
			v.Missing = append(v.Missing, name)
		}
	}

	return v, nil
}

// InsertMissingColumns verifies header and inserts the missing columns as
// NUMBER columns. Inserts are not transactional: the results report each
// name and the error joins the failures.
func InsertMissingColumns(ctx context.Context, c ColumnEditor, header []string, logger *slog.Logger) (*Verification, []fusion.ColumnResult, error) {
	v, err := VerifyColumns(ctx, c, header)
	if err != nil {
		return nil, nil, err
	}

	if len(v.Missing) == 0 {
		return v, nil, nil
	}

	if logger != nil {
		logger.Info("inserting missing columns", slog.Any("columns", v.Missing))
	}

	results, err := c.InsertColumns(ctx, v.Missing)

	return v, results, err
}
