package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// DefaultViewURL is the public page that renders a table.
const DefaultViewURL = "https://fusiontables.google.com/DataSource"

// TableClient exposes table operations for one active table. Rebinding
// switches the table and keeps the Executor, and with it the authorized
// transport.
type TableClient struct {
	exec    *Executor
	tableID string
	viewURL string
	logger  *slog.Logger
}

// TableOption customizes a TableClient.
type TableOption func(*TableClient)

// WithViewURL overrides DefaultViewURL.
func WithViewURL(u string) TableOption {
	return func(c *TableClient) {
		if u != "" {
			c.viewURL = u
		}
	}
}

// NewTableClient returns a client bound to tableID, which may be empty
// until Rebind.
func NewTableClient(exec *Executor, tableID string, opts ...TableOption) *TableClient {
	c := &TableClient{
		exec:    exec,
		tableID: tableID,
		viewURL: DefaultViewURL,
		logger:  exec.logger,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// Rebind makes tableID the active table and returns c.
func (c *TableClient) Rebind(tableID string) *TableClient {
	c.logger.Debug("table bound", slog.String("table_id", tableID))
	c.tableID = tableID

	return c
}

// TableID returns the active table.
func (c *TableClient) TableID() string {
	return c.tableID
}

// ViewURL returns the public page of the active table.
func (c *TableClient) ViewURL() string {
	return c.viewURL + "?" + url.Values{"docid": {c.tableID}}.Encode()
}

// Table describes a remote table.
type Table struct {
	Kind         string `json:"kind"`
	TableID      string `json:"tableId"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsExportable bool   `json:"isExportable"`
}

// tablePath returns /tables/<id><suffix> for the active table.
func (c *TableClient) tablePath(suffix string) (string, error) {
	if c.tableID == "" {
		return "", ErrNoTable
	}

	return "/tables/" + url.PathEscape(c.tableID) + suffix, nil
}

// CopyTable duplicates the active table and returns the new table's id.
func (c *TableClient) CopyTable(ctx context.Context) (string, error) {
	path, err := c.tablePath("/copy")
	if err != nil {
		return "", err
	}

	res, err := c.exec.Execute(ctx, &RequestDescriptor{
		Name:   "copy_table",
		Method: http.MethodPost,
		Path:   path,
	})
	if err != nil {
		return "", err
	}

	id := res.String("tableId")
	if id == "" {
		return "", fmt.Errorf("%w: copy_table: response has no tableId", ErrMalformedResponse)
	}

	c.logger.Info("table copied",
		slog.String("table_id", c.tableID),
		slog.String("copy_id", id),
	)

	return id, nil
}

// ListTables returns every table visible to the credential, all pages
// merged.
func (c *TableClient) ListTables(ctx context.Context) ([]Table, error) {
	res, err := c.exec.Execute(ctx, &RequestDescriptor{
		Name:   "list_tables",
		Method: http.MethodGet,
		Path:   "/tables",
	})
	if err != nil {
		return nil, err
	}

	var page tableList
	if err := res.Decode(&page); err != nil {
		return nil, err
	}

	if page.Items == nil {
		return []Table{}, nil
	}

	return page.Items, nil
}

type tableList struct {
	Items         []Table `json:"items"`
	NextPageToken string  `json:"nextPageToken"`
}
