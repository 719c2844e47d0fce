package fusion

import (
	"context"
	"net/http"
	"strconv"

	"google.golang.org/api/iterator"
)

// TableIterator yields tables one page at a time.
type TableIterator struct {
	ctx      context.Context //nolint:containedctx // iterator.Pageable has no ctx parameter
	client   *TableClient
	items    []Table
	pageInfo *iterator.PageInfo
	nextFunc func() error
}

// Tables returns an iterator over every visible table. Next returns
// iterator.Done after the last one.
func (c *TableClient) Tables(ctx context.Context) *TableIterator {
	it := &TableIterator{ctx: ctx, client: c}
	it.pageInfo, it.nextFunc = iterator.NewPageInfo(it.fetch, it.bufLen, it.takeBuf)

	return it
}

// PageInfo supports pagination. See google.golang.org/api/iterator.
func (it *TableIterator) PageInfo() *iterator.PageInfo {
	return it.pageInfo
}

// Next returns the next table.
func (it *TableIterator) Next() (Table, error) {
	if err := it.nextFunc(); err != nil {
		return Table{}, err
	}

	t := it.items[0]
	it.items = it.items[1:]

	return t, nil
}

func (it *TableIterator) fetch(pageSize int, pageToken string) (string, error) {
	d := &RequestDescriptor{
		Name:       "list_tables",
		Method:     http.MethodGet,
		Path:       "/tables",
		PageToken:  pageToken,
		SinglePage: true,
	}

	if pageSize > 0 {
		d.Query = map[string][]string{"maxResults": {strconv.Itoa(pageSize)}}
	}

	res, err := it.client.exec.Execute(it.ctx, d)
	if err != nil {
		return "", err
	}

	var page tableList
	if err := res.Decode(&page); err != nil {
		return "", err
	}

	it.items = append(it.items, page.Items...)

	return page.NextPageToken, nil
}

func (it *TableIterator) bufLen() int {
	return len(it.items)
}

func (it *TableIterator) takeBuf() any {
	b := it.items
	it.items = nil

	return b
}
