package fusion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"
)

// nextPageTokenField is the cursor field of paginated responses.
const nextPageTokenField = "nextPageToken"

// RequestDescriptor describes one operation. It is built per call and never
// shared.
type RequestDescriptor struct {
	// Name is the logical operation name used in logs and spans.
	Name   string
	Method string

	// Path is relative to the service base URL, or to the upload URL when
	// Media is set.
	Path  string
	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Media switches the call to a resumable upload.
	Media *Media

	// PageToken is the cursor for the first request.
	PageToken string

	// SinglePage disables cursor following.
	SinglePage bool
}

// Media is the payload of a resumable upload.
type Media struct {
	Reader      io.ReaderAt
	Size        int64
	ContentType string

	// SessionKey identifies the local source so an interrupted upload can be
	// resumed. Empty disables resumption.
	SessionKey string
	ModTime    time.Time
}

// Result is a decoded response object. Numbers are json.Number.
type Result map[string]any

// String returns the string value of key, or "".
func (r Result) String(key string) string {
	s, _ := r[key].(string)

	return s
}

// Items returns the list value of key, or nil.
func (r Result) Items(key string) []any {
	items, _ := r[key].([]any)

	return items
}

// Decode converts r into the typed value v. Untyped numbers stay
// json.Number.
func (r Result) Decode(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return nil
}

// decodeResult parses a response payload. An empty payload is an empty
// Result. A payload that is a JSON string holding a document is decoded a
// second time.
func decodeResult(data []byte) (Result, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Result{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	switch t := v.(type) {
	case map[string]any:
		return Result(t), nil
	case string:
		return decodeResult([]byte(t))
	default:
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrMalformedResponse, v)
	}
}

// mergePage appends page's list fields onto the same-named list fields of
// agg. Fields that are not lists in agg keep the first page's value.
func mergePage(agg, page Result) {
	for k, v := range agg {
		items, ok := v.([]any)
		if !ok {
			continue
		}

		if more, ok := page[k].([]any); ok {
			agg[k] = append(items, more...)
		}
	}
}
