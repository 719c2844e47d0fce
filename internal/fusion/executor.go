package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gax "github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eternadata/ftables-go/internal/uploadsession"
)

const (
	// DefaultBaseURL is the table service REST root.
	DefaultBaseURL = "https://www.googleapis.com/fusiontables/v2"
	// DefaultUploadURL is the media upload root.
	DefaultUploadURL = "https://www.googleapis.com/upload/fusiontables/v2"
	// DefaultChunkSize is the resumable upload chunk size.
	DefaultChunkSize = 8 * 1024 * 1024

	clientName    = "ftables"
	clientVersion = "0.3.0"
	tracerName    = "github.com/eternadata/ftables-go/internal/fusion"
)

// SessionStore persists resumable upload sessions. Satisfied by
// *uploadsession.Store.
type SessionStore interface {
	Load(target, localPath string) (*uploadsession.Record, error)
	Save(target, localPath string, rec *uploadsession.Record) error
	Delete(target, localPath string) error
}

// ProgressFunc receives the completion percentage of a running upload.
type ProgressFunc func(operation string, percent int)

// Options configures an Executor.
type Options struct {
	// HTTPClient must attach authorization, e.g. auth.Manager.AuthorizedClient.
	HTTPClient *http.Client
	BaseURL    string
	UploadURL  string
	UserAgent  string
	ChunkSize  int64

	// Sessions enables resuming interrupted uploads. Nil disables it.
	Sessions SessionStore
	Progress ProgressFunc
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Executor runs RequestDescriptors against the service. It never retries.
// An Executor holds no per-call state and may be shared.
type Executor struct {
	httpClient *http.Client
	baseURL    string
	uploadURL  string
	userAgent  string
	apiClient  string
	chunkSize  int64
	sessions   SessionStore
	progress   ProgressFunc
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewExecutor returns an Executor with defaults filled in.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		uploadURL:  strings.TrimRight(opts.UploadURL, "/"),
		userAgent:  opts.UserAgent,
		chunkSize:  opts.ChunkSize,
		sessions:   opts.Sessions,
		progress:   opts.Progress,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		apiClient:  gax.XGoogHeader("gl-go", gax.GoVersion, clientName, clientVersion),
	}

	if e.httpClient == nil {
		e.httpClient = http.DefaultClient
	}

	if e.baseURL == "" {
		e.baseURL = DefaultBaseURL
	}

	if e.uploadURL == "" {
		e.uploadURL = DefaultUploadURL
	}

	if e.userAgent == "" {
		e.userAgent = clientName + "/" + clientVersion
	}

	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}

	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName, trace.WithInstrumentationVersion(clientVersion))
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	return e
}

// Execute runs d and returns the decoded result. Media descriptors run as a
// resumable upload. Others are executed once and, unless SinglePage is set,
// every following page is fetched and merged: list fields are concatenated
// in cursor order and other fields keep the first page's value. Any error
// aborts the call with no partial result.
func (e *Executor) Execute(ctx context.Context, d *RequestDescriptor) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "fusion."+d.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fusion.operation", d.Name),
			attribute.String("http.request.method", d.Method),
			attribute.String("fusion.path", d.Path),
			attribute.Bool("fusion.upload", d.Media != nil),
		),
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	switch {
	case d.Media != nil:
		res, err = e.upload(ctx, d)
	case d.SinglePage:
		res, err = e.executeOnce(ctx, d, d.PageToken)
	default:
		res, err = e.paginate(ctx, d)
	}

	if err != nil {
		e.logger.Debug("operation failed",
			slog.String("operation", d.Name),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	e.logger.Info("operation complete", slog.String("operation", d.Name))

	return res, nil
}

// paginate follows nextPageToken until a page carries none. A cursor seen
// before, at any earlier page, makes the response malformed.
func (e *Executor) paginate(ctx context.Context, d *RequestDescriptor) (Result, error) {
	agg, err := e.executeOnce(ctx, d, d.PageToken)
	if err != nil {
		return nil, err
	}

	cursor := agg.String(nextPageTokenField)
	pages := 1

	seen := map[string]bool{}
	if d.PageToken != "" {
		seen[d.PageToken] = true
	}

	for cursor != "" {
		if seen[cursor] {
			return nil, fmt.Errorf("%w: %s: cursor %q repeated", ErrMalformedResponse, d.Name, cursor)
		}

		seen[cursor] = true

		e.logger.Debug("fetching next page",
			slog.String("operation", d.Name),
			slog.Int("page", pages+1),
		)

		page, err := e.executeOnce(ctx, d, cursor)
		if err != nil {
			return nil, fmt.Errorf("fusion: %s page %d: %w", d.Name, pages+1, err)
		}

		mergePage(agg, page)
		pages++

		cursor = page.String(nextPageTokenField)
	}

	if pages > 1 {
		e.logger.Debug("merged pages",
			slog.String("operation", d.Name),
			slog.Int("pages", pages),
		)
	}

	return agg, nil
}

// executeOnce issues a single request. pageToken, when set, is added as the
// pageToken query parameter.
func (e *Executor) executeOnce(ctx context.Context, d *RequestDescriptor, pageToken string) (Result, error) {
	query := cloneQuery(d.Query)
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	body, err := encodeBody(d.Body)
	if err != nil {
		return nil, fmt.Errorf("fusion: %s: encoding body: %w", d.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, buildURL(e.baseURL, d.Path, query), body)
	if err != nil {
		return nil, fmt.Errorf("fusion: %s: creating request: %w", d.Name, err)
	}

	e.setHeaders(req)

	if d.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.do(ctx, d.Name, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(d.Name, resp); err != nil {
		return nil, err
	}

	return readResult(d.Name, resp)
}

// do sends req and classifies transport failures.
func (e *Executor) do(ctx context.Context, operation string, req *http.Request) (*http.Response, error) {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fusion: %s canceled: %w", operation, ctx.Err())
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, operation, err)
	}

	return resp, nil
}

func (e *Executor) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("x-goog-api-client", e.apiClient)
}

func readResult(operation string, resp *http.Response) (Result, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response: %w", ErrTransport, operation, err)
	}

	res, err := decodeResult(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return res, nil
}

func encodeBody(v any) (io.Reader, error) {
	if v == nil {
		return http.NoBody, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(data), nil
}

func buildURL(base, path string, query url.Values) string {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q)+1)
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}

	return out
}
