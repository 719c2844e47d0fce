package fusion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eternadata/ftables-go/internal/uploadsession"
)

// statusResumeIncomplete is the service's "chunk accepted, send more" code.
const statusResumeIncomplete = http.StatusPermanentRedirect

// UploadStatus reports how much of a resumable upload the service holds.
type UploadStatus struct {
	ResumableProgress int64
	TotalSize         int64
}

// Progress returns the completed fraction in [0, 1].
func (s *UploadStatus) Progress() float64 {
	if s.TotalSize <= 0 {
		return 1
	}

	return float64(s.ResumableProgress) / float64(s.TotalSize)
}

// Percent returns Progress as a whole percentage.
func (s *UploadStatus) Percent() int {
	return int(s.Progress() * 100)
}

// ResumableUpload sends one media payload in chunks to a session URI.
type ResumableUpload struct {
	exec      *Executor
	operation string
	uri       string
	media     *Media
	offset    int64
}

// URI returns the session URI.
func (u *ResumableUpload) URI() string {
	return u.uri
}

// Offset returns the next byte the service expects.
func (u *ResumableUpload) Offset() int64 {
	return u.offset
}

// NextChunk sends the next chunk. While the upload is incomplete it returns
// a status and a nil Result; the call that completes it returns a nil
// status and the service's response. Once the service holds every byte the
// chunk is empty and only finalizes the session.
func (u *ResumableUpload) NextChunk(ctx context.Context) (*UploadStatus, Result, error) {
	size := max(0, min(u.exec.chunkSize, u.media.Size-u.offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.uri,
		io.NewSectionReader(u.media.Reader, u.offset, size))
	if err != nil {
		return nil, nil, fmt.Errorf("creating chunk request: %w", err)
	}

	req.ContentLength = size
	req.Header.Set("Content-Type", u.media.ContentType)

	if size <= 0 {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", u.media.Size))
	} else {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", u.offset, u.offset+size-1, u.media.Size))
	}

	u.exec.setHeaders(req)

	u.exec.logger.Debug("uploading chunk",
		slog.String("operation", u.operation),
		slog.Int64("offset", u.offset),
		slog.Int64("length", size),
		slog.Int64("total", u.media.Size),
	)

	return u.send(ctx, req)
}

// queryStatus asks the service how many bytes it holds for the session.
func (u *ResumableUpload) queryStatus(ctx context.Context) (*UploadStatus, Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.uri, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("creating status request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", u.media.Size))
	u.exec.setHeaders(req)

	return u.send(ctx, req)
}

func (u *ResumableUpload) send(ctx context.Context, req *http.Request) (*UploadStatus, Result, error) {
	resp, err := u.exec.do(ctx, u.operation, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case statusResumeIncomplete:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

		next, err := parseRange(resp.Header.Get("Range"))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, u.operation, err)
		}

		u.offset = next

		return &UploadStatus{ResumableProgress: next, TotalSize: u.media.Size}, nil, nil

	case http.StatusOK, http.StatusCreated:
		res, err := readResult(u.operation, resp)
		if err != nil {
			return nil, nil, err
		}

		u.offset = u.media.Size

		return nil, res, nil

	default:
		if err := checkResponse(u.operation, resp); err != nil {
			return nil, nil, err
		}

		return nil, nil, fmt.Errorf("%w: %s: unexpected status %d", ErrMalformedResponse, u.operation, resp.StatusCode)
	}
}

// parseRange returns the next offset from a "bytes=0-N" header. No header
// means nothing has been stored yet.
func parseRange(h string) (int64, error) {
	if h == "" {
		return 0, nil
	}

	_, end, ok := strings.Cut(strings.TrimPrefix(h, "bytes="), "-")
	if !ok {
		return 0, fmt.Errorf("invalid Range header %q", h)
	}

	n, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Range header %q: %w", h, err)
	}

	return n + 1, nil
}

// StartUpload opens a new resumable session for d.
func (e *Executor) StartUpload(ctx context.Context, d *RequestDescriptor) (*ResumableUpload, error) {
	if d.Media == nil {
		return nil, fmt.Errorf("fusion: %s: descriptor has no media", d.Name)
	}

	query := cloneQuery(d.Query)
	query.Set("uploadType", "resumable")

	req, err := http.NewRequestWithContext(ctx, d.Method, buildURL(e.uploadURL, d.Path, query), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fusion: %s: creating upload request: %w", d.Name, err)
	}

	e.setHeaders(req)
	req.Header.Set("X-Upload-Content-Type", d.Media.ContentType)
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(d.Media.Size, 10))

	resp, err := e.do(ctx, d.Name, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(d.Name, resp); err != nil {
		return nil, err
	}

	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("%w: %s: upload session has no Location", ErrMalformedResponse, d.Name)
	}

	e.logger.Info("upload session created",
		slog.String("operation", d.Name),
		slog.Int64("size", d.Media.Size),
	)

	return e.newUpload(d, loc), nil
}

func (e *Executor) newUpload(d *RequestDescriptor, uri string) *ResumableUpload {
	return &ResumableUpload{exec: e, operation: d.Name, uri: uri, media: d.Media}
}

// upload drives the chunk loop until the service returns a response. No
// chunk is retried; the first failure ends the upload.
func (e *Executor) upload(ctx context.Context, d *RequestDescriptor) (Result, error) {
	ru, done, err := e.openUpload(ctx, d)
	if err != nil {
		return nil, err
	}

	result := done
	last := -1

	for result == nil {
		prev := ru.Offset()

		status, res, err := ru.NextChunk(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at offset %d: %w", ErrUploadChunkFailed, d.Name, prev, err)
		}

		if status != nil && ru.Offset() <= prev && d.Media.Size > 0 {
			return nil, fmt.Errorf("%w: %s: service accepted no bytes at offset %d", ErrUploadChunkFailed, d.Name, prev)
		}

		result = res

		pct := 100
		if status != nil {
			pct = status.Percent()
		}

		if pct != last {
			e.reportProgress(d.Name, pct)
			last = pct
		}
	}

	e.forgetSession(d)

	return result, nil
}

func (e *Executor) reportProgress(operation string, pct int) {
	e.logger.Debug("upload progress",
		slog.String("operation", operation),
		slog.Int("percent", pct),
	)

	if e.progress != nil {
		e.progress(operation, pct)
	}
}

// openUpload resumes a persisted session for the same unchanged file when
// one is still live, or starts a new one. A session the service reports as
// already complete yields its result directly.
func (e *Executor) openUpload(ctx context.Context, d *RequestDescriptor) (*ResumableUpload, Result, error) {
	if ru, res := e.resumeSession(ctx, d); ru != nil || res != nil {
		return ru, res, nil
	}

	ru, err := e.StartUpload(ctx, d)
	if err != nil {
		return nil, nil, err
	}

	e.saveSession(d, ru)

	return ru, nil, nil
}

func (e *Executor) resumable(d *RequestDescriptor) bool {
	return e.sessions != nil && d.Media.SessionKey != ""
}

func (e *Executor) resumeSession(ctx context.Context, d *RequestDescriptor) (*ResumableUpload, Result) {
	if !e.resumable(d) {
		return nil, nil
	}

	rec, err := e.sessions.Load(d.Path, d.Media.SessionKey)
	if err != nil {
		e.logger.Warn("ignoring unreadable upload session",
			slog.String("file", d.Media.SessionKey),
			slog.String("error", err.Error()),
		)

		return nil, nil
	}

	if rec == nil {
		return nil, nil
	}

	if !rec.Matches(d.Media.Size, d.Media.ModTime) {
		e.logger.Info("file changed since upload session was created, starting over",
			slog.String("file", d.Media.SessionKey),
		)
		e.forgetSession(d)

		return nil, nil
	}

	ru := e.newUpload(d, rec.SessionURI)

	status, res, err := ru.queryStatus(ctx)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone) {
			level = slog.LevelInfo
		}

		e.logger.Log(ctx, level, "upload session no longer usable, starting over",
			slog.String("file", d.Media.SessionKey),
			slog.String("error", err.Error()),
		)
		e.forgetSession(d)

		return nil, nil
	}

	if res != nil {
		return nil, res
	}

	e.logger.Info("resuming upload",
		slog.String("file", d.Media.SessionKey),
		slog.Int64("offset", status.ResumableProgress),
		slog.Int64("size", status.TotalSize),
	)

	return ru, nil
}

func (e *Executor) saveSession(d *RequestDescriptor, ru *ResumableUpload) {
	if !e.resumable(d) {
		return
	}

	err := e.sessions.Save(d.Path, d.Media.SessionKey, &uploadsession.Record{
		SessionURI: ru.URI(),
		FileSize:   d.Media.Size,
		ModTime:    d.Media.ModTime,
	})
	if err != nil {
		e.logger.Warn("failed to persist upload session",
			slog.String("file", d.Media.SessionKey),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) forgetSession(d *RequestDescriptor) {
	if !e.resumable(d) {
		return
	}

	if err := e.sessions.Delete(d.Path, d.Media.SessionKey); err != nil {
		e.logger.Warn("failed to delete upload session",
			slog.String("file", d.Media.SessionKey),
			slog.String("error", err.Error()),
		)
	}
}
