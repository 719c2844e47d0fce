// Package fusion is a client for the hosted table service. An Executor runs
// RequestDescriptors in one of three shapes (single response, cursor
// paginated, resumable upload) and a TableClient exposes table verbs on top.
package fusion

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Error kinds. Use errors.Is to check.
var (
	ErrTransport         = errors.New("fusion: transport error")
	ErrMalformedResponse = errors.New("fusion: malformed response")
	ErrUploadChunkFailed = errors.New("fusion: upload chunk failed")
	ErrOperationFailed   = errors.New("fusion: operation failed")
	ErrNoTable           = errors.New("fusion: no table bound")
	ErrUnknownColumn     = errors.New("fusion: unknown column")
	ErrInvalidOptions    = errors.New("fusion: invalid import options")
)

// Status classification sentinels, carried by ServiceError alongside
// ErrOperationFailed.
var (
	ErrBadRequest   = errors.New("fusion: bad request")
	ErrUnauthorized = errors.New("fusion: unauthorized")
	ErrForbidden    = errors.New("fusion: forbidden")
	ErrNotFound     = errors.New("fusion: not found")
	ErrConflict     = errors.New("fusion: conflict")
	ErrGone         = errors.New("fusion: resource gone")
	ErrThrottled    = errors.New("fusion: throttled")
	ErrServerError  = errors.New("fusion: server error")
)

// ServiceError is a remote rejection of an operation. It matches
// ErrOperationFailed, the status sentinel, and the decoded
// *googleapi.Error with errors.Is / errors.As.
type ServiceError struct {
	Operation  string
	StatusCode int
	Message    string
	Reasons    []string
	Err        error // status sentinel, may be nil
	API        *googleapi.Error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if len(e.Reasons) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.Reasons, ", "))
	}

	return fmt.Sprintf("fusion: %s: HTTP %d: %s", e.Operation, e.StatusCode, msg)
}

func (e *ServiceError) Unwrap() []error {
	errs := []error{ErrOperationFailed}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	if e.API != nil {
		errs = append(errs, e.API)
	}

	return errs
}

// checkResponse returns nil for 2xx responses and a *ServiceError
// otherwise. It consumes the body of failed responses.
func checkResponse(operation string, resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		return nil
	}

	se := &ServiceError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Err:        classifyStatus(resp.StatusCode),
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		se.API = apiErr
		se.Message = apiErr.Message

		for _, item := range apiErr.Errors {
			if item.Reason != "" {
				se.Reasons = append(se.Reasons, item.Reason)
			}
		}

		if se.Message == "" {
			se.Message = strings.TrimSpace(apiErr.Body)
		}
	}

	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}

	return se
}

// classifyStatus maps an HTTP status code to a sentinel. Returns nil for
// codes without one.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
