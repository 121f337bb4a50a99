package gviz

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotPublished is returned when the sheet answers 404, which is
	// what GViz does for documents that are not shared publicly.
	ErrNotPublished = errors.New("sheet is not published")
	// ErrAccessDenied is returned on 403.
	ErrAccessDenied = errors.New("access to sheet denied")
	// ErrHTTP matches every *HTTPError.
	ErrHTTP = errors.New("unexpected http status")
	// ErrMalformedResponse means no JSON object could be recovered from
	// the response body.
	ErrMalformedResponse = errors.New("malformed gviz response")
	// ErrTimeout is returned when the fetch exceeded its deadline.
	ErrTimeout = errors.New("sheet fetch timed out")
)

// HTTPError carries the status of a non-2xx response that is neither 403
// nor 404.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}
