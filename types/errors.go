package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound marks an expected absence. It drives the create path and is
// never a failure on its own.
var ErrNotFound = errors.New("not found")

// HTTPError is returned for any response outside an endpoint's declared
// success statuses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Is reports 404 responses as ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is an expected absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
