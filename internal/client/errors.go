package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned for any non-success HTTP status. Snippet holds
// the first part of the response body for diagnostics.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Snippet    string
}

func (e *APIError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Snippet)
}

// IsNotFound reports whether err is an APIError with status 404. The
// drivers prune local tracking on 404 and keep going.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}
