package acs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound the ACS has no device with the requested ID
	ErrNotFound = errors.New("acs: device not found")
	// ErrFilterUnsupported server-side filtering is disabled or rejected; callers must scan
	ErrFilterUnsupported = errors.New("acs: server-side filter unsupported")
	// ErrCircuitOpen the breaker is refusing calls
	ErrCircuitOpen = errors.New("acs: circuit breaker is open")
	// ErrTooManyRequests the half-open probe budget is spent
	ErrTooManyRequests = errors.New("acs: too many requests in half-open state")
)

// StatusError is a non-2xx answer from the ACS.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("acs: %s %s: http %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("acs: %s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}
