package erp

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Structured Gateway Errors
// ---------------------------------------------------------------------------

// APIError is a structured failure from an ERP write operation. It carries
// the originating entity, the upstream status, and any field/line-level
// detail messages so the workflow can record and alert on them.
type APIError struct {
	Entity     string
	HTTPStatus int
	// StatusCode is the adapter-level status (1 means success upstream)
	StatusCode int
	Message    string
	Details    []string
}

// Error implements the error interface
func (e *APIError) Error() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "%s: upstream status %d: %s", e.Entity, e.StatusCode, e.Message)
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Details, "; "))
	}
	return b.String()
}

// Transient reports whether the failure class is retryable. Only
// service-unavailable style HTTP statuses qualify; validation-class
// failures never do.
func (e *APIError) Transient() bool {
	switch e.HTTPStatus {
	case 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

// HoldError signals an expected upstream hold condition: the order or job
// is held, or a required estimate cannot be resolved yet. The pipeline maps
// it to a HOLD step rather than a failure.
type HoldError struct {
	Reason string
}

// Error implements the error interface
func (e *HoldError) Error() string {
	return e.Reason
}

// AsHold returns the HoldError wrapped in err, if any
func AsHold(err error) (*HoldError, bool) {
	var h *HoldError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}

// AsAPIError returns the APIError wrapped in err, if any
func AsAPIError(err error) (*APIError, bool) {
	var a *APIError
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// Common read-side errors
var (
	ErrNotFound = errors.New("erp: not found")
	// ErrNoLinesVisible signals the upstream propagation-timing race where
	// a newly created order's lines are not queryable yet
	ErrNoLinesVisible = errors.New("erp: no order lines visible yet")
)
