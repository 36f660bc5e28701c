package workflow

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Common domain errors
var (
	ErrOrderNotFound    = NewDomainError("ORDER_NOT_FOUND", "Order not tracked in state store")
	ErrSnapshotNotFound = NewDomainError("SNAPSHOT_NOT_FOUND", "No snapshot recorded for key")
	ErrXRefNotFound     = NewDomainError("XREF_NOT_FOUND", "No purchase-order line cross-reference for source line")
	ErrRunNotFound      = NewDomainError("RUN_NOT_FOUND", "Run record not found")
	ErrInvalidState     = NewDomainError("INVALID_STATE", "Operation not allowed in current order state")
	ErrOrderLocked      = NewDomainError("ORDER_LOCKED", "Order is being processed by another worker")
)
