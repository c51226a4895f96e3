package shared

import "errors"

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
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrInsufficientBalance = NewDomainError("INSUFFICIENT_BALANCE", "Insufficient balance available")
)

// Ledger errors
var (
	ErrInsufficientRawMaterial = NewDomainError("INSUFFICIENT_RAW_MATERIAL", "Insufficient raw material for production")
	ErrUnknownBatch            = NewDomainError("UNKNOWN_BATCH", "Referenced batch does not exist")
	ErrInvalidWarehouseRoute   = NewDomainError("INVALID_WAREHOUSE_ROUTE", "Source and destination warehouse must differ")
	ErrImmutableDocument       = NewDomainError("IMMUTABLE_DOCUMENT", "Confirmed document cannot be modified")
	ErrBackdatedConflict       = NewDomainError("BACKDATED_CONFLICT", "Backdated document conflicts with later history")
	ErrLockNotObtained         = NewDomainError("LOCK_NOT_OBTAINED", "Could not obtain lock")
	ErrPersistence             = NewDomainError("PERSISTENCE_FAILED", "Failed to persist ledger state")
)

// ErrorCode returns the code of the first DomainError in err's chain, or an
// empty string when there is none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
