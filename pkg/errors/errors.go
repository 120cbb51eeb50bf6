package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the stable categories the route
// layer translates into user-facing responses.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindInvalidState Kind = "INVALID_STATE"
	KindForbidden    Kind = "FORBIDDEN"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindUnavailable  Kind = "UNAVAILABLE"
)

// Domain errors
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrBorrowNotFound      = errors.New("borrow record not found")
	ErrBookUnavailable     = errors.New("book currently unavailable")
	ErrNotRecordOwner      = errors.New("borrow record belongs to another reader")
	ErrNotRenewable        = errors.New("only a currently borrowed book can be renewed")
	ErrRenewOverdue        = errors.New("cannot renew an overdue book")
	ErrStatusNotAssignable = errors.New("status cannot be assigned administratively")
	ErrUnrecognizedStatus  = errors.New("unrecognized status value")
)

// CirculationError carries a kind and a stable code alongside the wrapped cause.
type CirculationError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *CirculationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CirculationError) Unwrap() error {
	return e.Err
}

// New creates a new circulation error
func New(kind Kind, code, message string, err error) *CirculationError {
	return &CirculationError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// KindOf extracts the kind from an error chain. Unclassified errors report
// as KindUnavailable so an infrastructure failure is never mistaken for a
// business outcome.
func KindOf(err error) Kind {
	var ce *CirculationError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnavailable
}

// Error codes
const (
	ErrCodeBookNotFound        = "BOOK_NOT_FOUND"
	ErrCodeBorrowNotFound      = "BORROW_NOT_FOUND"
	ErrCodeBookUnavailable     = "BOOK_UNAVAILABLE"
	ErrCodeNotRecordOwner      = "NOT_RECORD_OWNER"
	ErrCodeNotRenewable        = "NOT_RENEWABLE"
	ErrCodeRenewOverdue        = "RENEW_OVERDUE"
	ErrCodeStatusNotAssignable = "STATUS_NOT_ASSIGNABLE"
	ErrCodeUnrecognizedStatus  = "UNRECOGNIZED_STATUS"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// Wrap common errors with circulation context

func WrapBookNotFound(bookID string) *CirculationError {
	return New(
		KindNotFound,
		ErrCodeBookNotFound,
		fmt.Sprintf("Book with ID %s not found", bookID),
		ErrBookNotFound,
	)
}

func WrapBorrowNotFound(borrowID string) *CirculationError {
	return New(
		KindNotFound,
		ErrCodeBorrowNotFound,
		fmt.Sprintf("Borrow record %s not found", borrowID),
		ErrBorrowNotFound,
	)
}

func WrapBookUnavailable(bookID string) *CirculationError {
	return New(
		KindConflict,
		ErrCodeBookUnavailable,
		fmt.Sprintf("Book with ID %s is currently unavailable", bookID),
		ErrBookUnavailable,
	)
}

func WrapNotRecordOwner(borrowID, readerID string) *CirculationError {
	return New(
		KindForbidden,
		ErrCodeNotRecordOwner,
		fmt.Sprintf("Borrow record %s does not belong to reader %s", borrowID, readerID),
		ErrNotRecordOwner,
	)
}

func WrapNotRenewable(borrowID string) *CirculationError {
	return New(
		KindInvalidState,
		ErrCodeNotRenewable,
		fmt.Sprintf("Borrow record %s is not in a renewable state", borrowID),
		ErrNotRenewable,
	)
}

func WrapRenewOverdue(borrowID string) *CirculationError {
	return New(
		KindInvalidState,
		ErrCodeRenewOverdue,
		fmt.Sprintf("Borrow record %s is past due and cannot be renewed", borrowID),
		ErrRenewOverdue,
	)
}

func WrapStatusNotAssignable(status string) *CirculationError {
	return New(
		KindValidation,
		ErrCodeStatusNotAssignable,
		fmt.Sprintf("Status %q must be one of borrowed, returned, overdue", status),
		ErrStatusNotAssignable,
	)
}

func WrapUnrecognizedStatus(raw string) *CirculationError {
	return New(
		KindValidation,
		ErrCodeUnrecognizedStatus,
		fmt.Sprintf("Status value %q does not match any known vocabulary", raw),
		ErrUnrecognizedStatus,
	)
}

func WrapDatabaseError(err error) *CirculationError {
	return New(
		KindUnavailable,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *CirculationError {
	return New(
		KindUnavailable,
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
