package repository

import (
	"context"
	"time"

	"github.com/unilib/circulation-engine/internal/domain"
)

// BorrowRepository defines the interface for borrow record data operations
type BorrowRepository interface {
	// CreateIfAvailable inserts a new borrow record inside a single
	// transaction that locks the catalog row and verifies no open record
	// exists for the book. Fails with ErrBookNotFound or ErrBookUnavailable.
	CreateIfAvailable(ctx context.Context, record *domain.BorrowRecord) error

	// GetByBorrowID retrieves a borrow record by its borrow ID
	GetByBorrowID(ctx context.Context, borrowID string) (*domain.BorrowRecord, error)

	// FindOpenByBookID retrieves the open (unreturned) record for a book, if any
	FindOpenByBookID(ctx context.Context, bookID string) (*domain.BorrowRecord, error)

	// ExtendDueDate moves the due date of a record forward, guarded so the
	// write only lands if the record is still open and its due date still
	// matches the one the caller validated against. Returns sql.ErrNoRows
	// when the record changed underneath the caller.
	ExtendDueDate(ctx context.Context, borrowID string, fromDueDate, toDueDate time.Time) (*domain.BorrowRecord, error)

	// SetStatus overwrites the stored status label and, when non-nil, the
	// return date
	SetStatus(ctx context.Context, borrowID string, statusLabel string, returnDate *time.Time) (*domain.BorrowRecord, error)

	// List returns borrow records joined with their catalog entries. An empty
	// readerID lists records across all readers. statusValues, when non-empty,
	// becomes a "status = ANY(...)" filter.
	List(ctx context.Context, readerID string, filter domain.BorrowListFilter, statusValues []string) ([]*domain.BorrowListItem, int, error)

	// CountAll counts every borrow record
	CountAll(ctx context.Context) (int, error)

	// CountByStatusValues counts records whose stored status matches any of
	// the given values
	CountByStatusValues(ctx context.Context, statusValues []string) (int, error)

	// CountOverdue counts records annotated with an overdue value or past due
	// by the derived predicate (borrowed and due before now)
	CountOverdue(ctx context.Context, overdueValues, borrowedValues []string, now time.Time) (int, error)

	// MarkOverdue stamps the overdue label on open borrowed records past due
	// and returns how many rows changed
	MarkOverdue(ctx context.Context, overdueLabel string, borrowedValues []string, now time.Time) (int64, error)
}

// BookRepository defines the interface for catalog lookups
type BookRepository interface {
	// GetByBookID retrieves a book by its catalog ID
	GetByBookID(ctx context.Context, bookID string) (*domain.Book, error)
}

// ReaderRepository defines the interface for reader account lookups
type ReaderRepository interface {
	// GetByReaderID retrieves a reader by ID
	GetByReaderID(ctx context.Context, readerID string) (*domain.Reader, error)
}
