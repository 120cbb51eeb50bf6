package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BorrowRecord represents one lending of a book to a reader. BorrowID,
// ReaderID, BookID and BorrowDate are immutable after creation; DueDate
// moves only forward (renewals); ReturnDate is set exactly once.
type BorrowRecord struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BorrowID   string     `json:"borrow_id" db:"borrow_id"`
	ReaderID   string     `json:"reader_id" db:"reader_id"`
	BookID     string     `json:"book_id" db:"book_id"`
	BorrowDate time.Time  `json:"borrow_date" db:"borrow_date"`
	DueDate    time.Time  `json:"due_date" db:"due_date"`
	ReturnDate *time.Time `json:"return_date" db:"return_date"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Open reports whether the record is still outstanding.
func (r *BorrowRecord) Open() bool {
	return r.ReturnDate == nil
}

// PastDue reports the derived overdue condition at the given instant.
// This predicate, not the persisted label, is the source of truth for
// whether an open record is late.
func (r *BorrowRecord) PastDue(now time.Time) bool {
	return r.Open() && r.DueDate.Before(now)
}

// DTOs for requests and responses

type BorrowRequest struct {
	BookID string `json:"book_id" validate:"required"`
}

type SetStatusRequest struct {
	Status     string     `json:"status" validate:"required"`
	ReturnDate *time.Time `json:"return_date"`
}

// BorrowListFilter narrows a borrow listing. Status is matched against the
// full compatible-value set of its canonical status so historical rows
// written under the legacy vocabulary are included.
type BorrowListFilter struct {
	Search    string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// BorrowListItem is a borrow record joined with its catalog entry, with the
// status already canonicalized. Overdue and AccruedFine are derived at read
// time, never persisted.
type BorrowListItem struct {
	BorrowRecord
	Title       string          `json:"title" db:"title"`
	Author      string          `json:"author" db:"author"`
	CallNo      string          `json:"call_no" db:"call_no"`
	Overdue     bool            `json:"overdue" db:"-"`
	AccruedFine decimal.Decimal `json:"accrued_fine" db:"-"`
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type BorrowListResponse struct {
	Data       []*BorrowListItem `json:"data"`
	Pagination Pagination        `json:"pagination"`
}

// CirculationStats is the dashboard aggregate: Current counts open borrowed
// records, Overdue counts records either annotated overdue or past due by
// the derived predicate.
type CirculationStats struct {
	Total   int `json:"total"`
	Current int `json:"current"`
	Overdue int `json:"overdue"`
}
