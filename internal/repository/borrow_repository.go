package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unilib/circulation-engine/internal/domain"
	customError "github.com/unilib/circulation-engine/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

type borrowRepository struct {
	db *sqlx.DB
}

func NewBorrowRepository(db *sqlx.DB) BorrowRepository {
	return &borrowRepository{db: db}
}

// CreateIfAvailable runs the availability check and the insert as one unit
// of work. The catalog row is locked first so two concurrent calls for the
// same book serialize; the partial unique index on open records is the
// storage-level backstop and its violation reports the same conflict.
func (r *borrowRepository) CreateIfAvailable(ctx context.Context, record *domain.BorrowRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var bookID string
	err = tx.GetContext(ctx, &bookID,
		`SELECT book_id FROM books WHERE book_id = $1 FOR UPDATE`, record.BookID)
	if errors.Is(err, sql.ErrNoRows) {
		return customError.ErrBookNotFound
	}
	if err != nil {
		return err
	}

	var openCount int
	err = tx.GetContext(ctx, &openCount,
		`SELECT COUNT(*) FROM borrow_records WHERE book_id = $1 AND return_date IS NULL`, record.BookID)
	if err != nil {
		return err
	}
	if openCount > 0 {
		return customError.ErrBookUnavailable
	}

	query := `
		INSERT INTO borrow_records (id, borrow_id, reader_id, book_id, borrow_date, due_date, return_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.BorrowID,
		record.ReaderID,
		record.BookID,
		record.BorrowDate,
		record.DueDate,
		record.ReturnDate,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return customError.ErrBookUnavailable
		}
		return err
	}

	return tx.Commit()
}

func (r *borrowRepository) GetByBorrowID(ctx context.Context, borrowID string) (*domain.BorrowRecord, error) {
	query := `
		SELECT id, borrow_id, reader_id, book_id, borrow_date, due_date, return_date, status, created_at, updated_at
		FROM borrow_records
		WHERE borrow_id = $1
	`

	var record domain.BorrowRecord
	err := r.db.GetContext(ctx, &record, query, borrowID)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *borrowRepository) FindOpenByBookID(ctx context.Context, bookID string) (*domain.BorrowRecord, error) {
	query := `
		SELECT id, borrow_id, reader_id, book_id, borrow_date, due_date, return_date, status, created_at, updated_at
		FROM borrow_records
		WHERE book_id = $1 AND return_date IS NULL
	`

	var record domain.BorrowRecord
	err := r.db.GetContext(ctx, &record, query, bookID)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ExtendDueDate writes the new due date only if the record is still open
// and its due date is unchanged since the caller read it. A concurrent
// return or status override between the read and this write matches zero
// rows, which GetContext surfaces as sql.ErrNoRows.
func (r *borrowRepository) ExtendDueDate(ctx context.Context, borrowID string, fromDueDate, toDueDate time.Time) (*domain.BorrowRecord, error) {
	query := `
		UPDATE borrow_records
		SET due_date = $2, updated_at = $3
		WHERE borrow_id = $1 AND due_date = $4 AND return_date IS NULL
		RETURNING id, borrow_id, reader_id, book_id, borrow_date, due_date, return_date, status, created_at, updated_at
	`

	var record domain.BorrowRecord
	err := r.db.GetContext(ctx, &record, query, borrowID, toDueDate, time.Now(), fromDueDate)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *borrowRepository) SetStatus(ctx context.Context, borrowID string, statusLabel string, returnDate *time.Time) (*domain.BorrowRecord, error) {
	var record domain.BorrowRecord
	var err error

	if returnDate != nil {
		query := `
			UPDATE borrow_records
			SET status = $2, return_date = $3, updated_at = $4
			WHERE borrow_id = $1
			RETURNING id, borrow_id, reader_id, book_id, borrow_date, due_date, return_date, status, created_at, updated_at
		`
		err = r.db.GetContext(ctx, &record, query, borrowID, statusLabel, returnDate, time.Now())
	} else {
		query := `
			UPDATE borrow_records
			SET status = $2, updated_at = $3
			WHERE borrow_id = $1
			RETURNING id, borrow_id, reader_id, book_id, borrow_date, due_date, return_date, status, created_at, updated_at
		`
		err = r.db.GetContext(ctx, &record, query, borrowID, statusLabel, time.Now())
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *borrowRepository) List(ctx context.Context, readerID string, filter domain.BorrowListFilter, statusValues []string) ([]*domain.BorrowListItem, int, error) {
	conditions := []string{}
	args := []interface{}{}
	idx := 1

	if readerID != "" {
		conditions = append(conditions, fmt.Sprintf("br.reader_id = $%d", idx))
		args = append(args, readerID)
		idx++
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(b.title ILIKE $%d OR b.author ILIKE $%d OR b.call_no ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+search+"%")
		idx++
	}

	if len(statusValues) > 0 {
		conditions = append(conditions, fmt.Sprintf("br.status = ANY($%d)", idx))
		args = append(args, pq.Array(statusValues))
		idx++
	}

	if filter.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("br.borrow_date >= $%d", idx))
		args = append(args, *filter.StartDate)
		idx++
	}

	if filter.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("br.borrow_date <= $%d", idx))
		args = append(args, *filter.EndDate)
		idx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM borrow_records br
		LEFT JOIN books b ON br.book_id = b.book_id
		%s
	`, whereClause)

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`
		SELECT
			br.id, br.borrow_id, br.reader_id, br.book_id,
			br.borrow_date, br.due_date, br.return_date, br.status,
			br.created_at, br.updated_at,
			COALESCE(b.title, '') AS title,
			COALESCE(b.author, '') AS author,
			COALESCE(b.call_no, '') AS call_no
		FROM borrow_records br
		LEFT JOIN books b ON br.book_id = b.book_id
		%s
		ORDER BY br.borrow_date DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, idx, idx+1)

	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)

	var items []*domain.BorrowListItem
	if err := r.db.SelectContext(ctx, &items, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *borrowRepository) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM borrow_records`)
	return count, err
}

func (r *borrowRepository) CountByStatusValues(ctx context.Context, statusValues []string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM borrow_records WHERE status = ANY($1)`, pq.Array(statusValues))
	return count, err
}

func (r *borrowRepository) CountOverdue(ctx context.Context, overdueValues, borrowedValues []string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM borrow_records
		WHERE status = ANY($1)
		   OR (status = ANY($2) AND due_date < $3)
	`

	var count int
	err := r.db.GetContext(ctx, &count, query, pq.Array(overdueValues), pq.Array(borrowedValues), now)
	return count, err
}

func (r *borrowRepository) MarkOverdue(ctx context.Context, overdueLabel string, borrowedValues []string, now time.Time) (int64, error) {
	query := `
		UPDATE borrow_records
		SET status = $1, updated_at = $2
		WHERE status = ANY($3) AND return_date IS NULL AND due_date < $4
	`

	result, err := r.db.ExecContext(ctx, query, overdueLabel, time.Now(), pq.Array(borrowedValues), now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
