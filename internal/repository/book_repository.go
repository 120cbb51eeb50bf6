package repository

import (
	"context"

	"github.com/unilib/circulation-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

type bookRepository struct {
	db *sqlx.DB
}

func NewBookRepository(db *sqlx.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) GetByBookID(ctx context.Context, bookID string) (*domain.Book, error) {
	query := `
		SELECT book_id, title, author, publisher, call_no, doc_type, publication_year, created_at
		FROM books
		WHERE book_id = $1
	`

	var book domain.Book
	err := r.db.GetContext(ctx, &book, query, bookID)
	if err != nil {
		return nil, err
	}

	return &book, nil
}
