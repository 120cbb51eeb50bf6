package repository

import (
	"context"

	"github.com/unilib/circulation-engine/internal/domain"

	"github.com/jmoiron/sqlx"
)

type readerRepository struct {
	db *sqlx.DB
}

func NewReaderRepository(db *sqlx.DB) ReaderRepository {
	return &readerRepository{db: db}
}

func (r *readerRepository) GetByReaderID(ctx context.Context, readerID string) (*domain.Reader, error) {
	query := `
		SELECT reader_id, name, email, is_admin, created_at
		FROM readers
		WHERE reader_id = $1
	`

	var reader domain.Reader
	err := r.db.GetContext(ctx, &reader, query, readerID)
	if err != nil {
		return nil, err
	}

	return &reader, nil
}
