package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/unilib/circulation-engine/internal/domain"
)

type MockBorrowRepository struct {
	mock.Mock
}

func (m *MockBorrowRepository) CreateIfAvailable(ctx context.Context, record *domain.BorrowRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockBorrowRepository) GetByBorrowID(ctx context.Context, borrowID string) (*domain.BorrowRecord, error) {
	args := m.Called(ctx, borrowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BorrowRecord), args.Error(1)
}

func (m *MockBorrowRepository) FindOpenByBookID(ctx context.Context, bookID string) (*domain.BorrowRecord, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BorrowRecord), args.Error(1)
}

func (m *MockBorrowRepository) ExtendDueDate(ctx context.Context, borrowID string, fromDueDate, toDueDate time.Time) (*domain.BorrowRecord, error) {
	args := m.Called(ctx, borrowID, fromDueDate, toDueDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BorrowRecord), args.Error(1)
}

func (m *MockBorrowRepository) SetStatus(ctx context.Context, borrowID string, statusLabel string, returnDate *time.Time) (*domain.BorrowRecord, error) {
	args := m.Called(ctx, borrowID, statusLabel, returnDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BorrowRecord), args.Error(1)
}

func (m *MockBorrowRepository) List(ctx context.Context, readerID string, filter domain.BorrowListFilter, statusValues []string) ([]*domain.BorrowListItem, int, error) {
	args := m.Called(ctx, readerID, filter, statusValues)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.BorrowListItem), args.Int(1), args.Error(2)
}

func (m *MockBorrowRepository) CountAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockBorrowRepository) CountByStatusValues(ctx context.Context, statusValues []string) (int, error) {
	args := m.Called(ctx, statusValues)
	return args.Int(0), args.Error(1)
}

func (m *MockBorrowRepository) CountOverdue(ctx context.Context, overdueValues, borrowedValues []string, now time.Time) (int, error) {
	args := m.Called(ctx, overdueValues, borrowedValues, now)
	return args.Int(0), args.Error(1)
}

func (m *MockBorrowRepository) MarkOverdue(ctx context.Context, overdueLabel string, borrowedValues []string, now time.Time) (int64, error) {
	args := m.Called(ctx, overdueLabel, borrowedValues, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockBookRepository struct {
	mock.Mock
}

func (m *MockBookRepository) GetByBookID(ctx context.Context, bookID string) (*domain.Book, error) {
	args := m.Called(ctx, bookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Book), args.Error(1)
}

type MockReaderRepository struct {
	mock.Mock
}

func (m *MockReaderRepository) GetByReaderID(ctx context.Context, readerID string) (*domain.Reader, error) {
	args := m.Called(ctx, readerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reader), args.Error(1)
}
