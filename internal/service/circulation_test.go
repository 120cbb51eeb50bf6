package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unilib/circulation-engine/internal/config"
	"github.com/unilib/circulation-engine/internal/domain"
	customError "github.com/unilib/circulation-engine/pkg/errors"
	"github.com/unilib/circulation-engine/tests/mocks"
)

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			LoanPeriodDays:  30,
			RenewPeriodDays: 30,
			DailyFineRate:   "0.50",
			StatsCacheTTL:   "60s",
		},
	}
}

func newTestService(borrowRepo *mocks.MockBorrowRepository, bookRepo *mocks.MockBookRepository) *CirculationService {
	return NewCirculationService(borrowRepo, bookRepo, nil, testConfig())
}

func TestBorrow_Success(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBookRepo.On("GetByBookID", mock.Anything, "B1").Return(&domain.Book{BookID: "B1"}, nil)
	mockBorrowRepo.On("CreateIfAvailable", mock.Anything, mock.MatchedBy(func(r *domain.BorrowRecord) bool {
		return r.BookID == "B1" && r.ReaderID == "R1" && r.ReturnDate == nil
	})).Return(nil)

	before := time.Now()
	record, err := svc.Borrow(context.Background(), "R1", "B1")
	after := time.Now()

	require.NoError(t, err)
	assert.Equal(t, "R1", record.ReaderID)
	assert.Equal(t, "B1", record.BookID)
	assert.Equal(t, domain.StatusBorrowed.StorageLabel(), record.Status)
	assert.NotEmpty(t, record.BorrowID)

	// due date is borrow date plus the loan period
	assert.Equal(t, record.BorrowDate.AddDate(0, 0, 30), record.DueDate)
	assert.False(t, record.BorrowDate.Before(before))
	assert.False(t, record.BorrowDate.After(after))

	mockBorrowRepo.AssertExpectations(t)
	mockBookRepo.AssertExpectations(t)
}

func TestBorrow_BookNotFound(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBookRepo.On("GetByBookID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	_, err := svc.Borrow(context.Background(), "R1", "missing")

	require.Error(t, err)
	assert.Equal(t, customError.KindNotFound, customError.KindOf(err))
	mockBorrowRepo.AssertNotCalled(t, "CreateIfAvailable", mock.Anything, mock.Anything)
}

func TestBorrow_Conflict(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBookRepo.On("GetByBookID", mock.Anything, "B1").Return(&domain.Book{BookID: "B1"}, nil)
	mockBorrowRepo.On("CreateIfAvailable", mock.Anything, mock.Anything).Return(customError.ErrBookUnavailable)

	_, err := svc.Borrow(context.Background(), "R1", "B1")

	require.Error(t, err)
	assert.Equal(t, customError.KindConflict, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrBookUnavailable))
}

func TestBookAvailability(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBookRepo.On("GetByBookID", mock.Anything, "free").Return(&domain.Book{BookID: "free"}, nil)
	mockBookRepo.On("GetByBookID", mock.Anything, "taken").Return(&domain.Book{BookID: "taken"}, nil)
	mockBorrowRepo.On("FindOpenByBookID", mock.Anything, "free").Return(nil, sql.ErrNoRows)
	mockBorrowRepo.On("FindOpenByBookID", mock.Anything, "taken").Return(&domain.BorrowRecord{BookID: "taken"}, nil)

	available, err := svc.BookAvailability(context.Background(), "free")
	require.NoError(t, err)
	assert.True(t, available)

	available, err = svc.BookAvailability(context.Background(), "taken")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestRenew_ExtendsFromPreviousDueDate(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	dueDate := time.Now().AddDate(0, 0, 5)
	record := &domain.BorrowRecord{
		BorrowID: "BR1",
		ReaderID: "R1",
		BookID:   "B1",
		DueDate:  dueDate,
		Status:   "借阅中",
	}

	expectedDue := dueDate.AddDate(0, 0, 30)
	extended := &domain.BorrowRecord{BorrowID: "BR1", ReaderID: "R1", DueDate: expectedDue, Status: "借阅中"}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)
	mockBorrowRepo.On("ExtendDueDate", mock.Anything, "BR1", dueDate, expectedDue).Return(extended, nil)

	updated, err := svc.Renew(context.Background(), "BR1", "R1")

	require.NoError(t, err)
	assert.Equal(t, expectedDue, updated.DueDate)
	mockBorrowRepo.AssertExpectations(t)
}

func TestRenew_OverdueFails(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	record := &domain.BorrowRecord{
		BorrowID: "BR1",
		ReaderID: "R1",
		DueDate:  time.Now().AddDate(0, 0, -1),
		Status:   "borrowed",
	}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)

	_, err := svc.Renew(context.Background(), "BR1", "R1")

	require.Error(t, err)
	assert.Equal(t, customError.KindInvalidState, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrRenewOverdue))
	mockBorrowRepo.AssertNotCalled(t, "ExtendDueDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRenew_RecordReturnedBetweenReadAndWriteFails(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	dueDate := time.Now().AddDate(0, 0, 5)
	record := &domain.BorrowRecord{
		BorrowID: "BR1",
		ReaderID: "R1",
		DueDate:  dueDate,
		Status:   "borrowed",
	}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)

	// the record was returned after the read: the guarded update matches
	// nothing and the renewal must be rejected, not applied
	mockBorrowRepo.On("ExtendDueDate", mock.Anything, "BR1", dueDate, dueDate.AddDate(0, 0, 30)).
		Return(nil, sql.ErrNoRows)

	_, err := svc.Renew(context.Background(), "BR1", "R1")

	require.Error(t, err)
	assert.Equal(t, customError.KindInvalidState, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrNotRenewable))
}

func TestRenew_ReturnedFails(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	returnDate := time.Now().AddDate(0, 0, -2)
	record := &domain.BorrowRecord{
		BorrowID:   "BR1",
		ReaderID:   "R1",
		DueDate:    time.Now().AddDate(0, 0, 10),
		ReturnDate: &returnDate,
		Status:     "已归还",
	}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)

	_, err := svc.Renew(context.Background(), "BR1", "R1")

	require.Error(t, err)
	assert.Equal(t, customError.KindInvalidState, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrNotRenewable))
}

func TestRenew_OwnershipMismatchFails(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	record := &domain.BorrowRecord{
		BorrowID: "BR1",
		ReaderID: "R1",
		DueDate:  time.Now().AddDate(0, 0, 10),
		Status:   "borrowed",
	}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)

	_, err := svc.Renew(context.Background(), "BR1", "someone-else")

	require.Error(t, err)
	assert.Equal(t, customError.KindForbidden, customError.KindOf(err))
}

func TestRenew_NotFound(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	_, err := svc.Renew(context.Background(), "missing", "R1")

	require.Error(t, err)
	assert.Equal(t, customError.KindNotFound, customError.KindOf(err))
}

func TestRenew_UnrecognizedStoredStatusFailsClosed(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	record := &domain.BorrowRecord{
		BorrowID: "BR1",
		ReaderID: "R1",
		DueDate:  time.Now().AddDate(0, 0, 10),
		Status:   "definitely-not-a-status",
	}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)

	_, err := svc.Renew(context.Background(), "BR1", "R1")

	require.Error(t, err)
	assert.Equal(t, customError.KindValidation, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrUnrecognizedStatus))
	mockBorrowRepo.AssertNotCalled(t, "ExtendDueDate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetStatus_ReturnedWithLegacyAliasAndDate(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	returnDate := time.Now().Truncate(24 * time.Hour)
	record := &domain.BorrowRecord{BorrowID: "BR1", Status: "borrowed"}
	updated := &domain.BorrowRecord{BorrowID: "BR1", Status: domain.StatusReturned.StorageLabel(), ReturnDate: &returnDate}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)
	mockBorrowRepo.On("SetStatus", mock.Anything, "BR1", domain.StatusReturned.StorageLabel(), &returnDate).Return(updated, nil)

	// raw input arrives in the legacy vocabulary
	got, err := svc.SetStatus(context.Background(), "BR1", "已归还", &returnDate)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned.StorageLabel(), got.Status)
	require.NotNil(t, got.ReturnDate)
	assert.True(t, got.ReturnDate.Equal(returnDate))
	mockBorrowRepo.AssertExpectations(t)
}

func TestSetStatus_UnrecognizedValueNoMutation(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	_, err := svc.SetStatus(context.Background(), "BR1", "lost", nil)

	require.Error(t, err)
	assert.Equal(t, customError.KindValidation, customError.KindOf(err))
	mockBorrowRepo.AssertNotCalled(t, "GetByBorrowID", mock.Anything, mock.Anything)
	mockBorrowRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetStatus_RenewedNotAssignable(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	_, err := svc.SetStatus(context.Background(), "BR1", "renewed", nil)

	require.Error(t, err)
	assert.Equal(t, customError.KindValidation, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrStatusNotAssignable))
	mockBorrowRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetStatus_ReturnDateOnlyAppliesToReturned(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	returnDate := time.Now()
	record := &domain.BorrowRecord{BorrowID: "BR1", Status: "borrowed"}
	updated := &domain.BorrowRecord{BorrowID: "BR1", Status: domain.StatusOverdue.StorageLabel()}

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "BR1").Return(record, nil)
	mockBorrowRepo.On("SetStatus", mock.Anything, "BR1", domain.StatusOverdue.StorageLabel(), (*time.Time)(nil)).Return(updated, nil)

	_, err := svc.SetStatus(context.Background(), "BR1", "overdue", &returnDate)

	require.NoError(t, err)
	mockBorrowRepo.AssertExpectations(t)
}

func TestSetStatus_NotFound(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBorrowRepo.On("GetByBorrowID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	_, err := svc.SetStatus(context.Background(), "missing", "returned", nil)

	require.Error(t, err)
	assert.Equal(t, customError.KindNotFound, customError.KindOf(err))
}

func TestListBorrows_StatusFilterCoversBothVocabularies(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	items := []*domain.BorrowListItem{
		{BorrowRecord: domain.BorrowRecord{BorrowID: "BR1", Status: "借阅中", DueDate: time.Now().AddDate(0, 0, 10)}, Title: "SICP"},
		{BorrowRecord: domain.BorrowRecord{BorrowID: "BR2", Status: "borrowed", DueDate: time.Now().AddDate(0, 0, -2)}, Title: "TAPL"},
	}

	mockBorrowRepo.On("List", mock.Anything, "R1", mock.Anything, mock.MatchedBy(func(values []string) bool {
		return len(values) == len(domain.StatusBorrowed.CompatibleStorageValues())
	})).Return(items, 2, nil)

	result, err := svc.ListBorrows(context.Background(), "R1", domain.BorrowListFilter{Status: "borrowed"})

	require.NoError(t, err)
	require.Len(t, result.Data, 2)

	// rows come back canonicalized regardless of stored vocabulary
	assert.Equal(t, "borrowed", result.Data[0].Status)
	assert.Equal(t, "borrowed", result.Data[1].Status)
	assert.Equal(t, 2, result.Pagination.Total)
	assert.Equal(t, 1, result.Pagination.TotalPages)

	// overdue and fines are derived at read time
	assert.False(t, result.Data[0].Overdue)
	assert.True(t, result.Data[0].AccruedFine.Equal(decimal.Zero))
	assert.True(t, result.Data[1].Overdue)
	assert.True(t, result.Data[1].AccruedFine.GreaterThan(decimal.Zero))
}

func TestListBorrows_UnrecognizedRowFailsClosed(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	items := []*domain.BorrowListItem{
		{BorrowRecord: domain.BorrowRecord{BorrowID: "BR1", Status: "scribble"}},
	}

	mockBorrowRepo.On("List", mock.Anything, "R1", mock.Anything, mock.Anything).Return(items, 1, nil)

	_, err := svc.ListBorrows(context.Background(), "R1", domain.BorrowListFilter{})

	require.Error(t, err)
	assert.Equal(t, customError.KindValidation, customError.KindOf(err))
	assert.True(t, errors.Is(err, customError.ErrUnrecognizedStatus))
}

func TestListBorrows_UnrecognizedFilterRejected(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	_, err := svc.ListBorrows(context.Background(), "R1", domain.BorrowListFilter{Status: "lost"})

	require.Error(t, err)
	assert.Equal(t, customError.KindValidation, customError.KindOf(err))
	mockBorrowRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStats_CombinesAnnotatedAndDerivedOverdue(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBorrowRepo.On("CountAll", mock.Anything).Return(120, nil)
	mockBorrowRepo.On("CountByStatusValues", mock.Anything, domain.StatusBorrowed.CompatibleStorageValues()).Return(30, nil)
	mockBorrowRepo.On("CountOverdue", mock.Anything,
		domain.StatusOverdue.CompatibleStorageValues(),
		domain.StatusBorrowed.CompatibleStorageValues(),
		mock.Anything,
	).Return(7, nil)

	stats, err := svc.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 120, stats.Total)
	assert.Equal(t, 30, stats.Current)
	assert.Equal(t, 7, stats.Overdue)
}

func TestMarkOverdue(t *testing.T) {
	mockBorrowRepo := &mocks.MockBorrowRepository{}
	mockBookRepo := &mocks.MockBookRepository{}
	svc := newTestService(mockBorrowRepo, mockBookRepo)

	mockBorrowRepo.On("MarkOverdue", mock.Anything,
		domain.StatusOverdue.StorageLabel(),
		domain.StatusBorrowed.CompatibleStorageValues(),
		mock.Anything,
	).Return(int64(4), nil)

	marked, err := svc.MarkOverdue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), marked)
}

func TestAccruedFine(t *testing.T) {
	svc := newTestService(&mocks.MockBorrowRepository{}, &mocks.MockBookRepository{})

	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	record := &domain.BorrowRecord{DueDate: due}

	// not yet due
	assert.True(t, svc.AccruedFine(record, due.AddDate(0, 0, -1)).Equal(decimal.Zero))

	// three full days late at 0.50/day
	assert.True(t, svc.AccruedFine(record, due.AddDate(0, 0, 3)).Equal(decimal.RequireFromString("1.50")))

	// a partial day counts as a full day
	assert.True(t, svc.AccruedFine(record, due.Add(36*time.Hour)).Equal(decimal.RequireFromString("1.00")))

	// accrual stops at the return date once set
	returned := due.AddDate(0, 0, 2)
	record.ReturnDate = &returned
	assert.True(t, svc.AccruedFine(record, due.AddDate(0, 0, 40)).Equal(decimal.RequireFromString("1.00")))
}

// memoryBorrowRepo simulates the storage contract for the double-borrow
// race: the open-record check and insert happen under one lock, the way the
// real repository runs them in one transaction.
type memoryBorrowRepo struct {
	mu   sync.Mutex
	open map[string]*domain.BorrowRecord
}

func newMemoryBorrowRepo() *memoryBorrowRepo {
	return &memoryBorrowRepo{open: make(map[string]*domain.BorrowRecord)}
}

func (m *memoryBorrowRepo) CreateIfAvailable(ctx context.Context, record *domain.BorrowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.open[record.BookID]; exists {
		return customError.ErrBookUnavailable
	}
	m.open[record.BookID] = record
	return nil
}

func (m *memoryBorrowRepo) GetByBorrowID(ctx context.Context, borrowID string) (*domain.BorrowRecord, error) {
	return nil, sql.ErrNoRows
}

func (m *memoryBorrowRepo) FindOpenByBookID(ctx context.Context, bookID string) (*domain.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.open[bookID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (m *memoryBorrowRepo) ExtendDueDate(ctx context.Context, borrowID string, fromDueDate, toDueDate time.Time) (*domain.BorrowRecord, error) {
	return nil, sql.ErrNoRows
}

func (m *memoryBorrowRepo) SetStatus(ctx context.Context, borrowID string, statusLabel string, returnDate *time.Time) (*domain.BorrowRecord, error) {
	return nil, sql.ErrNoRows
}

func (m *memoryBorrowRepo) List(ctx context.Context, readerID string, filter domain.BorrowListFilter, statusValues []string) ([]*domain.BorrowListItem, int, error) {
	return nil, 0, nil
}

func (m *memoryBorrowRepo) CountAll(ctx context.Context) (int, error) { return 0, nil }

func (m *memoryBorrowRepo) CountByStatusValues(ctx context.Context, statusValues []string) (int, error) {
	return 0, nil
}

func (m *memoryBorrowRepo) CountOverdue(ctx context.Context, overdueValues, borrowedValues []string, now time.Time) (int, error) {
	return 0, nil
}

func (m *memoryBorrowRepo) MarkOverdue(ctx context.Context, overdueLabel string, borrowedValues []string, now time.Time) (int64, error) {
	return 0, nil
}

func TestBorrow_ConcurrentCallsExactlyOneWins(t *testing.T) {
	mockBookRepo := &mocks.MockBookRepository{}
	mockBookRepo.On("GetByBookID", mock.Anything, "B1").Return(&domain.Book{BookID: "B1"}, nil)

	svc := NewCirculationService(newMemoryBorrowRepo(), mockBookRepo, nil, testConfig())

	const callers = 16

	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Borrow(context.Background(), "R1", "B1")
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case customError.KindOf(err) == customError.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}
