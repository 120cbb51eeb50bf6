package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/unilib/circulation-engine/internal/config"
	"github.com/unilib/circulation-engine/internal/domain"
	"github.com/unilib/circulation-engine/internal/repository"
	customError "github.com/unilib/circulation-engine/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const statsCacheKey = "circulation:stats"

// CirculationService enforces the borrow/renew/return state machine. All
// state lives in storage; the service re-reads current state inside each
// operation and never caches record state between calls. The only cached
// artifact is the aggregate stats snapshot.
type CirculationService struct {
	borrowRepo repository.BorrowRepository
	bookRepo   repository.BookRepository
	redis      *redis.Client
	config     *config.Config
}

func NewCirculationService(
	borrowRepo repository.BorrowRepository,
	bookRepo repository.BookRepository,
	redis *redis.Client,
	config *config.Config,
) *CirculationService {
	return &CirculationService{
		borrowRepo: borrowRepo,
		bookRepo:   bookRepo,
		redis:      redis,
		config:     config,
	}
}

// Borrow lends a book to a reader. The availability check and the insert
// run as one transaction in the repository, so of two concurrent calls for
// the same book exactly one wins and the other observes the conflict.
func (s *CirculationService) Borrow(ctx context.Context, readerID, bookID string) (*domain.BorrowRecord, error) {
	_, err := s.bookRepo.GetByBookID(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapBookNotFound(bookID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	now := time.Now()
	record := &domain.BorrowRecord{
		ID:         uuid.New(),
		BorrowID:   uuid.NewString(),
		ReaderID:   readerID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    now.AddDate(0, 0, s.config.Business.LoanPeriodDays),
		Status:     domain.StatusBorrowed.StorageLabel(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.borrowRepo.CreateIfAvailable(ctx, record); err != nil {
		switch {
		case errors.Is(err, customError.ErrBookNotFound):
			return nil, customError.WrapBookNotFound(bookID)
		case errors.Is(err, customError.ErrBookUnavailable):
			return nil, customError.WrapBookUnavailable(bookID)
		default:
			return nil, customError.WrapDatabaseError(err)
		}
	}

	s.invalidateStats(ctx)

	return record, nil
}

// BookAvailability reports whether a book can currently be borrowed, i.e.
// it exists in the catalog and has no open borrow record. Advisory only:
// Borrow re-checks inside its own transaction.
func (s *CirculationService) BookAvailability(ctx context.Context, bookID string) (bool, error) {
	_, err := s.bookRepo.GetByBookID(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, customError.WrapBookNotFound(bookID)
	}
	if err != nil {
		return false, customError.WrapDatabaseError(err)
	}

	_, err = s.borrowRepo.FindOpenByBookID(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, customError.WrapDatabaseError(err)
	}

	return false, nil
}

// Renew extends the due date of a currently borrowed record by the
// configured renew period, counted from the previous due date. Repeated
// renewals compound; the operation is deliberately not idempotent.
func (s *CirculationService) Renew(ctx context.Context, borrowID, readerID string) (*domain.BorrowRecord, error) {
	record, err := s.borrowRepo.GetByBorrowID(ctx, borrowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapBorrowNotFound(borrowID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if record.ReaderID != readerID {
		return nil, customError.WrapNotRecordOwner(borrowID, readerID)
	}

	status, err := domain.ParseStatus(record.Status)
	if err != nil {
		return nil, err
	}

	if status != domain.StatusBorrowed {
		return nil, customError.WrapNotRenewable(borrowID)
	}

	// Overdue items cannot be renewed, a business rule. The due date is
	// checked directly rather than any persisted overdue annotation.
	if record.DueDate.Before(time.Now()) {
		return nil, customError.WrapRenewOverdue(borrowID)
	}

	newDueDate := record.DueDate.AddDate(0, 0, s.config.Business.RenewPeriodDays)

	// The write is guarded on the due date and open-ness read above; if the
	// record was returned or otherwise changed in between, the update
	// matches nothing and the renewal is rejected rather than applied to a
	// record that no longer satisfies the preconditions.
	updated, err := s.borrowRepo.ExtendDueDate(ctx, borrowID, record.DueDate, newDueDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapNotRenewable(borrowID)
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return updated, nil
}

// SetStatus is the administrative status override used by staff, including
// recording a physical return. Only borrowed, returned and overdue are
// assignable; the raw input may arrive in either vocabulary. A return date
// is applied only when the target is returned and a date was supplied -
// this operation never invents one.
func (s *CirculationService) SetStatus(ctx context.Context, borrowID, rawStatus string, returnDate *time.Time) (*domain.BorrowRecord, error) {
	status, err := domain.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	if !status.IsAdminAssignable() {
		return nil, customError.WrapStatusNotAssignable(rawStatus)
	}

	if _, err := s.borrowRepo.GetByBorrowID(ctx, borrowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapBorrowNotFound(borrowID)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	var applyReturnDate *time.Time
	if status == domain.StatusReturned && returnDate != nil {
		applyReturnDate = returnDate
	}

	updated, err := s.borrowRepo.SetStatus(ctx, borrowID, status.StorageLabel(), applyReturnDate)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	s.invalidateStats(ctx)

	return updated, nil
}

// ListBorrows pages through borrow records joined with their catalog
// entries. An empty readerID lists across all readers (the admin view).
// Stored statuses are canonicalized before leaving this layer; a row whose
// status falls outside the known vocabulary fails the call rather than
// leaking the raw value through.
func (s *CirculationService) ListBorrows(ctx context.Context, readerID string, filter domain.BorrowListFilter) (*domain.BorrowListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	var statusValues []string
	if filter.Status != "" {
		status, err := domain.ParseStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		statusValues = status.CompatibleStorageValues()
	}

	items, total, err := s.borrowRepo.List(ctx, readerID, filter, statusValues)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	now := time.Now()
	for _, item := range items {
		status, err := domain.ParseStatus(item.Status)
		if err != nil {
			return nil, customError.New(
				customError.KindValidation,
				customError.ErrCodeUnrecognizedStatus,
				fmt.Sprintf("borrow record %s has unrecognized status %q", item.BorrowID, item.Status),
				customError.ErrUnrecognizedStatus,
			)
		}
		item.Status = status.String()
		item.Overdue = item.PastDue(now)
		item.AccruedFine = s.AccruedFine(&item.BorrowRecord, now)
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit

	return &domain.BorrowListResponse{
		Data: items,
		Pagination: domain.Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    filter.Page < totalPages,
			HasPrev:    filter.Page > 1,
		},
	}, nil
}

// Stats returns the circulation dashboard counts. Overdue combines the
// persisted annotation with the derived predicate (borrowed and past due),
// matching how the records themselves are interpreted. The snapshot is
// cached; cache failures degrade to the database.
func (s *CirculationService) Stats(ctx context.Context) (*domain.CirculationStats, error) {
	if cached := s.cachedStats(ctx); cached != nil {
		return cached, nil
	}

	total, err := s.borrowRepo.CountAll(ctx)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	current, err := s.borrowRepo.CountByStatusValues(ctx, domain.StatusBorrowed.CompatibleStorageValues())
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	overdue, err := s.borrowRepo.CountOverdue(ctx,
		domain.StatusOverdue.CompatibleStorageValues(),
		domain.StatusBorrowed.CompatibleStorageValues(),
		time.Now(),
	)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	stats := &domain.CirculationStats{
		Total:   total,
		Current: current,
		Overdue: overdue,
	}

	s.storeStats(ctx, stats)

	return stats, nil
}

// MarkOverdue stamps the overdue annotation on open borrowed records past
// their due date. Run by the scheduler; the derived predicate remains the
// source of truth, so a missed sweep changes nothing about how records are
// interpreted.
func (s *CirculationService) MarkOverdue(ctx context.Context) (int64, error) {
	marked, err := s.borrowRepo.MarkOverdue(ctx,
		domain.StatusOverdue.StorageLabel(),
		domain.StatusBorrowed.CompatibleStorageValues(),
		time.Now(),
	)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	if marked > 0 {
		s.invalidateStats(ctx)
	}

	return marked, nil
}

// AccruedFine computes the fine owed on a record as of the given instant.
// Accrual stops at the return date once set. Partial days count as a full
// day.
func (s *CirculationService) AccruedFine(record *domain.BorrowRecord, asOf time.Time) decimal.Decimal {
	end := asOf
	if record.ReturnDate != nil {
		end = *record.ReturnDate
	}

	if !end.After(record.DueDate) {
		return decimal.Zero
	}

	late := end.Sub(record.DueDate)
	days := int64(late.Hours() / 24)
	if late%(24*time.Hour) != 0 {
		days++
	}

	return s.config.GetDailyFineRate().Mul(decimal.NewFromInt(days))
}

func (s *CirculationService) cachedStats(ctx context.Context) *domain.CirculationStats {
	if s.redis == nil {
		return nil
	}

	payload, err := s.redis.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("stats cache read failed: %v", customError.WrapCacheError(err))
		}
		return nil
	}

	var stats domain.CirculationStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		log.Printf("stats cache payload invalid: %v", err)
		return nil
	}

	return &stats
}

func (s *CirculationService) storeStats(ctx context.Context, stats *domain.CirculationStats) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, statsCacheKey, payload, s.config.GetStatsCacheTTL()).Err(); err != nil {
		log.Printf("stats cache write failed: %v", customError.WrapCacheError(err))
	}
}

func (s *CirculationService) invalidateStats(ctx context.Context) {
	if s.redis == nil {
		return
	}

	if err := s.redis.Del(ctx, statsCacheKey).Err(); err != nil {
		log.Printf("stats cache invalidation failed: %v", customError.WrapCacheError(err))
	}
}
