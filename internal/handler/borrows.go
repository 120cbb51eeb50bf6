package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/unilib/circulation-engine/internal/domain"
	"github.com/unilib/circulation-engine/internal/service"
	customError "github.com/unilib/circulation-engine/pkg/errors"
	"github.com/unilib/circulation-engine/pkg/response"
)

// readerHeader carries the authenticated reader identity. Session handling
// itself lives in front of this service.
const readerHeader = "X-Reader-ID"

type BorrowHandler struct {
	service   *service.CirculationService
	validator *validator.Validate
}

func NewBorrowHandler(service *service.CirculationService) *BorrowHandler {
	return &BorrowHandler{
		service:   service,
		validator: validator.New(),
	}
}

// List returns the calling reader's borrow records with search, status and
// date-range filters.
func (h *BorrowHandler) List(w http.ResponseWriter, r *http.Request) {
	readerID := r.Header.Get(readerHeader)
	if readerID == "" {
		response.Unauthorized(w, "reader identity required")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		response.BadRequest(w, "invalid filter parameters", err)
		return
	}

	result, err := h.service.ListBorrows(r.Context(), readerID, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, result)
}

// Borrow lends a book to the calling reader.
func (h *BorrowHandler) Borrow(w http.ResponseWriter, r *http.Request) {
	readerID := r.Header.Get(readerHeader)
	if readerID == "" {
		response.Unauthorized(w, "reader identity required")
		return
	}

	var req domain.BorrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		response.BadRequest(w, "missing book ID", err)
		return
	}

	record, err := h.service.Borrow(r.Context(), readerID, req.BookID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Created(w, record)
}

// Renew extends the due date of one of the calling reader's records.
func (h *BorrowHandler) Renew(w http.ResponseWriter, r *http.Request) {
	readerID := r.Header.Get(readerHeader)
	if readerID == "" {
		response.Unauthorized(w, "reader identity required")
		return
	}

	borrowID := mux.Vars(r)["id"]

	record, err := h.service.Renew(r.Context(), borrowID, readerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, record)
}

// Availability reports whether a book can currently be borrowed.
func (h *BorrowHandler) Availability(w http.ResponseWriter, r *http.Request) {
	bookID := mux.Vars(r)["id"]

	available, err := h.service.BookAvailability(r.Context(), bookID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"book_id":   bookID,
		"available": available,
	})
}

func parseListFilter(r *http.Request) (domain.BorrowListFilter, error) {
	q := r.URL.Query()

	filter := domain.BorrowListFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Page:   1,
		Limit:  10,
	}

	if page := q.Get("page"); page != "" {
		v, err := strconv.Atoi(page)
		if err != nil {
			return filter, err
		}
		filter.Page = v
	}

	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil {
			return filter, err
		}
		filter.Limit = v
	}

	if start := q.Get("start_date"); start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return filter, err
		}
		filter.StartDate = &t
	}

	if end := q.Get("end_date"); end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return filter, err
		}
		filter.EndDate = &t
	}

	return filter, nil
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Kinds stay
// distinguishable all the way to the client: a missing book is never
// reported as an unavailable one.
func writeServiceError(w http.ResponseWriter, err error) {
	switch customError.KindOf(err) {
	case customError.KindNotFound:
		response.Error(w, http.StatusNotFound, "not found", err)
	case customError.KindConflict:
		response.Error(w, http.StatusConflict, "conflict", err)
	case customError.KindInvalidState:
		response.Error(w, http.StatusBadRequest, "invalid state", err)
	case customError.KindForbidden:
		response.Error(w, http.StatusForbidden, "forbidden", err)
	case customError.KindValidation:
		response.Error(w, http.StatusBadRequest, "validation failed", err)
	default:
		response.Error(w, http.StatusServiceUnavailable, "service unavailable", err)
	}
}
