package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/unilib/circulation-engine/internal/domain"
	"github.com/unilib/circulation-engine/internal/repository"
	"github.com/unilib/circulation-engine/internal/service"
	"github.com/unilib/circulation-engine/pkg/response"
)

type AdminHandler struct {
	service    *service.CirculationService
	readerRepo repository.ReaderRepository
	validator  *validator.Validate
}

func NewAdminHandler(service *service.CirculationService, readerRepo repository.ReaderRepository) *AdminHandler {
	return &AdminHandler{
		service:    service,
		readerRepo: readerRepo,
		validator:  validator.New(),
	}
}

// RequireAdmin verifies the calling reader holds the admin flag.
func (h *AdminHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readerID := r.Header.Get(readerHeader)
		if readerID == "" {
			response.Unauthorized(w, "reader identity required")
			return
		}

		reader, err := h.readerRepo.GetByReaderID(r.Context(), readerID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !reader.IsAdmin) {
			response.Forbidden(w, "admin privileges required")
			return
		}
		if err != nil {
			response.InternalServerError(w, "failed to verify privileges", err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListBorrows returns borrow records across all readers.
func (h *AdminHandler) ListBorrows(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		response.BadRequest(w, "invalid filter parameters", err)
		return
	}

	result, err := h.service.ListBorrows(r.Context(), "", filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, result)
}

// Stats returns the circulation dashboard counts.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, stats)
}

// SetStatus is the administrative status override, including recording a
// physical return.
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	borrowID := mux.Vars(r)["id"]

	var req domain.SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		response.BadRequest(w, "missing status", err)
		return
	}

	record, err := h.service.SetStatus(r.Context(), borrowID, req.Status, req.ReturnDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, record)
}
