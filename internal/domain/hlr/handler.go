package hlr

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smsfleet/smsfleet-api/internal/domain/credit"
	"github.com/smsfleet/smsfleet-api/internal/middleware"
	"github.com/smsfleet/smsfleet-api/internal/pkg/response"
	"github.com/smsfleet/smsfleet-api/internal/pkg/validator"
)

// Handler handles lookup job HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates lookup handler
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

// Save stores a number list without charging
// POST /hlr
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	var req SaveRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	resp, err := h.service.Save(r.Context(), accountID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoSendableNumbers):
			response.Error(w, http.StatusBadRequest, "NO_SENDABLE_NUMBERS", "No valid numbers after normalization")
		case errors.Is(err, ErrTooManyNumbers):
			response.Error(w, http.StatusBadRequest, "TOO_MANY_NUMBERS", "Number count exceeds the per-job limit")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, resp)
}

// Run admits a saved job and charges for it
// POST /hlr/{id}/run
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id := chi.URLParam(r, "id")

	resp, err := h.service.Run(r.Context(), accountID, id)
	if err != nil {
		var insufficient *credit.InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			response.PaymentRequired(w, "INSUFFICIENT_CREDITS", map[string]string{
				"needed": strconv.Itoa(insufficient.Needed),
			})
		case errors.Is(err, ErrJobNotFound):
			response.NotFound(w, "Lookup job not found")
		case errors.Is(err, ErrAlreadyRunning):
			response.Conflict(w, "ALREADY_RUNNING", "Lookup job is already running")
		case errors.Is(err, ErrAlreadyCompleted):
			response.Conflict(w, "ALREADY_COMPLETED", "Lookup job has already completed")
		case errors.Is(err, ErrNoSendableNumbers):
			response.Error(w, http.StatusBadRequest, "NO_SENDABLE_NUMBERS", "No valid numbers after normalization")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, resp)
}

// Status returns the progress view for one job
// GET /hlr/{id}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id := chi.URLParam(r, "id")

	resp, err := h.service.Status(r.Context(), accountID, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			response.NotFound(w, "Lookup job not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, resp)
}

// Download returns a time-limited result download link
// GET /hlr/{id}/download
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id := chi.URLParam(r, "id")

	resp, err := h.service.Download(r.Context(), accountID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			response.NotFound(w, "Lookup job not found")
		case errors.Is(err, ErrResultPurged):
			response.Error(w, http.StatusGone, "RESULT_PURGED", "Lookup result has passed its retention window")
		case errors.Is(err, ErrNotReady):
			response.Conflict(w, "NOT_READY", "Lookup job has not completed yet")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, resp)
}

// List returns the caller's recent lookup jobs
// GET /hlr
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	jobs, err := h.service.List(r.Context(), accountID, limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, jobs)
}
