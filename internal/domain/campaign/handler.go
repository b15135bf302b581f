package campaign

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

// Handler handles campaign HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates campaign handler
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

// Create admits a new campaign
// POST /campaigns
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	var req CreateCampaignRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	resp, err := h.service.Create(r.Context(), accountID, &req)
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	response.Created(w, resp)
}

// Estimate previews the cost of a prospective campaign
// POST /campaigns/estimate
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	resp, err := h.service.Estimate(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrMissingRequiredField) {
			response.BadRequest(w, "Recipient source is required")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, resp)
}

// Get returns one campaign's current state
// GET /campaigns/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id := chi.URLParam(r, "id")

	c, err := h.service.Get(r.Context(), accountID, id)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			response.NotFound(w, "Campaign not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, c)
}

// List returns the caller's recent campaigns
// GET /campaigns
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	campaigns, err := h.service.ListRecent(r.Context(), accountID, limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, campaigns)
}

// Waves returns the per-wave dispatch log for a campaign
// GET /campaigns/{id}/waves
func (h *Handler) Waves(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	id := chi.URLParam(r, "id")

	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	waves, err := h.service.Waves(r.Context(), accountID, id, limit)
	if err != nil {
		if errors.Is(err, ErrCampaignNotFound) {
			response.NotFound(w, "Campaign not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, waves)
}

func writeAdmissionError(w http.ResponseWriter, err error) {
	var insufficient *credit.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		response.PaymentRequired(w, "INSUFFICIENT_CREDITS", map[string]string{
			"needed": strconv.Itoa(insufficient.Needed),
		})
	case errors.Is(err, ErrMissingRequiredField):
		response.BadRequest(w, "Sender, message and recipient source are required")
	case errors.Is(err, ErrNoSendableNumbers):
		response.Error(w, http.StatusBadRequest, "NO_SENDABLE_NUMBERS", "No valid recipients after normalization")
	case errors.Is(err, ErrTooManyRecipients):
		response.Error(w, http.StatusBadRequest, "TOO_MANY_RECIPIENTS", "Recipient count exceeds the per-campaign limit")
	case errors.Is(err, ErrInvalidScheduledTime):
		response.Error(w, http.StatusBadRequest, "INVALID_SCHEDULED_TIME", "Scheduled time must be in the future")
	default:
		response.InternalError(w)
	}
}
