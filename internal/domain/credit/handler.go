package credit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/smsfleet/smsfleet-api/internal/middleware"
	"github.com/smsfleet/smsfleet-api/internal/pkg/response"
	"github.com/smsfleet/smsfleet-api/internal/pkg/validator"
)

// Handler handles credit HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates credit handler
func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

// Balance returns the caller's current credit balance
// GET /credits/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	balance, err := h.service.Balance(r.Context(), accountID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, BalanceResponse{AccountID: accountID, Balance: balance})
}

// History returns the caller's ledger entries, newest first
// GET /credits/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())

	entries, err := h.service.History(r.Context(), accountID, paginationFromQuery(r, 20))
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, entries)
}

// Adjust changes one account's balance (admin only)
// POST /admin/credits/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	adj, err := h.service.Adjust(r.Context(), req.AccountID, AdjustMode(req.Mode), req.Amount, req.Reason, actorFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(w, "Invalid adjustment amount")
		case errors.Is(err, ErrAccountNotFound):
			response.NotFound(w, "Account not found")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, AdjustResponse{AccountID: req.AccountID, Before: adj.Before, After: adj.After})
}

// GrantAll credits every account (admin only)
// POST /admin/credits/grant-all
func (h *Handler) GrantAll(w http.ResponseWriter, r *http.Request) {
	var req GrantAllRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	accounts, err := h.service.GrantToAll(r.Context(), req.Amount, req.Reason, actorFromRequest(r))
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(w, "Invalid grant amount")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, GrantAllResponse{Amount: req.Amount, Accounts: accounts})
}

// AdminLog returns the global adjustment audit trail (admin only)
// GET /admin/credits/log
func (h *Handler) AdminLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.AdminLog(r.Context(), paginationFromQuery(r, 50))
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, entries)
}

func paginationFromQuery(r *http.Request, defaultLimit int) Pagination {
	p := Pagination{Limit: defaultLimit}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		p.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		p.Offset = v
	}
	return p
}

func actorFromRequest(r *http.Request) string {
	if actor := r.Header.Get("X-Admin-Actor"); actor != "" {
		return actor
	}
	return "admin"
}
