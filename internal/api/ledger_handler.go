package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

// LedgerHandler exposes the three ledger mutations to the purchase,
// redemption and cancellation collaborators.
type LedgerHandler struct {
	service domain.LedgerService
	logger  logger.Logger
}

type CreditRequest struct {
	CustomerID          int64           `json:"customer_id" validate:"required,gt=0"`
	StoreID             int64           `json:"store_id" validate:"required,gt=0"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description" validate:"max=255"`
	OriginTransactionID *int64          `json:"origin_transaction_id" validate:"omitempty,gt=0"`
}

type DebitRequest struct {
	CustomerID         int64           `json:"customer_id" validate:"required,gt=0"`
	StoreID            int64           `json:"store_id" validate:"required,gt=0"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description" validate:"max=255"`
	UsageTransactionID *int64          `json:"usage_transaction_id" validate:"omitempty,gt=0"`
}

type RefundRequest struct {
	CustomerID           int64           `json:"customer_id" validate:"required,gt=0"`
	StoreID              int64           `json:"store_id" validate:"required,gt=0"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description" validate:"max=255"`
	RelatedTransactionID *int64          `json:"related_transaction_id" validate:"omitempty,gt=0"`
}

type MutationResponse struct {
	Movement           *domain.Movement     `json:"movement,omitempty"`
	Balance            domain.BalanceRecord `json:"balance"`
	MovementRecorded   bool                 `json:"movement_recorded"`
	ReimbursementID    *int64               `json:"reimbursement_id,omitempty"`
	ReimbursementError string               `json:"reimbursement_error,omitempty"`
}

func NewLedgerHandler(service domain.LedgerService, logger logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		logger:  logger,
	}
}

func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ledger/credits", h.Credit)
	r.Post("/ledger/debits", h.Debit)
	r.Post("/ledger/refunds", h.Refund)
}

func (h *LedgerHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Credit(r.Context(), domain.CreditRequest{
		CustomerID:          req.CustomerID,
		StoreID:             req.StoreID,
		Amount:              req.Amount,
		Description:         req.Description,
		OriginTransactionID: req.OriginTransactionID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMutationResponse(result))
}

func (h *LedgerHandler) Debit(w http.ResponseWriter, r *http.Request) {
	var req DebitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Debit(r.Context(), domain.DebitRequest{
		CustomerID:         req.CustomerID,
		StoreID:            req.StoreID,
		Amount:             req.Amount,
		Description:        req.Description,
		UsageTransactionID: req.UsageTransactionID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMutationResponse(result))
}

func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.service.Refund(r.Context(), domain.RefundRequest{
		CustomerID:           req.CustomerID,
		StoreID:              req.StoreID,
		Amount:               req.Amount,
		Description:          req.Description,
		RelatedTransactionID: req.RelatedTransactionID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMutationResponse(result))
}

func toMutationResponse(result *domain.MutationResult) MutationResponse {
	resp := MutationResponse{
		Balance:          result.Balance,
		MovementRecorded: result.MovementRecorded,
	}
	if result.MovementRecorded {
		resp.Movement = result.Movement
	}
	if ob := result.Obligation; ob != nil {
		resp.ReimbursementID = ob.ReimbursementID
		if ob.Err != nil {
			resp.ReimbursementError = "reimbursement could not be recorded"
		}
	}
	return resp
}
