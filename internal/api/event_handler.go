package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

// EventHandler accepts collaborator notifications for asynchronous
// processing.
type EventHandler struct {
	intake domain.EventIntakeService
	logger logger.Logger
}

type EventRequest struct {
	Type          string          `json:"type" validate:"required,oneof=purchase_approved balance_redeemed purchase_cancelled"`
	CustomerID    int64           `json:"customer_id" validate:"required,gt=0"`
	StoreID       int64           `json:"store_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=255"`
	TransactionID *int64          `json:"transaction_id" validate:"omitempty,gt=0"`
}

type EventAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func NewEventHandler(intake domain.EventIntakeService, logger logger.Logger) *EventHandler {
	return &EventHandler{
		intake: intake,
		logger: logger,
	}
}

func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.Submit)
	r.Get("/events/stats", h.Stats)
}

func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	id, err := h.intake.Submit(r.Context(), &domain.LedgerEvent{
		Type:          domain.EventType(req.Type),
		CustomerID:    req.CustomerID,
		StoreID:       req.StoreID,
		Amount:        req.Amount,
		Description:   req.Description,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, EventAccepted{ID: id, Status: "queued"})
}

func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.intake.Stats())
}
