package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

// ReimbursementHandler is the hook used by the payout collaborator to read
// and settle store obligations.
type ReimbursementHandler struct {
	service domain.ReimbursementService
	logger  logger.Logger
}

func NewReimbursementHandler(service domain.ReimbursementService, logger logger.Logger) *ReimbursementHandler {
	return &ReimbursementHandler{
		service: service,
		logger:  logger,
	}
}

func (h *ReimbursementHandler) RegisterRoutes(r chi.Router) {
	r.Route("/reimbursements", func(r chi.Router) {
		r.Get("/", h.ListPending)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/settle", h.Settle)
	})
}

func (h *ReimbursementHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	storeID, err := queryID(r, "store_id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	obligations, err := h.service.ListPending(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if obligations == nil {
		obligations = []*domain.ReimbursementObligation{}
	}

	writeJSON(w, http.StatusOK, obligations)
}

func (h *ReimbursementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *ReimbursementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	obligation, err := h.service.MarkSettled(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, obligation)
}
