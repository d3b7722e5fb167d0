package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

type StoreHandler struct {
	service domain.StoreService
	logger  logger.Logger
}

type StoreRequest struct {
	Name           string `json:"name" validate:"required,max=120"`
	PartnerProgram bool   `json:"partner_program"`
}

func NewStoreHandler(service domain.StoreService, logger logger.Logger) *StoreHandler {
	return &StoreHandler{
		service: service,
		logger:  logger,
	}
}

func (h *StoreHandler) RegisterRoutes(r chi.Router) {
	r.Put("/stores/{storeID}", h.RegisterStore)
	r.Get("/stores/{storeID}", h.GetStore)
}

func (h *StoreHandler) RegisterStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "storeID")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req StoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	store, err := h.service.RegisterStore(r.Context(), &domain.StoreProfile{
		StoreID:        storeID,
		Name:           req.Name,
		PartnerProgram: req.PartnerProgram,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, store)
}

func (h *StoreHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	storeID, err := pathID(r, "storeID")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	store, err := h.service.GetStore(r.Context(), storeID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, store)
}
