package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

type BalanceHandler struct {
	query  domain.BalanceQuery
	logger logger.Logger
}

type StoreBalanceResponse struct {
	CustomerID int64           `json:"customer_id"`
	StoreID    int64           `json:"store_id"`
	Available  decimal.Decimal `json:"available"`
}

func NewBalanceHandler(query domain.BalanceQuery, logger logger.Logger) *BalanceHandler {
	return &BalanceHandler{
		query:  query,
		logger: logger,
	}
}

func (h *BalanceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/customers/{customerID}", func(r chi.Router) {
		r.Get("/balances", h.GetAllBalances)
		r.Get("/stores/{storeID}/balance", h.GetStoreBalance)
		r.Get("/stores/{storeID}/movements", h.GetMovementHistory)
		r.Get("/stores/{storeID}/statistics", h.GetStatistics)
	})
}

func (h *BalanceHandler) GetAllBalances(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r, "customerID")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var filter domain.BalanceFilter
	if filter.PartnerProgramOnly, err = queryBool(r, "partner_only"); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if filter.IncludeZero, err = queryBool(r, "include_zero"); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	views, err := h.query.GetAllBalances(r.Context(), customerID, filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if views == nil {
		views = []domain.BalanceView{}
	}

	writeJSON(w, http.StatusOK, views)
}

func (h *BalanceHandler) GetStoreBalance(w http.ResponseWriter, r *http.Request) {
	customerID, storeID, err := balanceKey(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	available, err := h.query.GetStoreBalance(r.Context(), customerID, storeID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, StoreBalanceResponse{
		CustomerID: customerID,
		StoreID:    storeID,
		Available:  available,
	})
}

func (h *BalanceHandler) GetMovementHistory(w http.ResponseWriter, r *http.Request) {
	customerID, storeID, err := balanceKey(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	page, err := queryInt(r, "page", 1, 1, 1<<30)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 20, 1, 100)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	history, err := h.query.GetMovementHistory(r.Context(), customerID, storeID, page, pageSize)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

func (h *BalanceHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	customerID, storeID, err := balanceKey(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	stats, err := h.query.GetStatistics(r.Context(), customerID, storeID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func balanceKey(r *http.Request) (int64, int64, error) {
	customerID, err := pathID(r, "customerID")
	if err != nil {
		return 0, 0, err
	}
	storeID, err := pathID(r, "storeID")
	if err != nil {
		return 0, 0, err
	}
	return customerID, storeID, nil
}
