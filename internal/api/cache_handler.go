package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

// CacheHandler is the operator surface of the read-side cache.
type CacheHandler struct {
	cache         cache.Cache
	warmUpManager *cache.WarmUpManager
	logger        logger.Logger
}

type WarmUpRequest struct {
	CustomerIDs []int64 `json:"customer_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

type CacheInvalidateRequest struct {
	CustomerID int64 `json:"customer_id" validate:"required,gt=0"`
	StoreID    int64 `json:"store_id" validate:"required,gt=0"`
}

func NewCacheHandler(cache cache.Cache, warmUpManager *cache.WarmUpManager, logger logger.Logger) *CacheHandler {
	return &CacheHandler{
		cache:         cache,
		warmUpManager: warmUpManager,
		logger:        logger,
	}
}

func (h *CacheHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/cache", func(r chi.Router) {
		r.Post("/warmup", h.handleWarmUp)
		r.Post("/invalidate", h.handleInvalidate)
		r.Get("/health", h.handleHealth)
	})
}

func (h *CacheHandler) handleWarmUp(w http.ResponseWriter, r *http.Request) {
	var req WarmUpRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	started := time.Now()
	h.warmUpManager.WarmUpCustomers(r.Context(), req.CustomerIDs)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"customers": len(req.CustomerIDs),
		"duration":  time.Since(started).String(),
	})
}

func (h *CacheHandler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req CacheInvalidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := cache.InvalidateBalanceCache(r.Context(), h.cache, req.CustomerID, req.StoreID); err != nil {
		h.logger.ErrorContext(r.Context(), "Cache invalidation failed", map[string]interface{}{
			"customer_id": req.CustomerID,
			"store_id":    req.StoreID,
			"error":       err.Error(),
		})
		writeError(w, http.StatusServiceUnavailable, "cache invalidation failed", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"customer_id": req.CustomerID,
		"store_id":    req.StoreID,
	})
}

func (h *CacheHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"timestamp": time.Now(),
	}

	if err := h.cache.Ping(r.Context()); err != nil {
		response["status"] = "unhealthy"
		response["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response["status"] = "healthy"
	writeJSON(w, http.StatusOK, response)
}
