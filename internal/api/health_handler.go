package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cashback/internal/domain"
	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// DatabaseHealth is implemented by the connection manager.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

type HealthHandler struct {
	database DatabaseHealth
	cache    cache.Cache
	events   domain.EventIntakeService
	version  string
	logger   logger.Logger
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
	Version   string                 `json:"version"`
}

func NewHealthHandler(database DatabaseHealth, cache cache.Cache, events domain.EventIntakeService, version string, logger logger.Logger) *HealthHandler {
	return &HealthHandler{
		database: database,
		cache:    cache,
		events:   events,
		version:  version,
		logger:   logger,
	}
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/health/live", h.LivenessCheck)
	r.Get("/health/ready", h.ReadinessCheck)
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	services := map[string]interface{}{
		"database": h.checkDatabaseHealth(ctx),
		"cache":    h.checkCacheHealth(ctx),
	}
	if h.events != nil {
		services["event_intake"] = h.checkEventIntake()
	}

	status := "healthy"
	for _, service := range services {
		if serviceMap, ok := service.(map[string]interface{}); ok && serviceMap["status"] != "healthy" {
			status = "degraded"
			break
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
		h.logger.WarnContext(r.Context(), "Health check degraded", map[string]interface{}{"services": services})
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
	})
}

func (h *HealthHandler) checkDatabaseHealth(ctx context.Context) map[string]interface{} {
	if h.database == nil {
		return map[string]interface{}{
			"status": "unhealthy",
			"error":  "database is not configured",
		}
	}

	if err := h.database.Ping(ctx); err != nil {
		return map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}
	}

	return map[string]interface{}{
		"status": "healthy",
		"stats":  h.database.GetStats(),
	}
}

func (h *HealthHandler) checkCacheHealth(ctx context.Context) map[string]interface{} {
	if h.cache == nil {
		return map[string]interface{}{
			"status": "unhealthy",
			"error":  "cache is not configured",
		}
	}

	const testKey = "health_check_test"
	if err := h.cache.Set(ctx, testKey, "ok", time.Minute); err != nil {
		return map[string]interface{}{
			"status": "unhealthy",
			"error":  "cache set failed: " + err.Error(),
		}
	}

	var result string
	if err := h.cache.Get(ctx, testKey, &result); err != nil {
		return map[string]interface{}{
			"status": "unhealthy",
			"error":  "cache get failed: " + err.Error(),
		}
	}

	_ = h.cache.Delete(ctx, testKey)

	return map[string]interface{}{
		"status": "healthy",
	}
}

func (h *HealthHandler) checkEventIntake() map[string]interface{} {
	stats := h.events.Stats()
	status := "healthy"
	if stats.QueueCapacity > 0 && stats.QueueLength >= stats.QueueCapacity {
		status = "saturated"
	}
	return map[string]interface{}{
		"status":         status,
		"queue_length":   stats.QueueLength,
		"queue_capacity": stats.QueueCapacity,
		"completed":      stats.Completed,
		"failed":         stats.Failed,
		"declined":       stats.Declined,
		"rejected":       stats.Rejected,
		"dead_letters":   len(stats.DeadLetters),
	}
}

func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	issues := make([]string, 0)

	if h.database == nil {
		issues = append(issues, "database: not configured")
	} else if err := h.database.Ping(ctx); err != nil {
		issues = append(issues, "database: "+err.Error())
	}

	if h.cache == nil {
		issues = append(issues, "cache: not configured")
	} else if err := h.cache.Ping(ctx); err != nil {
		issues = append(issues, "cache: "+err.Error())
	}

	response := map[string]interface{}{
		"timestamp": time.Now(),
	}

	if len(issues) == 0 {
		response["status"] = "ready"
		writeJSON(w, http.StatusOK, response)
		return
	}

	response["status"] = "not_ready"
	response["issues"] = issues
	writeJSON(w, http.StatusServiceUnavailable, response)
}
