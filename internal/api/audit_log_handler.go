package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

type AuditLogHandler struct {
	service domain.AuditLogService
	logger  logger.Logger
}

func NewAuditLogHandler(service domain.AuditLogService, logger logger.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		service: service,
		logger:  logger,
	}
}

func (h *AuditLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/audit-logs", h.GetAllLogs)
	r.Get("/audit-logs/{entityType}/{entityID}", h.GetEntityLogs)
}

func (h *AuditLogHandler) GetAllLogs(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1, 1, 1<<30)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 50, 1, 100)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	logs, err := h.service.GetAllLogs(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}

	writeJSON(w, http.StatusOK, logs)
}

func (h *AuditLogHandler) GetEntityLogs(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	switch entityType {
	case domain.EntityTypeBalance, domain.EntityTypeReimbursement:
	default:
		writeServiceError(w, r, h.logger, badRequest("entity type must be balance or reimbursement"))
		return
	}

	entityID, err := pathID(r, "entityID")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	logs, err := h.service.GetEntityLogs(r.Context(), entityType, entityID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}

	writeJSON(w, http.StatusOK, logs)
}
