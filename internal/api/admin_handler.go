package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cashback/internal/domain"
	"cashback/pkg/logger"
)

type AdminHandler struct {
	query  domain.BalanceQuery
	logger logger.Logger
}

func NewAdminHandler(query domain.BalanceQuery, logger logger.Logger) *AdminHandler {
	return &AdminHandler{
		query:  query,
		logger: logger,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/admin/reconcile", h.Reconcile)
}

// Reconcile recomputes balances from movement history. With dry_run=true
// drift is only reported.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	customerID, err := queryID(r, "customer_id")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var report *domain.ReconcileReport
	if dryRun {
		report, err = h.query.DetectDrift(r.Context(), customerID)
	} else {
		report, err = h.query.Reconcile(r.Context(), customerID)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Reconcile requested", map[string]interface{}{
		"dry_run":  dryRun,
		"checked":  report.Checked,
		"drifted":  report.Drifted,
		"repaired": report.Repaired,
		"failed":   report.Failed,
	})

	writeJSON(w, http.StatusOK, report)
}
