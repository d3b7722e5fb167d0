package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestReimbursementHandler_ListGetSettle(t *testing.T) {
	s := newTestServer(t)
	s.credit(1, 5, "100")
	s.credit(2, 5, "100")

	var obligationID int64
	for customer, amount := range map[int64]string{1: "30", 2: "20"} {
		rec := s.do(http.MethodPost, "/api/ledger/debits", map[string]interface{}{"customer_id": customer, "store_id": 5, "amount": amount})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[MutationResponse](t, rec)
		require.NotNil(t, res.ReimbursementID)
		if obligationID != 0 {
			assert.Equal(t, obligationID, *res.ReimbursementID)
		}
		obligationID = *res.ReimbursementID
	}

	rec := s.do(http.MethodGet, "/api/reimbursements?store_id=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]domain.ReimbursementObligation](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, "50.00", pending[0].TotalAmount.StringFixed(2))
	assert.Equal(t, domain.ObligationStatusPending, pending[0].Status)

	rec = s.do(http.MethodGet, "/api/reimbursements?store_id=6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/reimbursements/%d", obligationID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.ReimbursementDetail](t, rec)
	assert.Len(t, detail.Movements, 2)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/reimbursements/%d/settle", obligationID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[domain.ReimbursementObligation](t, rec)
	assert.Equal(t, domain.ObligationStatusSettled, settled.Status)

	rec = s.do(http.MethodPost, fmt.Sprintf("/api/reimbursements/%d/settle", obligationID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/reimbursements/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/reimbursements?store_id=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/audit-logs/reimbursement/%d", obligationID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]domain.AuditLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionTypeSettle, logs[0].Action)
}

func TestAdminHandler_Reconcile(t *testing.T) {
	s := newTestServer(t)
	s.credit(1, 5, "50")

	_, err := s.db.Exec(`UPDATE balances SET available = '80.00', total_credited = '80.00' WHERE customer_id = 1 AND store_id = 5`)
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/api/admin/reconcile?customer_id=1&dry_run=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dry := decode[domain.ReconcileReport](t, rec)
	assert.Equal(t, 1, dry.Checked)
	assert.Equal(t, 1, dry.Drifted)
	assert.Zero(t, dry.Repaired)

	rec = s.do(http.MethodPost, "/api/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[domain.ReconcileReport](t, rec)
	assert.Equal(t, 1, report.Repaired)

	rec = s.do(http.MethodGet, "/api/customers/1/stores/5/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50.00", decode[StoreBalanceResponse](t, rec).Available.StringFixed(2))

	rec = s.do(http.MethodGet, "/api/audit-logs/balance/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.AuditLog](t, rec), 1)

	rec = s.do(http.MethodPost, "/api/admin/reconcile?customer_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLogHandler_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/audit-logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/audit-logs?page_size=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/audit-logs/user/1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
