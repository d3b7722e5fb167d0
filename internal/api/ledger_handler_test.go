package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestLedgerHandler_CreditDebitRefund(t *testing.T) {
	s := newTestServer(t)

	credited := s.credit(1, 5, "100")
	assert.Equal(t, "100.00", credited.Balance.Available.StringFixed(2))
	assert.True(t, credited.MovementRecorded)
	require.NotNil(t, credited.Movement)
	assert.Equal(t, domain.OperationCredit, credited.Movement.Type())

	rec := s.do(http.MethodPost, "/api/ledger/debits", map[string]interface{}{
		"customer_id":          1,
		"store_id":             5,
		"amount":               "30",
		"usage_transaction_id": 900,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	debited := decode[MutationResponse](t, rec)
	assert.Equal(t, "70.00", debited.Balance.Available.StringFixed(2))
	assert.Equal(t, "30.00", debited.Balance.TotalUsed.StringFixed(2))
	require.NotNil(t, debited.ReimbursementID)
	assert.Equal(t, debited.ReimbursementID, debited.Movement.ReimbursementID())
	assert.Empty(t, debited.ReimbursementError)

	rec = s.do(http.MethodPost, "/api/ledger/debits", map[string]interface{}{
		"customer_id": 1,
		"store_id":    5,
		"amount":      "500",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient balance", decode[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPost, "/api/ledger/refunds", map[string]interface{}{
		"customer_id":            1,
		"store_id":               5,
		"amount":                 "10",
		"related_transaction_id": 900,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	refunded := decode[MutationResponse](t, rec)
	assert.Equal(t, "80.00", refunded.Balance.Available.StringFixed(2))
	assert.Equal(t, domain.OperationRefund, refunded.Movement.Type())

	rec = s.do(http.MethodGet, "/api/customers/1/stores/5/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[StoreBalanceResponse](t, rec)
	assert.Equal(t, "80.00", balance.Available.StringFixed(2))
}

func TestLedgerHandler_RejectsInvalidRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{
			name:   "missing customer",
			path:   "/api/ledger/credits",
			body:   map[string]interface{}{"store_id": 1, "amount": "10"},
			status: http.StatusBadRequest,
		},
		{
			name:   "zero amount",
			path:   "/api/ledger/credits",
			body:   map[string]interface{}{"customer_id": 1, "store_id": 1, "amount": "0"},
			status: http.StatusBadRequest,
		},
		{
			name:   "negative amount",
			path:   "/api/ledger/debits",
			body:   map[string]interface{}{"customer_id": 1, "store_id": 1, "amount": "-5"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown field",
			path:   "/api/ledger/credits",
			body:   map[string]interface{}{"customer_id": 1, "store_id": 1, "amount": "10", "reimbursement_id": 4},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed json",
			path:   "/api/ledger/refunds",
			body:   `{"customer_id": 1,`,
			status: http.StatusBadRequest,
		},
		{
			name:   "refund beyond total used",
			path:   "/api/ledger/refunds",
			body:   map[string]interface{}{"customer_id": 1, "store_id": 1, "amount": "10"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM movements`).Scan(&count))
	assert.Zero(t, count)
}

func TestLedgerHandler_ValidationNamesJSONFields(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/ledger/credits", map[string]interface{}{"customer_id": 1, "amount": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "store_id")
}

func TestLedgerHandler_RequiresJSONContentType(t *testing.T) {
	s := newTestServer(t)

	req := strings.NewReader(`{"customer_id":1,"store_id":1,"amount":"1"}`)
	rec := s.doRaw(http.MethodPost, "/api/ledger/credits", req, "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
