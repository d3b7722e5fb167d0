package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestBalanceHandler_Dashboard(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/api/stores/1", map[string]interface{}{"name": "Corner Bakery", "partner_program": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPut, "/api/stores/2", map[string]interface{}{"name": "Book Shop"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	s.credit(7, 1, "12.50")
	s.credit(7, 2, "4")

	rec = s.do(http.MethodGet, "/api/customers/7/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]domain.BalanceView](t, rec)
	require.Len(t, views, 2)

	rec = s.do(http.MethodGet, "/api/customers/7/balances?partner_only=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views = decode[[]domain.BalanceView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "Corner Bakery", views[0].StoreName)
	assert.Equal(t, "12.50", views[0].Available.StringFixed(2))

	rec = s.do(http.MethodGet, "/api/customers/8/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/customers/7/balances?partner_only=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// joining the partner program shows up on the next dashboard read
	rec = s.do(http.MethodPut, "/api/stores/2", map[string]interface{}{"name": "Book Shop", "partner_program": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/customers/7/balances?partner_only=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	views = decode[[]domain.BalanceView](t, rec)
	require.Len(t, views, 2)
}

func TestBalanceHandler_StoreBalanceOfUnknownPairIsZero(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/customers/3/stores/9/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[StoreBalanceResponse](t, rec)
	assert.True(t, balance.Available.IsZero())
	assert.Equal(t, int64(3), balance.CustomerID)
	assert.Equal(t, int64(9), balance.StoreID)

	rec = s.do(http.MethodGet, "/api/customers/abc/stores/9/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/customers/0/stores/9/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceHandler_MovementsAndStatistics(t *testing.T) {
	s := newTestServer(t)

	s.credit(1, 5, "40")
	s.credit(1, 5, "20")
	rec := s.do(http.MethodPost, "/api/ledger/debits", map[string]interface{}{"customer_id": 1, "store_id": 5, "amount": "15"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/customers/1/stores/5/movements?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[domain.MovementPage](t, rec)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Items, 2)
	assert.Equal(t, domain.OperationDebit, page.Items[0].Movement.Type())

	rec = s.do(http.MethodGet, "/api/customers/1/stores/5/movements?page_size=1000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/customers/1/stores/5/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.Statistics](t, rec)
	assert.Equal(t, int64(3), stats.MovementCount)
	assert.Equal(t, "60.00", stats.TotalCreditedHistoric.StringFixed(2))
	assert.Equal(t, "15.00", stats.TotalUsedHistoric.StringFixed(2))
	assert.Equal(t, "30.00", stats.AvgCredit.StringFixed(2))
}

func TestStoreHandler_RegisterAndGet(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/stores/4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPut, "/api/stores/4", map[string]interface{}{"partner_program": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/api/stores/4", map[string]interface{}{"name": "Cafe", "partner_program": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/stores/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	store := decode[domain.StoreProfile](t, rec)
	assert.Equal(t, "Cafe", store.Name)
	assert.True(t, store.PartnerProgram)
}
