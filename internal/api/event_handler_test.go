package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashback/internal/domain"
)

func TestEventHandler_SubmitAndStats(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/events", map[string]interface{}{
		"type":           "purchase_approved",
		"customer_id":    4,
		"store_id":       2,
		"amount":         "25.50",
		"transaction_id": 77,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[EventAccepted](t, rec)
	assert.NotEmpty(t, accepted.ID)
	assert.Equal(t, "queued", accepted.Status)

	rec = s.do(http.MethodPost, "/api/events", map[string]interface{}{
		"type": "gift_card", "customer_id": 4, "store_id": 2, "amount": "1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/events", map[string]interface{}{
		"type": "balance_redeemed", "customer_id": 4, "store_id": 2, "amount": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// drain the queue
	s.intake.Shutdown()

	rec = s.do(http.MethodGet, "/api/customers/4/stores/2/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "25.50", decode[StoreBalanceResponse](t, rec).Available.StringFixed(2))

	rec = s.do(http.MethodGet, "/api/events/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.EventStats](t, rec)
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, 16, stats.QueueCapacity)

	rec = s.do(http.MethodPost, "/api/events", map[string]interface{}{
		"type": "purchase_approved", "customer_id": 4, "store_id": 2, "amount": "1",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
