package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"cashback/internal/concurrent"
	"cashback/internal/database"
	"cashback/internal/domain"
	"cashback/internal/repository"
	"cashback/internal/service"
	"cashback/pkg/cache"
	"cashback/pkg/logger"
)

type fakeDatabase struct {
	err error
}

func (f *fakeDatabase) Ping(context.Context) error { return f.err }

func (f *fakeDatabase) GetStats() map[string]interface{} {
	return map[string]interface{}{"driver": "sqlite3"}
}

type testServer struct {
	t       *testing.T
	db      *sql.DB
	cache   cache.Cache
	intake  *service.EventIntakeService
	health  *fakeDatabase
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Nop()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrationService(db, database.DialectSQLite, log).RunMigrations(context.Background()))

	store := repository.NewStore(db, database.DialectSQLite, log)
	locks := concurrent.NewKeyMutex[domain.BalanceKey]()
	audit := service.NewAuditLogService(store.AuditLogs(), log)
	reimbursements := service.NewReimbursementService(store, audit, nil, log)

	settings := service.DefaultLedgerSettings()
	settings.RetryInitialInterval = time.Millisecond
	ledger := service.NewLedgerService(store, reimbursements, locks, nil, settings, log)
	query := service.NewBalanceQueryService(store, store, locks, nil,
		repository.NewTransactionRepository(db, log), audit,
		service.BalanceQuerySettings{ReconcileConcurrency: 1}, log)

	memCache := cache.NewMemoryCache(time.Minute, time.Minute)
	warmUp := cache.NewWarmUpManager(memCache, log, query, 2)
	cachedQuery := service.NewCachedBalanceQueryService(query, memCache, cache.NewCacheManager(memCache, log), warmUp, log)
	cachedLedger := service.NewCachedLedgerService(ledger, memCache, log)

	intake := service.NewEventIntakeService(cachedLedger, service.EventIntakeSettings{Workers: 1, QueueSize: 16}, log)
	t.Cleanup(intake.Shutdown)

	health := &fakeDatabase{}

	handler := NewRouter(Handlers{
		Ledger:         NewLedgerHandler(cachedLedger, log),
		Balances:       NewBalanceHandler(cachedQuery, log),
		Admin:          NewAdminHandler(cachedQuery, log),
		Reimbursements: NewReimbursementHandler(reimbursements, log),
		Stores:         NewStoreHandler(service.NewCachedStoreService(service.NewStoreService(store.Stores(), nil, log), store.Balances(), memCache, log), log),
		Events:         NewEventHandler(intake, log),
		AuditLogs:      NewAuditLogHandler(audit, log),
		Cache:          NewCacheHandler(memCache, warmUp, log),
		Health:         NewHealthHandler(health, memCache, intake, "test", log),
	}, RouterConfig{CORSOrigins: []string{"*"}, RequestTimeout: 10 * time.Second}, log)

	return &testServer{
		t:       t,
		db:      db,
		cache:   memCache,
		intake:  intake,
		health:  health,
		handler: handler,
	}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	switch b := body.(type) {
	case nil:
		return s.doRaw(method, path, nil, "")
	case string:
		return s.doRaw(method, path, strings.NewReader(b), "application/json")
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		return s.doRaw(method, path, bytes.NewReader(data), "application/json")
	}
}

func (s *testServer) doRaw(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) credit(customerID, storeID int64, amount string) MutationResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/ledger/credits", map[string]interface{}{
		"customer_id": customerID,
		"store_id":    storeID,
		"amount":      amount,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[MutationResponse](s.t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var errPingFailed = errors.New("connection refused")
