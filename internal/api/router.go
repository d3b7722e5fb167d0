package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cashback/internal/api/middleware"
	"cashback/pkg/logger"
)

type RouterConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Handlers groups the route owners mounted by NewRouter. Nil handlers are
// skipped.
type Handlers struct {
	Ledger         *LedgerHandler
	Balances       *BalanceHandler
	Admin          *AdminHandler
	Reimbursements *ReimbursementHandler
	Stores         *StoreHandler
	Events         *EventHandler
	AuditLogs      *AuditLogHandler
	Cache          *CacheHandler
	Health         *HealthHandler
}

func NewRouter(h Handlers, cfg RouterConfig, log logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Traceparent", "X-Request-Id"},
		ExposedHeaders: []string{"X-Trace-ID", "Retry-After"},
		MaxAge:         300,
	}))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	if h.Health != nil {
		h.Health.RegisterRoutes(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))

		if h.Ledger != nil {
			h.Ledger.RegisterRoutes(r)
		}
		if h.Balances != nil {
			h.Balances.RegisterRoutes(r)
		}
		if h.Admin != nil {
			h.Admin.RegisterRoutes(r)
		}
		if h.Reimbursements != nil {
			h.Reimbursements.RegisterRoutes(r)
		}
		if h.Stores != nil {
			h.Stores.RegisterRoutes(r)
		}
		if h.Events != nil {
			h.Events.RegisterRoutes(r)
		}
		if h.AuditLogs != nil {
			h.AuditLogs.RegisterRoutes(r)
		}
		if h.Cache != nil {
			h.Cache.RegisterRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
