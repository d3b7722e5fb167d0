package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cashback/internal/concurrent"
	"cashback/internal/config"
	schema "cashback/internal/database"
	"cashback/internal/domain"
	"cashback/internal/repository"
	"cashback/internal/service"
	"cashback/pkg/cache"
	"cashback/pkg/database"
	"cashback/pkg/logger"
	"cashback/pkg/tracing"
)

type Factory interface {
	GetLogger() logger.Logger
	GetConfig() *config.Config
	GetConnectionManager() *database.ConnectionManager
	GetRedisClient() *redis.Client
	GetCache() cache.Cache
	GetWarmUpManager() *cache.WarmUpManager
	GetStore() *repository.Store

	GetLedgerService() domain.LedgerService
	GetBalanceQuery() domain.BalanceQuery
	GetReimbursementService() domain.ReimbursementService
	GetStoreService() domain.StoreService
	GetAuditLogService() domain.AuditLogService
	GetEventIntakeService() domain.EventIntakeService

	Migrate(ctx context.Context) error
	Close(ctx context.Context) error
}

type AppFactory struct {
	config          *config.Config
	logger          logger.Logger
	connections     *database.ConnectionManager
	redisClient     *redis.Client
	cache           cache.Cache
	cacheManager    cache.CacheStrategy
	warmUpManager   *cache.WarmUpManager
	store           *repository.Store
	shutdownTracing func(context.Context) error

	ledgerService        domain.LedgerService
	balanceQuery         domain.BalanceQuery
	reimbursementService domain.ReimbursementService
	storeService         domain.StoreService
	auditLogService      domain.AuditLogService

	mu          sync.Mutex
	closed      bool
	eventIntake *service.EventIntakeService
	closeErr    error
}

func NewFactory(ctx context.Context) (Factory, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewFactoryFromConfig(ctx, cfg)
}

// NewFactoryFromConfig wires every component from an already loaded
// configuration.
func NewFactoryFromConfig(ctx context.Context, cfg *config.Config) (Factory, error) {
	// stdout carries command output such as the reconcile report.
	log := logger.NewForEnv(logger.ParseLevel(cfg.LogLevel), os.Stderr, cfg.AppEnv)

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.AppEnv,
	})
	if err != nil {
		return nil, err
	}

	connections, err := database.NewConnectionManager(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	f := &AppFactory{
		config:          cfg,
		logger:          log,
		connections:     connections,
		store:           repository.NewStore(connections.GetWriteDB(), connections.Dialect(), log),
		shutdownTracing: shutdownTracing,
	}

	f.initCache(ctx)
	f.initServices()

	return f, nil
}

func (f *AppFactory) initCache(ctx context.Context) {
	if !f.config.Redis.Enabled {
		f.cache = cache.NewMemoryCache(cache.MediumExpiration, 10*time.Minute)
		f.cacheManager = cache.NewCacheManager(f.cache, f.logger)
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     f.config.Redis.Addr(),
		Password: f.config.Redis.Password,
		DB:       f.config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		f.logger.Warn("Redis unreachable, falling back to in-memory cache", map[string]interface{}{
			"addr":  f.config.Redis.Addr(),
			"error": err.Error(),
		})
		_ = client.Close()
		f.cache = cache.NewMemoryCache(cache.MediumExpiration, 10*time.Minute)
	} else {
		f.redisClient = client
		f.cache = cache.NewRedisCache(client, f.logger, "cashback")
	}
	f.cacheManager = cache.NewCacheManager(f.cache, f.logger)
}

func (f *AppFactory) initServices() {
	breaker := f.connections.CircuitBreaker()
	locks := concurrent.NewKeyMutex[domain.BalanceKey]()

	f.auditLogService = service.NewAuditLogService(f.store.AuditLogs(), f.logger)
	f.storeService = service.NewCachedStoreService(
		service.NewStoreService(f.store.Stores(), breaker, f.logger),
		f.store.Balances(),
		f.cache,
		f.logger,
	)
	f.reimbursementService = service.NewReimbursementService(f.store, f.auditLogService, breaker, f.logger)

	ledger := service.NewLedgerService(f.store, f.reimbursementService, locks, breaker, service.LedgerSettings{
		OperationTimeout:     f.config.Ledger.OperationTimeout,
		MaxRetries:           f.config.Ledger.MaxRetries,
		RetryInitialInterval: f.config.Ledger.RetryInitialInterval,
	}, f.logger)
	f.ledgerService = service.NewCachedLedgerService(ledger, f.cache, f.logger)

	// Cache fills read the primary so an invalidated entry is never
	// refilled from a lagging replica.
	query := service.NewBalanceQueryService(
		f.store,
		f.store,
		locks,
		breaker,
		repository.NewTransactionRepository(f.connections.Router(), f.logger),
		f.auditLogService,
		service.BalanceQuerySettings{ReconcileConcurrency: f.config.Worker.Count},
		f.logger,
	)

	f.warmUpManager = cache.NewWarmUpManager(f.cache, f.logger, query, f.config.Worker.Count)
	f.balanceQuery = service.NewCachedBalanceQueryService(query, f.cache, f.cacheManager, f.warmUpManager, f.logger)
}

// Migrate applies pending schema migrations on the primary database.
func (f *AppFactory) Migrate(ctx context.Context) error {
	migrations := schema.NewMigrationService(f.connections.GetWriteDB(), f.connections.Dialect(), f.logger)
	if err := migrations.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations could not be applied: %w", err)
	}
	return nil
}

// Close drains the event intake and releases connections. It is safe to
// call more than once.
func (f *AppFactory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.closeErr
	}
	f.closed = true

	var errs []error

	if f.eventIntake != nil {
		f.eventIntake.Shutdown()
	}
	if f.redisClient != nil {
		if err := f.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if err := f.connections.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	if err := f.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	f.closeErr = errors.Join(errs...)
	return f.closeErr
}

func (f *AppFactory) GetLogger() logger.Logger {
	return f.logger
}

func (f *AppFactory) GetConfig() *config.Config {
	return f.config
}

func (f *AppFactory) GetConnectionManager() *database.ConnectionManager {
	return f.connections
}

// GetRedisClient returns nil when Redis is disabled or was unreachable at
// startup.
func (f *AppFactory) GetRedisClient() *redis.Client {
	return f.redisClient
}

func (f *AppFactory) GetCache() cache.Cache {
	return f.cache
}

func (f *AppFactory) GetWarmUpManager() *cache.WarmUpManager {
	return f.warmUpManager
}

func (f *AppFactory) GetStore() *repository.Store {
	return f.store
}

func (f *AppFactory) GetLedgerService() domain.LedgerService {
	return f.ledgerService
}

func (f *AppFactory) GetBalanceQuery() domain.BalanceQuery {
	return f.balanceQuery
}

func (f *AppFactory) GetReimbursementService() domain.ReimbursementService {
	return f.reimbursementService
}

func (f *AppFactory) GetStoreService() domain.StoreService {
	return f.storeService
}

func (f *AppFactory) GetAuditLogService() domain.AuditLogService {
	return f.auditLogService
}

// GetEventIntakeService starts the worker pool on first use so one-shot
// commands never spawn workers. After Close it returns a stopped intake
// that refuses every event.
func (f *AppFactory) GetEventIntakeService() domain.EventIntakeService {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.eventIntake == nil {
		f.eventIntake = service.NewEventIntakeService(f.ledgerService, service.EventIntakeSettings{
			Workers:              f.config.Worker.Count,
			QueueSize:            f.config.Worker.QueueSize,
			MaxAttempts:          f.config.Worker.MaxAttempts,
			RetryInitialInterval: f.config.Worker.RetryInitialInterval,
			DeadLetterLimit:      f.config.Worker.DeadLetterLimit,
		}, f.logger)
		if f.closed {
			f.eventIntake.Shutdown()
		}
	}
	return f.eventIntake
}
