package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"cashback/internal/config"
	schema "cashback/internal/database"
	"cashback/internal/domain"
	"cashback/pkg/circuitbreaker"
	"cashback/pkg/logger"
)

type ConnectionManager struct {
	dialect        schema.Dialect
	masterDB       *sql.DB
	readDBs        []*ReadReplica
	logger         logger.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
	mutex          sync.Mutex
	stop           chan struct{}
	stopOnce       sync.Once

	roundRobinIndex int
}

type ReadReplica struct {
	DB        *sql.DB
	Config    config.ReplicaConfig
	IsHealthy bool
	mutex     sync.RWMutex
}

// NewStorageBreaker returns the breaker guarding ledger storage calls.
// Business rejections count as successful calls.
func NewStorageBreaker(logger logger.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Settings{
		Name:        "database",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				domain.IsBusinessError(err) ||
				errors.Is(err, domain.ErrConcurrentModification) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from circuitbreaker.State, to circuitbreaker.State) {
			logger.Warn("Circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
}

func NewConnectionManager(ctx context.Context, cfg *config.Config, logger logger.Logger) (*ConnectionManager, error) {
	dialect, err := schema.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	cm := &ConnectionManager{
		dialect:        dialect,
		logger:         logger,
		circuitBreaker: NewStorageBreaker(logger),
		stop:           make(chan struct{}),
	}

	if err := cm.connectMaster(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("master database connection failed: %w", err)
	}

	if len(cfg.Database.ReadReplicas) > 0 {
		if err := cm.connectReadReplicas(ctx, cfg.Database.ReadReplicas); err != nil {
			logger.Error("Read replica connections failed", map[string]interface{}{"error": err.Error()})
		}
		go cm.startHealthCheck(30 * time.Second)
	}

	return cm, nil
}

func (cm *ConnectionManager) connectMaster(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := sql.Open(string(cm.dialect), cfg.DataSourceName())
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	cm.masterDB = db
	cm.logger.Info("Master database connected", map[string]interface{}{
		"driver": string(cm.dialect),
	})

	return nil
}

func (cm *ConnectionManager) connectReadReplicas(ctx context.Context, replicas []config.ReplicaConfig) error {
	cm.readDBs = make([]*ReadReplica, 0, len(replicas))

	for i, replicaCfg := range replicas {
		db, err := sql.Open(string(cm.dialect), replicaCfg.DSN)
		if err != nil {
			cm.logger.Error("Read replica connection failed", map[string]interface{}{
				"replica": i,
				"error":   err.Error(),
			})
			continue
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		replica := &ReadReplica{
			DB:        db,
			Config:    replicaCfg,
			IsHealthy: true,
		}

		if err := db.PingContext(ctx); err != nil {
			replica.IsHealthy = false
			cm.logger.Error("Read replica ping failed", map[string]interface{}{
				"replica": i,
				"error":   err.Error(),
			})
		}

		cm.readDBs = append(cm.readDBs, replica)
		cm.logger.Info("Read replica added", map[string]interface{}{
			"replica": i,
			"healthy": replica.IsHealthy,
			"weight":  replicaCfg.Weight,
		})
	}

	if len(cm.readDBs) == 0 {
		return fmt.Errorf("no read replica could be opened")
	}

	return nil
}

func (cm *ConnectionManager) Dialect() schema.Dialect {
	return cm.dialect
}

func (cm *ConnectionManager) GetWriteDB() *sql.DB {
	return cm.masterDB
}

func (cm *ConnectionManager) GetReadDB() *sql.DB {
	if replica := cm.getHealthyReplica(); replica != nil {
		return replica.DB
	}
	return cm.masterDB
}

func (cm *ConnectionManager) CircuitBreaker() *circuitbreaker.CircuitBreaker {
	return cm.circuitBreaker
}

// Router sends reads to a healthy replica and writes to the master.
func (cm *ConnectionManager) Router() *ReplicaRouter {
	return &ReplicaRouter{cm: cm}
}

func (cm *ConnectionManager) getHealthyReplica() *ReadReplica {
	if len(cm.readDBs) == 0 {
		return nil
	}

	var healthyReplicas []*ReadReplica
	for _, replica := range cm.readDBs {
		replica.mutex.RLock()
		if replica.IsHealthy {
			healthyReplicas = append(healthyReplicas, replica)
		}
		replica.mutex.RUnlock()
	}

	if len(healthyReplicas) == 0 {
		return nil
	}

	return cm.selectByWeight(healthyReplicas)
}

func (cm *ConnectionManager) selectByWeight(replicas []*ReadReplica) *ReadReplica {
	if len(replicas) == 1 {
		return replicas[0]
	}

	totalWeight := 0
	for _, replica := range replicas {
		totalWeight += replica.Config.Weight
	}

	if totalWeight == 0 {
		cm.mutex.Lock()
		cm.roundRobinIndex = (cm.roundRobinIndex + 1) % len(replicas)
		idx := cm.roundRobinIndex
		cm.mutex.Unlock()
		return replicas[idx]
	}

	random := rand.Intn(totalWeight)
	currentWeight := 0

	for _, replica := range replicas {
		currentWeight += replica.Config.Weight
		if random < currentWeight {
			return replica
		}
	}

	return replicas[0]
}

func (cm *ConnectionManager) startHealthCheck(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.stop:
			return
		case <-ticker.C:
			cm.checkReplicaHealth()
		}
	}
}

func (cm *ConnectionManager) checkReplicaHealth() {
	for i, replica := range cm.readDBs {
		go func(i int, r *ReadReplica) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := r.DB.PingContext(ctx)

			r.mutex.Lock()
			wasHealthy := r.IsHealthy
			r.IsHealthy = err == nil
			r.mutex.Unlock()

			if wasHealthy != (err == nil) {
				cm.logger.Warn("Read replica health status changed", map[string]interface{}{
					"replica": i,
					"healthy": err == nil,
					"error":   err,
				})
			}
		}(i, replica)
	}
}

// Ping checks the master through the circuit breaker.
func (cm *ConnectionManager) Ping(ctx context.Context) error {
	return cm.circuitBreaker.Execute(func() error {
		return cm.masterDB.PingContext(ctx)
	})
}

func (cm *ConnectionManager) Close() error {
	cm.stopOnce.Do(func() { close(cm.stop) })

	var errs []error
	if cm.masterDB != nil {
		if err := cm.masterDB.Close(); err != nil {
			cm.logger.Error("Failed to close master database", map[string]interface{}{"error": err.Error()})
			errs = append(errs, err)
		}
	}

	for i, replica := range cm.readDBs {
		if err := replica.DB.Close(); err != nil {
			cm.logger.Error("Failed to close read replica", map[string]interface{}{
				"replica": i,
				"error":   err.Error(),
			})
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (cm *ConnectionManager) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"driver":                 string(cm.dialect),
		"circuit_breaker_state":  cm.circuitBreaker.State().String(),
		"circuit_breaker_counts": cm.circuitBreaker.Counts(),
	}

	if cm.masterDB != nil {
		dbStats := cm.masterDB.Stats()
		stats["master"] = map[string]interface{}{
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
		}
	}

	replicaStats := make([]map[string]interface{}, len(cm.readDBs))
	for i, replica := range cm.readDBs {
		replica.mutex.RLock()
		dbStats := replica.DB.Stats()
		replicaStats[i] = map[string]interface{}{
			"healthy":          replica.IsHealthy,
			"weight":           replica.Config.Weight,
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
		}
		replica.mutex.RUnlock()
	}
	stats["replicas"] = replicaStats

	return stats
}

type ReplicaRouter struct {
	cm *ConnectionManager
}

func (r *ReplicaRouter) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.cm.GetWriteDB().ExecContext(ctx, query, args...)
}

func (r *ReplicaRouter) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.cm.GetReadDB().QueryContext(ctx, query, args...)
}

func (r *ReplicaRouter) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.cm.GetReadDB().QueryRowContext(ctx, query, args...)
}
