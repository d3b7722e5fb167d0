package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cashback/internal/concurrent"
	"cashback/internal/domain"
	"cashback/pkg/circuitbreaker"
	"cashback/pkg/logger"
	"cashback/pkg/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type BalanceQuerySettings struct {
	ReconcileConcurrency int
}

// BalanceQueryService serves the read side. Reconcile is the only method
// that writes, and it goes through the same per-key lock and version check
// as the ledger.
type BalanceQueryService struct {
	reader       domain.Scope
	uow          domain.UnitOfWork
	locks        *concurrent.KeyMutex[domain.BalanceKey]
	breaker      *circuitbreaker.CircuitBreaker
	transactions domain.TransactionLookup
	auditLog     domain.AuditLogService
	settings     BalanceQuerySettings
	logger       logger.Logger
}

// NewBalanceQueryService builds the query side. reader may point at a read
// replica; transactions and auditLog are optional.
func NewBalanceQueryService(
	reader domain.Scope,
	uow domain.UnitOfWork,
	locks *concurrent.KeyMutex[domain.BalanceKey],
	breaker *circuitbreaker.CircuitBreaker,
	transactions domain.TransactionLookup,
	auditLog domain.AuditLogService,
	settings BalanceQuerySettings,
	logger logger.Logger,
) domain.BalanceQuery {
	if settings.ReconcileConcurrency <= 0 {
		settings.ReconcileConcurrency = 4
	}
	return &BalanceQueryService{
		reader:       reader,
		uow:          uow,
		locks:        locks,
		breaker:      breaker,
		transactions: transactions,
		auditLog:     auditLog,
		settings:     settings,
		logger:       logger,
	}
}

func (s *BalanceQueryService) GetStoreBalance(ctx context.Context, customerID, storeID int64) (decimal.Decimal, error) {
	if err := (domain.BalanceKey{CustomerID: customerID, StoreID: storeID}).Validate(); err != nil {
		return decimal.Zero, err
	}

	var amount decimal.Decimal
	err := guard(s.breaker, func() error {
		var err error
		amount, err = s.reader.Balances().Get(ctx, customerID, storeID)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read store balance", map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
		return decimal.Zero, err
	}
	return amount, nil
}

func (s *BalanceQueryService) GetAllBalances(ctx context.Context, customerID int64, filter domain.BalanceFilter) ([]domain.BalanceView, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer=%d", domain.ErrInvalidIdentifier, customerID)
	}

	var views []domain.BalanceView
	err := guard(s.breaker, func() error {
		var err error
		views, err = s.reader.Balances().GetAll(ctx, customerID, filter)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read customer balances", map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		})
		return nil, err
	}

	if filter.IncludeZero {
		return views, nil
	}

	visible := make([]domain.BalanceView, 0, len(views))
	for _, v := range views {
		if v.Available.IsPositive() {
			visible = append(visible, v)
		}
	}
	return visible, nil
}

func (s *BalanceQueryService) GetMovementHistory(ctx context.Context, customerID, storeID int64, page, pageSize int) (*domain.MovementPage, error) {
	if err := (domain.BalanceKey{CustomerID: customerID, StoreID: storeID}).Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var (
		movements []*domain.Movement
		total     int64
	)
	err := guard(s.breaker, func() error {
		var err error
		total, err = s.reader.Movements().Count(ctx, customerID, storeID)
		if err != nil {
			return err
		}
		movements, err = s.reader.Movements().Query(ctx, customerID, storeID, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read movement history", map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
		return nil, err
	}

	summaries := s.lookupTransactions(ctx, movements)

	items := make([]domain.MovementView, 0, len(movements))
	for _, m := range movements {
		items = append(items, domain.MovementView{
			Movement:           m,
			OriginTransaction:  summaryFor(summaries, m.OriginTransactionID()),
			UsageTransaction:   summaryFor(summaries, m.UsageTransactionID()),
			RelatedTransaction: summaryFor(summaries, m.RelatedTransactionID()),
		})
	}

	return &domain.MovementPage{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// lookupTransactions resolves linked purchases. A failing collaborator
// degrades the page to movements without summaries.
func (s *BalanceQueryService) lookupTransactions(ctx context.Context, movements []*domain.Movement) map[int64]domain.TransactionSummary {
	if s.transactions == nil || len(movements) == 0 {
		return nil
	}

	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, m := range movements {
		for _, id := range []*int64{m.OriginTransactionID(), m.UsageTransactionID(), m.RelatedTransactionID()} {
			if id == nil {
				continue
			}
			if _, ok := seen[*id]; ok {
				continue
			}
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	summaries, err := s.transactions.FindTransactions(ctx, ids)
	if err != nil {
		s.logger.WarnContext(ctx, "Transaction lookup failed, returning movements without summaries", map[string]interface{}{
			"ids":   len(ids),
			"error": err.Error(),
		})
		return nil
	}
	return summaries
}

func summaryFor(summaries map[int64]domain.TransactionSummary, id *int64) *domain.TransactionSummary {
	if id == nil || summaries == nil {
		return nil
	}
	summary, ok := summaries[*id]
	if !ok {
		return nil
	}
	return &summary
}

func (s *BalanceQueryService) GetStatistics(ctx context.Context, customerID, storeID int64) (*domain.Statistics, error) {
	if err := (domain.BalanceKey{CustomerID: customerID, StoreID: storeID}).Validate(); err != nil {
		return nil, err
	}

	var movements []*domain.Movement
	err := guard(s.breaker, func() error {
		var err error
		movements, err = s.reader.Movements().All(ctx, customerID, storeID)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read statistics", map[string]interface{}{
			"customer_id": customerID,
			"store_id":    storeID,
			"error":       err.Error(),
		})
		return nil, err
	}

	return computeStatistics(movements), nil
}

func computeStatistics(movements []*domain.Movement) *domain.Statistics {
	stats := &domain.Statistics{
		MovementCount:         int64(len(movements)),
		TotalCreditedHistoric: decimal.Zero,
		TotalUsedHistoric:     decimal.Zero,
		TotalRefunded:         decimal.Zero,
		AvgCredit:             decimal.Zero,
		AvgDebit:              decimal.Zero,
	}

	var credits, debits int64
	for _, m := range movements {
		switch m.Type() {
		case domain.OperationCredit:
			stats.TotalCreditedHistoric = stats.TotalCreditedHistoric.Add(m.Amount)
			credits++
		case domain.OperationDebit:
			stats.TotalUsedHistoric = stats.TotalUsedHistoric.Add(m.Amount)
			debits++
		case domain.OperationRefund:
			stats.TotalRefunded = stats.TotalRefunded.Add(m.Amount)
		}
		if stats.LastMovementAt == nil || m.OccurredAt.After(*stats.LastMovementAt) {
			at := m.OccurredAt
			stats.LastMovementAt = &at
		}
	}

	if credits > 0 {
		stats.AvgCredit = domain.NormalizeMoney(stats.TotalCreditedHistoric.Div(decimal.NewFromInt(credits)))
	}
	if debits > 0 {
		stats.AvgDebit = domain.NormalizeMoney(stats.TotalUsedHistoric.Div(decimal.NewFromInt(debits)))
	}
	stats.TotalCreditedHistoric = domain.NormalizeMoney(stats.TotalCreditedHistoric)
	stats.TotalUsedHistoric = domain.NormalizeMoney(stats.TotalUsedHistoric)
	stats.TotalRefunded = domain.NormalizeMoney(stats.TotalRefunded)

	return stats
}

func (s *BalanceQueryService) Reconcile(ctx context.Context, customerID *int64) (*domain.ReconcileReport, error) {
	return s.reconcile(ctx, customerID, true)
}

func (s *BalanceQueryService) DetectDrift(ctx context.Context, customerID *int64) (*domain.ReconcileReport, error) {
	return s.reconcile(ctx, customerID, false)
}

func (s *BalanceQueryService) reconcile(ctx context.Context, customerID *int64, repair bool) (*domain.ReconcileReport, error) {
	if customerID != nil && *customerID <= 0 {
		return nil, fmt.Errorf("%w: customer=%d", domain.ErrInvalidIdentifier, *customerID)
	}

	start := time.Now()

	var keys []domain.BalanceKey
	err := guard(s.breaker, func() error {
		var err error
		keys, err = s.uow.Balances().ListKeys(ctx, customerID)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list balances for reconcile", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	results := make([]domain.ReconcileResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.ReconcileConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = s.reconcileKey(gctx, key, repair)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classify(err)
	}

	report := &domain.ReconcileReport{Checked: len(results), Results: results}
	for _, r := range results {
		if r.Drifted {
			report.Drifted++
		}
		if r.Repaired {
			report.Repaired++
		}
		if r.Error != "" {
			report.Failed++
		}
	}
	sort.SliceStable(report.Results, func(i, j int) bool {
		a, b := report.Results[i].Key, report.Results[j].Key
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		return a.StoreID < b.StoreID
	})

	s.logger.InfoContext(ctx, "Reconcile finished", map[string]interface{}{
		"repair":   repair,
		"checked":  report.Checked,
		"drifted":  report.Drifted,
		"repaired": report.Repaired,
		"failed":   report.Failed,
		"duration": time.Since(start).String(),
	})

	return report, nil
}

func (s *BalanceQueryService) reconcileKey(ctx context.Context, key domain.BalanceKey, repair bool) domain.ReconcileResult {
	result := domain.ReconcileResult{Key: key}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer unlock()

	err = guard(s.breaker, func() error {
		return s.uow.WithTx(ctx, func(scope domain.Scope) error {
			movements, err := scope.Movements().All(ctx, key.CustomerID, key.StoreID)
			if err != nil {
				return err
			}
			expected := domain.ReplayMovements(key, movements)

			actual, err := scope.Balances().Find(ctx, key.CustomerID, key.StoreID)
			if err != nil {
				return err
			}

			result.Expected = expected
			result.Actual = actual

			current := domain.NewBalanceRecord(key.CustomerID, key.StoreID)
			if actual != nil {
				current = *actual
			}
			if current.SameAmounts(expected) {
				return nil
			}

			result.Drifted = true
			if !repair {
				return nil
			}

			expected.LastUpdated = time.Now().UTC()
			written, err := scope.Balances().Overwrite(ctx, expected, current.Version)
			if err != nil {
				return err
			}
			result.Expected = written
			result.Repaired = true
			return nil
		})
	})
	if err != nil {
		result.Repaired = false
		result.Error = err.Error()
		s.logger.ErrorContext(ctx, "Reconcile of balance failed", map[string]interface{}{
			"customer_id": key.CustomerID,
			"store_id":    key.StoreID,
			"error":       err.Error(),
		})
		return result
	}

	if result.Drifted {
		metrics.RecordReconcileDrift()
		fields := map[string]interface{}{
			"customer_id":        key.CustomerID,
			"store_id":           key.StoreID,
			"expected_available": result.Expected.Available.String(),
			"repaired":           result.Repaired,
		}
		if result.Actual != nil {
			fields["actual_available"] = result.Actual.Available.String()
		}
		s.logger.WarnContext(ctx, "Balance drift detected", fields)
	}

	if result.Repaired && s.auditLog != nil {
		before := "none"
		if result.Actual != nil {
			before = result.Actual.Available.StringFixed(domain.MoneyScale)
		}
		details := fmt.Sprintf("store=%d available %s -> %s", key.StoreID, before, result.Expected.Available.StringFixed(domain.MoneyScale))
		if err := s.auditLog.LogAction(ctx, domain.EntityTypeBalance, key.CustomerID, domain.ActionTypeReconcile, details); err != nil {
			s.logger.WarnContext(ctx, "Reconcile audit log not written", map[string]interface{}{
				"customer_id": key.CustomerID,
				"store_id":    key.StoreID,
				"error":       err.Error(),
			})
		}
	}

	return result
}
