package domain

import "context"

// Scope exposes the repositories bound to one storage session, either the
// shared pool or a single open transaction.
type Scope interface {
	Balances() BalanceRepository
	Movements() MovementRepository
	Reimbursements() ReimbursementRepository
	Stores() StoreRepository
	AuditLogs() AuditLogRepository
	// Savepoint runs fn so that its writes are undone on error without
	// aborting the enclosing transaction. Outside a transaction it simply
	// calls fn.
	Savepoint(ctx context.Context, name string, fn func() error) error
}

// UnitOfWork is the non transactional Scope plus the ability to open a
// transaction. fn's writes commit together when it returns nil.
type UnitOfWork interface {
	Scope
	WithTx(ctx context.Context, fn func(Scope) error) error
}
