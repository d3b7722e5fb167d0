package domain

import (
	"context"
	"time"
)

type EntityType string
type ActionType string

const (
	EntityTypeBalance       EntityType = "balance"
	EntityTypeReimbursement EntityType = "reimbursement"

	ActionTypeReconcile ActionType = "reconcile"
	ActionTypeSettle    ActionType = "settle"
)

// AuditLog records administrative effects that are not money movements.
// For balances EntityID is the customer id and Details names the store.
type AuditLog struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Action     ActionType `json:"action"`
	Details    string     `json:"details,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AuditLogRepository interface {
	Create(ctx context.Context, log *AuditLog) error
	FindByEntityID(ctx context.Context, entityType EntityType, entityID int64) ([]*AuditLog, error)
	FindAll(ctx context.Context, limit, offset int) ([]*AuditLog, error)
}

type AuditLogService interface {
	LogAction(ctx context.Context, entityType EntityType, entityID int64, action ActionType, details string) error
	GetEntityLogs(ctx context.Context, entityType EntityType, entityID int64) ([]*AuditLog, error)
	GetAllLogs(ctx context.Context, page, pageSize int) ([]*AuditLog, error)
}
