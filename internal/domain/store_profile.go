package domain

import (
	"context"
	"time"
)

// StoreProfile is the store metadata used to filter balance dashboards.
type StoreProfile struct {
	StoreID        int64     `json:"store_id"`
	Name           string    `json:"name"`
	PartnerProgram bool      `json:"partner_program"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StoreRepository interface {
	Upsert(ctx context.Context, store *StoreProfile) error
	FindByID(ctx context.Context, storeID int64) (*StoreProfile, error)
}

type StoreService interface {
	RegisterStore(ctx context.Context, store *StoreProfile) (*StoreProfile, error)
	GetStore(ctx context.Context, storeID int64) (*StoreProfile, error)
}
