package payment

import (
	"context"
	"time"
)

// Payment is a completed Telegram Stars purchase.
type Payment struct {
	ChargeID         string    `json:"charge_id"`
	ProviderChargeID string    `json:"provider_charge_id,omitempty"`
	UserID           int64     `json:"user_id"`
	TierKey          string    `json:"tier_key"`
	Currency         string    `json:"currency"`
	Amount           int       `json:"amount"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Repository is an append-only ledger of payments.
type Repository interface {
	// Record stores p; recording the same ChargeID twice is a no-op.
	Record(ctx context.Context, p *Payment) error
	// Get returns the payment with chargeID, or nil when it was never recorded.
	Get(ctx context.Context, chargeID string) (*Payment, error)
}
