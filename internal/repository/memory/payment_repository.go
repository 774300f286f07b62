package memory

import (
	"context"
	"sync"

	"github.com/fairy-root/media-downloader-bot/internal/domain/payment"
)

// PaymentRepository is the ledger used when no database is configured.
type PaymentRepository struct {
	mu       sync.Mutex
	byCharge map[string]payment.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{byCharge: make(map[string]payment.Payment)}
}

func (r *PaymentRepository) Record(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCharge[p.ChargeID]; ok {
		return nil
	}
	r.byCharge[p.ChargeID] = *p
	return nil
}

func (r *PaymentRepository) Get(_ context.Context, chargeID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byCharge[chargeID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
