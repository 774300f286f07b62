package postgres

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	"github.com/fairy-root/media-downloader-bot/internal/domain/payment"
)

const paymentsSchema = `
CREATE TABLE IF NOT EXISTS premium_payments (
	charge_id          TEXT PRIMARY KEY,
	provider_charge_id TEXT,
	user_id            BIGINT NOT NULL,
	tier_key           TEXT NOT NULL,
	currency           TEXT NOT NULL,
	amount             INTEGER NOT NULL,
	expires_at         TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS premium_payments_user_id_idx ON premium_payments (user_id);
`

// PaymentRepository is the Postgres ledger of completed Stars purchases.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository { return &PaymentRepository{db: db} }

// Migrate creates the ledger table if it does not exist.
func (r *PaymentRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, paymentsSchema); err != nil {
		return apperrors.NewDatabaseError("migrate payments", err)
	}
	return nil
}

// Record inserts p. A charge id that is already recorded is ignored.
func (r *PaymentRepository) Record(ctx context.Context, p *payment.Payment) error {
	const q = `
	INSERT INTO premium_payments (charge_id, provider_charge_id, user_id, tier_key, currency, amount, expires_at, created_at)
	VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, COALESCE($8, now()))
	ON CONFLICT (charge_id) DO NOTHING;
`
	var createdAt interface{}
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, q,
		p.ChargeID,
		p.ProviderChargeID,
		p.UserID,
		p.TierKey,
		p.Currency,
		p.Amount,
		p.ExpiresAt,
		createdAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("record payment", err).WithUserID(p.UserID)
	}
	return nil
}

// Get returns the payment recorded under chargeID, or nil.
func (r *PaymentRepository) Get(ctx context.Context, chargeID string) (*payment.Payment, error) {
	const q = `
SELECT charge_id, COALESCE(provider_charge_id, ''), user_id, tier_key, currency, amount, expires_at, created_at
FROM premium_payments
WHERE charge_id = $1
`
	var p payment.Payment
	err := r.db.QueryRowContext(ctx, q, chargeID).Scan(
		&p.ChargeID, &p.ProviderChargeID, &p.UserID, &p.TierKey, &p.Currency, &p.Amount, &p.ExpiresAt, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get payment", err)
	}
	return &p, nil
}
