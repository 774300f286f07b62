package premium

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/domain/payment"
	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/fairy-root/media-downloader-bot/internal/metrics"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/rs/zerolog/log"
)

var (
	ErrPlanUnavailable = errors.New("plan unavailable")
	ErrUserMismatch    = errors.New("invoice user mismatch")
	ErrInvalidDays     = errors.New("grant days must be positive")
)

// User-facing pre-checkout rejections.
const (
	MsgInvalidTransaction = "Invalid transaction details."
	MsgPlanUnavailable    = "Selected plan is no longer available."
	MsgUserMismatch       = "User ID mismatch. Please try selecting the plan again."
)

const day = 24 * time.Hour

// Engine applies premium grants and revocations. Every change is flushed before the call returns.
type Engine struct {
	users    *usersvc.Service
	payments payment.Repository
	catalog  Catalog
	now      func() time.Time

	// purchaseMu serialises the ledger lookup with the grant it guards.
	purchaseMu sync.Mutex
}

// NewEngine builds an engine. payments may be nil, in which case charges are not deduplicated.
func NewEngine(users *usersvc.Service, payments payment.Repository, catalog Catalog) *Engine {
	return &Engine{users: users, payments: payments, catalog: catalog, now: time.Now}
}

func (e *Engine) Catalog() Catalog { return e.catalog }

// Grant extends the user's premium by days, starting from the later of now and the current expiry.
func (e *Engine) Grant(ctx context.Context, userID int64, days int, tierLabel string) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, ErrInvalidDays
	}
	now := e.now()
	rec, err := e.users.Update(ctx, userID, func(r *domain.Record) (bool, error) {
		base := now
		if r.PremiumExpiry != nil && r.PremiumExpiry.After(base) {
			base = *r.PremiumExpiry
		}
		expiry := base.Add(time.Duration(days) * day)
		r.IsPremium = true
		r.PremiumExpiry = &expiry
		r.PremiumTier = tierLabel
		return true, nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if err := e.users.Flush(ctx); err != nil {
		return time.Time{}, err
	}
	return *rec.PremiumExpiry, nil
}

// Revoke removes premium immediately, labelling the record with reasonTier.
func (e *Engine) Revoke(ctx context.Context, userID int64, reasonTier string) error {
	if _, err := e.users.Update(ctx, userID, func(r *domain.Record) (bool, error) {
		r.IsPremium = false
		r.PremiumExpiry = nil
		r.PremiumTier = reasonTier
		return true, nil
	}); err != nil {
		return err
	}
	return e.users.Flush(ctx)
}

// CheckInvoice validates a payload against the paying user at pre-checkout time.
func (e *Engine) CheckInvoice(payload string, payerID int64) (Plan, error) {
	inv, err := ParsePayload(payload)
	if err != nil {
		return Plan{}, err
	}
	plan, ok := e.catalog.Lookup(inv.TierKey)
	if !ok {
		return Plan{}, ErrPlanUnavailable
	}
	if inv.UserID != payerID {
		return Plan{}, ErrUserMismatch
	}
	return plan, nil
}

// RejectionMessage maps a CheckInvoice error to the text shown by the payment sheet.
func RejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrPlanUnavailable):
		return MsgPlanUnavailable
	case errors.Is(err, ErrUserMismatch):
		return MsgUserMismatch
	default:
		return MsgInvalidTransaction
	}
}

// Purchase describes a completed Stars payment.
type Purchase struct {
	Payload          string
	PayerID          int64
	Currency         string
	Amount           int
	ChargeID         string
	ProviderChargeID string
}

// CompletePurchase grants the purchased plan and records the payment.
// The invoice is re-validated; nothing is granted on a mismatch.
// A charge id that is already in the ledger is answered from it without a second grant.
func (e *Engine) CompletePurchase(ctx context.Context, p Purchase) (Plan, time.Time, error) {
	plan, err := e.CheckInvoice(p.Payload, p.PayerID)
	if err != nil {
		return Plan{}, time.Time{}, err
	}

	e.purchaseMu.Lock()
	defer e.purchaseMu.Unlock()

	if e.payments != nil && p.ChargeID != "" {
		prev, err := e.payments.Get(ctx, p.ChargeID)
		switch {
		case err != nil:
			// a paid user must not be left without premium because the ledger is down
			log.Error().Err(err).Str("charge_id", p.ChargeID).Msg("Payment lookup failed; granting anyway")
		case prev != nil:
			log.Warn().
				Str("charge_id", p.ChargeID).
				Int64("user_id", prev.UserID).
				Msg("Duplicate payment delivery ignored")
			return plan, prev.ExpiresAt, nil
		}
	}

	expiry, err := e.Grant(ctx, p.PayerID, plan.Days, plan.Key)
	if err != nil {
		return plan, time.Time{}, fmt.Errorf("grant %s: %w", plan.Key, err)
	}
	metrics.Get().RecordPremiumGrant(metrics.SourcePurchase)
	log.Info().
		Int64("user_id", p.PayerID).
		Str("tier", plan.Key).
		Time("expires_at", expiry).
		Msg("Premium purchased")

	if e.payments != nil {
		err := e.payments.Record(ctx, &payment.Payment{
			ChargeID:         p.ChargeID,
			ProviderChargeID: p.ProviderChargeID,
			UserID:           p.PayerID,
			TierKey:          plan.Key,
			Currency:         p.Currency,
			Amount:           p.Amount,
			ExpiresAt:        expiry,
			CreatedAt:        e.now(),
		})
		if err != nil {
			// grant is already durable; only the ledger entry is missing
			log.Error().Err(err).Str("charge_id", p.ChargeID).Int64("user_id", p.PayerID).Msg("Failed to record payment")
		}
	}
	return plan, expiry, nil
}
