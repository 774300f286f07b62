package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairy-root/media-downloader-bot/internal/service/premium"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	"github.com/rs/zerolog/log"
)

const (
	msgPremiumMenu = "🌟 <b>Unlock Premium Features!</b> 🌟\n\n" +
		"Enjoy unlimited downloads, access to more platforms, audio downloads, and larger file sizes.\n" +
		"Choose your plan:"
	msgInvalidTier       = "Invalid tier."
	msgInvoiceFailed     = "Could not initiate payment: %s. Please ensure bot is configured for Stars and you have Telegram Premium for Stars payments."
	msgPremiumActivated  = "🎉 Thank you! Your Premium (%s) is now active for %d days!"
	msgActivationProblem = "Payment received, but there was an issue activating premium. Please contact support."
)

func (b *Bot) premiumMenu(ctx context.Context, cmd *Command) error {
	catalog := b.premium.Catalog()
	rows := make([][]telegram.InlineKeyboardButton, 0, len(catalog))
	for _, p := range catalog {
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%s - %d Stars", p.Title, p.Stars),
			CallbackData: buyPrefix + p.Key,
		}})
	}
	_, err := b.api.SendMessage(ctx, cmd.Message.Chat.ID, msgPremiumMenu, &telegram.SendOptions{
		ParseMode: parseModeHTML,
		Markup:    &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	return err
}

// buyPremium sends a Stars invoice for the chosen plan in place of the plan menu.
func (b *Bot) buyPremium(ctx context.Context, q *telegram.CallbackQuery, tierKey string) error {
	chatID, menuID := q.Message.Chat.ID, q.Message.MessageID
	plan, ok := b.premium.Catalog().Lookup(tierKey)
	if !ok {
		if err := b.api.EditMessageText(ctx, chatID, menuID, msgInvalidTier, nil); err != nil {
			log.Debug().Err(err).Msg("Failed to edit plan menu")
		}
		return nil
	}

	err := b.api.SendInvoice(ctx, chatID, telegram.InvoiceRequest{
		Title:       plan.Title,
		Description: plan.Description,
		Payload:     premium.EncodePayload(plan.Key, q.From.ID),
		Currency:    premium.StarsCurrency,
		Prices:      []telegram.LabeledPrice{{Label: plan.Title, Amount: plan.Stars}},
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", q.From.ID).Str("tier", plan.Key).Msg("Failed to send Stars invoice")
		_, sendErr := b.api.SendMessage(ctx, chatID, fmt.Sprintf(msgInvoiceFailed, err), &telegram.SendOptions{ReplyTo: menuID})
		return sendErr
	}
	if err := b.api.DeleteMessage(ctx, chatID, menuID); err != nil {
		log.Debug().Err(err).Msg("Failed to delete plan menu")
	}
	return nil
}

func (b *Bot) preCheckout(ctx context.Context, q *telegram.PreCheckoutQuery) error {
	if _, err := b.premium.CheckInvoice(q.InvoicePayload, q.From.ID); err != nil {
		log.Warn().Err(err).Int64("user_id", q.From.ID).Str("payload", q.InvoicePayload).Msg("Pre-checkout rejected")
		return b.api.AnswerPreCheckoutQuery(ctx, q.ID, false, premium.RejectionMessage(err))
	}
	return b.api.AnswerPreCheckoutQuery(ctx, q.ID, true, "")
}

func (b *Bot) successfulPayment(ctx context.Context, m *telegram.Message) error {
	if m.From == nil {
		return nil
	}
	sp := m.SuccessfulPayment
	plan, _, err := b.premium.CompletePurchase(ctx, premium.Purchase{
		Payload:          sp.InvoicePayload,
		PayerID:          m.From.ID,
		Currency:         sp.Currency,
		Amount:           sp.TotalAmount,
		ChargeID:         sp.TelegramPaymentChargeID,
		ProviderChargeID: sp.ProviderPaymentChargeID,
	})
	if err != nil {
		if errors.Is(err, premium.ErrPlanUnavailable) || errors.Is(err, premium.ErrInvalidPayload) || errors.Is(err, premium.ErrUserMismatch) {
			log.Error().Err(err).
				Int64("user_id", m.From.ID).
				Str("payload", sp.InvoicePayload).
				Str("charge_id", sp.TelegramPaymentChargeID).
				Msg("Successful payment for unknown tier")
			return b.reply(ctx, m, msgActivationProblem)
		}
		return err
	}
	return b.reply(ctx, m, fmt.Sprintf(msgPremiumActivated, plan.Title, plan.Days))
}
