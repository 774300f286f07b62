package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/fairy-root/media-downloader-bot/internal/service/download"
	"github.com/fairy-root/media-downloader-bot/internal/service/entitlement"
	"github.com/fairy-root/media-downloader-bot/internal/service/fetch"
	"github.com/fairy-root/media-downloader-bot/internal/service/premium"
	"github.com/fairy-root/media-downloader-bot/internal/service/quota"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/rs/zerolog/log"
)

const (
	msgSendLink   = "Please send a valid media link to download."
	msgOops       = "😔 Oops! Something went wrong on my end. Please try again or contact support if the issue persists."
	buyPrefix     = "BUY_PREMIUM_"
	parseModeHTML = "HTML"
)

// API is the Bot API surface used by update handlers.
type API interface {
	download.Transport
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
	SendInvoice(ctx context.Context, chatID int64, inv telegram.InvoiceRequest) error
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// Options are the user-visible settings quoted in help texts.
type Options struct {
	SupportContact string
	StandardMaxMB  float64
}

// Bot turns Telegram updates into service calls.
type Bot struct {
	api          API
	users        *usersvc.Service
	resolver     *entitlement.Resolver
	ledger       *quota.Ledger
	premium      *premium.Engine
	admin        *admin.Service
	orchestrator *download.Orchestrator
	opts         Options
	router       *Router
}

func New(
	api API,
	users *usersvc.Service,
	resolver *entitlement.Resolver,
	ledger *quota.Ledger,
	engine *premium.Engine,
	adminSvc *admin.Service,
	orchestrator *download.Orchestrator,
	opts Options,
) *Bot {
	b := &Bot{
		api:          api,
		users:        users,
		resolver:     resolver,
		ledger:       ledger,
		premium:      engine,
		admin:        adminSvc,
		orchestrator: orchestrator,
		opts:         opts,
		router:       NewRouter(),
	}
	b.registerCommands()
	return b
}

func (b *Bot) registerCommands() {
	b.router.Handle("start", b.start)
	b.router.Handle("help", b.help)
	b.router.Handle("myrole", b.myRole)
	b.router.Handle("support", b.support)
	b.router.Handle("premium", b.premiumMenu)

	b.router.Handle("setuserpremium", b.RequireAdmin(b.setUserPremium))
	b.router.Handle("removeuserpremium", b.RequireAdmin(b.removeUserPremium))
	b.router.Handle("banuser", b.RequireAdmin(b.banUser))
	b.router.Handle("unbanuser", b.RequireAdmin(b.unbanUser))
	b.router.Handle("togglechannelcheck", b.RequireAdmin(b.toggleChannelCheck))
	b.router.Handle("setrequiredchannels", b.RequireAdmin(b.setRequiredChannels))
	b.router.Handle("stats", b.RequireAdmin(b.stats))
	b.router.Handle("viewusers", b.RequireAdmin(b.viewUsers))
}

// Commands is the public command list registered with Telegram at startup.
func Commands() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: "start", Description: "🌟 Start Bot & View Status"},
		{Command: "help", Description: "ℹ️ Get Help & Command List"},
		{Command: "myrole", Description: "👤 My Account Details"},
		{Command: "premium", Description: "💎 Upgrade to Premium"},
		{Command: "support", Description: "📞 Contact Support"},
	}
}

// HandleUpdate processes one update. Handler errors are logged and answered with a
// generic apology unless the user has blocked the bot.
func (b *Bot) HandleUpdate(ctx context.Context, upd *telegram.Update) {
	err := b.route(ctx, upd)
	if err == nil {
		return
	}
	logger := log.With().Int("update_id", upd.UpdateID).Int64("user_id", upd.UserID()).Str("kind", upd.Kind()).Logger()
	if telegram.IsForbidden(err) {
		logger.Warn().Err(err).Msg("Bot is blocked by user")
		return
	}
	logger.Error().Err(err).Msg("Update handler failed")
	if m := upd.Message; m != nil {
		if _, err := b.api.SendMessage(ctx, m.Chat.ID, msgOops, nil); err != nil {
			logger.Warn().Err(err).Msg("Failed to send error reply")
		}
	}
}

func (b *Bot) route(ctx context.Context, upd *telegram.Update) error {
	switch {
	case upd.PreCheckoutQuery != nil:
		return b.preCheckout(ctx, upd.PreCheckoutQuery)
	case upd.CallbackQuery != nil:
		return b.callback(ctx, upd.CallbackQuery)
	case upd.Message != nil && upd.Message.SuccessfulPayment != nil:
		return b.successfulPayment(ctx, upd.Message)
	case upd.Message != nil:
		return b.message(ctx, upd.Message)
	}
	return nil
}

func (b *Bot) message(ctx context.Context, m *telegram.Message) error {
	if m.From == nil {
		return nil
	}
	text, entities := m.Body()
	if text == "" {
		return nil
	}
	if name, args, ok := ParseCommand(text); ok {
		if fn, found := b.router.Lookup(name); found {
			return fn(ctx, &Command{Name: name, Args: args, Message: m})
		}
		return nil
	}

	link := ExtractURL(text, entities)
	if link == "" {
		if m.Chat.IsPrivate() {
			return b.reply(ctx, m, msgSendLink)
		}
		return nil
	}
	b.orchestrator.HandleURL(ctx, download.URLRequest{
		UserID:    m.From.ID,
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		URL:       link,
	})
	return nil
}

func (b *Bot) callback(ctx context.Context, q *telegram.CallbackQuery) error {
	if err := b.api.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		log.Debug().Err(err).Str("query_id", q.ID).Msg("Failed to answer callback query")
	}
	if q.Message == nil {
		return nil
	}
	switch {
	case q.Data == download.CallbackVideo || q.Data == download.CallbackAudio:
		format := fetch.FormatVideo
		if q.Data == download.CallbackAudio {
			format = fetch.FormatAudio
		}
		b.orchestrator.HandleFormatChoice(ctx, download.ChoiceRequest{
			UserID:          q.From.ID,
			ChatID:          q.Message.Chat.ID,
			PromptMessageID: q.Message.MessageID,
			Format:          format,
		})
		return nil
	case strings.HasPrefix(q.Data, buyPrefix):
		return b.buyPremium(ctx, q, strings.TrimPrefix(q.Data, buyPrefix))
	}
	return nil
}

func (b *Bot) reply(ctx context.Context, m *telegram.Message, text string) error {
	_, err := b.api.SendMessage(ctx, m.Chat.ID, text, nil)
	return err
}

func (b *Bot) replyHTML(ctx context.Context, m *telegram.Message, text string) error {
	_, err := b.api.SendMessage(ctx, m.Chat.ID, text, &telegram.SendOptions{ParseMode: parseModeHTML, NoPreview: true})
	return err
}

// notifyUser sends a direct message and only logs a failure.
func (b *Bot) notifyUser(ctx context.Context, userID int64, text string) {
	if _, err := b.api.SendMessage(ctx, userID, text, nil); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to notify user")
	}
}

// formatRemaining renders d as "Xd Yh Zm", truncated to whole minutes.
func formatRemaining(d time.Duration) string {
	total := int(d / time.Minute)
	if total < 0 {
		total = 0
	}
	days := total / (24 * 60)
	hours := total % (24 * 60) / 60
	minutes := total % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
