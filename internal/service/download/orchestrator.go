package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/fairy-root/media-downloader-bot/internal/metrics"
	"github.com/fairy-root/media-downloader-bot/internal/service/fetch"
	"github.com/fairy-root/media-downloader-bot/internal/service/quota"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Callback data of the format buttons.
const (
	CallbackVideo = "dl_video"
	CallbackAudio = "dl_audio"
)

const (
	msgBanned           = "You are banned from using this bot."
	msgBannedChoice     = "You are currently banned from using this service."
	msgJoinChannels     = "Please join our channel(s) to continue."
	msgPlatformDenied   = "Standard users can only download from TikTok. /premium for all supported sources."
	msgAudioDenied      = "Standard users can only download videos. /premium for audio!"
	msgDailyLimit       = "Daily download limit (%d) reached. /premium for more!"
	msgChooseFormat     = "Choose your desired format:"
	msgChooseStandard   = "Choose your desired format (TikTok video only for standard users):"
	msgPreparing        = "⏳ Preparing to download %s..."
	msgUploading        = "🚀 Uploading %s (%.2fMB)..."
	msgFetchFailed      = "❌ Download failed: %s"
	msgTooLargeUpload   = "File (%.2fMB) is too large for Telegram direct upload by bots (limit ~50MB)."
	msgSendFailed       = "Error sending file: %s."
	msgUnexpected       = "An unexpected error occurred. Please try again later."
	msgSizeExceeded     = "✅ Downloaded: %s\n⚠️ File size (%.2fMB) exceeds your current limit of %.0fMB."
	msgSizeUpgrade      = "\nUpgrade to /premium for larger files."
	msgSizeBotLimitNote = "\n(Telegram's practical limit for direct bot uploads is ~50MB)."
)

// Transport is the part of the Bot API the orchestrator talks through.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *telegram.SendOptions) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendVideo(ctx context.Context, chatID int64, path string, opts telegram.MediaOptions) error
	SendAudio(ctx context.Context, chatID int64, path string, opts telegram.MediaOptions) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, format fetch.Format, userID int64) (*fetch.Media, error)
}

type RoleResolver interface {
	Resolve(ctx context.Context, userID int64, isSelf, forDisplay bool) (domain.Role, error)
}

type JoinChecker interface {
	CheckJoin(ctx context.Context, userID int64) (bool, string, error)
}

// Limits are the per-tier download restrictions.
type Limits struct {
	StandardMaxBytes int64
	ElevatedMaxBytes int64
	// AllowedHosts is the only source platform open to standard users
	AllowedHosts []string
}

// Orchestrator runs one download request end to end.
type Orchestrator struct {
	users     *usersvc.Service
	resolver  RoleResolver
	gate      JoinChecker
	ledger    *quota.Ledger
	fetcher   Fetcher
	transport Transport
	limits    Limits
}

func NewOrchestrator(
	users *usersvc.Service,
	resolver RoleResolver,
	gate JoinChecker,
	ledger *quota.Ledger,
	fetcher Fetcher,
	transport Transport,
	limits Limits,
) *Orchestrator {
	return &Orchestrator{
		users:     users,
		resolver:  resolver,
		gate:      gate,
		ledger:    ledger,
		fetcher:   fetcher,
		transport: transport,
		limits:    limits,
	}
}

// URLRequest is an inbound media link.
type URLRequest struct {
	UserID    int64
	ChatID    int64
	MessageID int
	URL       string
}

// HandleURL validates a link for the sender and offers the format choice.
func (o *Orchestrator) HandleURL(ctx context.Context, req URLRequest) (out Outcome) {
	logger := log.With().Int64("user_id", req.UserID).Str("url", req.URL).Logger()
	reply := func(text string) {
		if _, err := o.transport.SendMessage(ctx, req.ChatID, text, &telegram.SendOptions{ReplyTo: req.MessageID, ParseMode: "HTML"}); err != nil {
			logger.Warn().Err(err).Msg("Failed to reply")
		}
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Panic while handling URL")
			out = o.fail(StateIdle, apperrors.New(apperrors.ErrCodeInternal, msgUnexpected))
			reply(msgUnexpected)
		}
		recordOutcome(out)
	}()

	role, err := o.resolver.Resolve(ctx, req.UserID, true, false)
	if err != nil {
		logger.Error().Err(err).Msg("Role resolution failed")
		reply(msgUnexpected)
		return o.fail(StateIdle, err)
	}
	if role == domain.RoleBanned {
		reply(msgBanned)
		return o.fail(StateIdle, apperrors.NewPolicyDenied("banned", msgBanned))
	}

	if !role.Elevated() {
		joined, reason, err := o.gate.CheckJoin(ctx, req.UserID)
		if err != nil {
			logger.Error().Err(err).Msg("Channel gate check failed")
			reply(msgUnexpected)
			return o.fail(StateIdle, err)
		}
		if !joined {
			if reason == "" {
				reason = msgJoinChannels
			}
			reply(reason)
			return o.fail(StateIdle, apperrors.NewPolicyDenied("channel_gate", reason))
		}
		if !HostAllowed(req.URL, o.limits.AllowedHosts) {
			reply(msgPlatformDenied)
			return o.fail(StateIdle, apperrors.NewPolicyDenied("platform", msgPlatformDenied))
		}
	}

	// a newer link replaces any pending one
	if _, err := o.users.Update(ctx, req.UserID, func(r *domain.Record) (bool, error) {
		r.PendingURL = req.URL
		r.PendingReplyTarget = req.MessageID
		return true, nil
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to store pending request")
		reply(msgUnexpected)
		return o.fail(StateIdle, err)
	}
	if err := o.users.Flush(ctx); err != nil {
		logger.Warn().Err(err).Msg("Flush after storing pending request failed")
	}

	row := []telegram.InlineKeyboardButton{{Text: "🎬 Video", CallbackData: CallbackVideo}}
	text := msgChooseStandard
	if role.Elevated() {
		row = append(row, telegram.InlineKeyboardButton{Text: "🎵 Audio (Original)", CallbackData: CallbackAudio})
		text = msgChooseFormat
	}
	if _, err := o.transport.SendMessage(ctx, req.ChatID, text, &telegram.SendOptions{
		ReplyTo:   req.MessageID,
		ParseMode: "HTML",
		Markup:    &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}},
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to send format prompt")
	}
	return Outcome{State: StateAwaitingFormatChoice}
}

// ChoiceRequest is a tap on a format button.
type ChoiceRequest struct {
	UserID int64
	ChatID int64
	// PromptMessageID is the message carrying the buttons; it doubles as the status message
	PromptMessageID int
	Format          fetch.Format
}

// attempt carries the resources of one format choice through the states.
type attempt struct {
	req     ChoiceRequest
	state   State
	url     string
	replyTo int
	ticket  *quota.Ticket
	media   *fetch.Media
	logger  zerolog.Logger
}

func (a *attempt) enter(s State) {
	a.logger.Debug().Str("from", a.state.String()).Str("to", s.String()).Msg("Download state")
	a.state = s
}

// HandleFormatChoice runs Reserving through Done for the user's pending link.
// Every exit path rolls back an unsettled reservation, removes the fetched file
// and flushes the store exactly once.
func (o *Orchestrator) HandleFormatChoice(ctx context.Context, req ChoiceRequest) (out Outcome) {
	a := &attempt{
		req:    req,
		state:  StateAwaitingFormatChoice,
		logger: log.With().Int64("user_id", req.UserID).Str("format", string(req.Format)).Logger(),
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Msg("Panic in download flow")
			out = o.fail(a.state, apperrors.New(apperrors.ErrCodeInternal, msgUnexpected))
			o.notify(ctx, a, msgUnexpected)
		}
		o.finalize(ctx, a, out)
		recordOutcome(out)
	}()

	// claim the pending link so a second tap on the same prompt finds nothing
	_, err := o.users.Update(ctx, req.UserID, func(r *domain.Record) (bool, error) {
		a.url, a.replyTo = r.PendingURL, r.PendingReplyTarget
		if r.PendingURL == "" {
			return false, nil
		}
		r.ClearPending()
		return true, nil
	})
	if err != nil {
		return o.unexpected(ctx, a, err)
	}
	if a.url == "" {
		lost := apperrors.NewContextLost()
		o.notify(ctx, a, lost.Message)
		return o.fail(a.state, lost)
	}
	a.logger = a.logger.With().Str("url", a.url).Logger()

	role, err := o.resolver.Resolve(ctx, req.UserID, true, false)
	if err != nil {
		return o.unexpected(ctx, a, err)
	}
	if role == domain.RoleBanned {
		o.notify(ctx, a, msgBannedChoice)
		return o.fail(a.state, apperrors.NewPolicyDenied("banned", msgBannedChoice))
	}

	nonPrivileged := !role.Elevated()
	if nonPrivileged {
		a.enter(StateReserving)
		if req.Format == fetch.FormatAudio {
			o.notify(ctx, a, msgAudioDenied)
			return o.fail(a.state, apperrors.NewPolicyDenied("audio", msgAudioDenied))
		}
		ticket, err := o.ledger.Acquire(ctx, req.UserID)
		if err != nil {
			return o.unexpected(ctx, a, err)
		}
		if ticket == nil {
			msg := fmt.Sprintf(msgDailyLimit, o.ledger.Limit())
			o.notify(ctx, a, msg)
			return o.fail(a.state, apperrors.NewPolicyDenied("daily_limit", msg))
		}
		a.ticket = ticket
		if err := o.users.Flush(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Flush after reservation failed")
		}
	}

	a.enter(StateFetching)
	o.edit(ctx, a, fmt.Sprintf(msgPreparing, req.Format))

	media, err := o.fetcher.Fetch(ctx, a.url, req.Format, req.UserID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Fetch failed")
		userMsg := msgUnexpected
		if appErr, ok := apperrors.AsAppError(err); ok {
			userMsg = appErr.Message
		}
		o.notify(ctx, a, fmt.Sprintf(msgFetchFailed, userMsg))
		return o.fail(a.state, err)
	}
	a.media = media

	a.enter(StateSizeChecking)
	size := media.Metadata.ByteSize
	if st, err := os.Stat(media.Path); err == nil {
		size = st.Size()
	}
	sizeMB := float64(size) / (1024 * 1024)
	limit := o.limits.ElevatedMaxBytes
	if nonPrivileged {
		limit = o.limits.StandardMaxBytes
	}
	if size > limit {
		msg := fmt.Sprintf(msgSizeExceeded, filepath.Base(media.Path), sizeMB, float64(limit)/(1024*1024))
		if nonPrivileged {
			msg += msgSizeUpgrade
		} else {
			msg += msgSizeBotLimitNote
		}
		o.notify(ctx, a, msg)
		return o.fail(a.state, apperrors.NewSizeExceeded(msg, size, limit))
	}

	a.enter(StateDelivering)
	o.edit(ctx, a, fmt.Sprintf(msgUploading, req.Format, sizeMB))
	opts := telegram.MediaOptions{
		Caption:   Caption(media.Metadata),
		ParseMode: "HTML",
		ReplyTo:   a.replyTo,
		Duration:  int(media.Metadata.DurationSeconds),
	}
	if req.Format == fetch.FormatAudio {
		opts.Title = media.Metadata.Title
		opts.Performer = media.Metadata.Uploader
		err = o.transport.SendAudio(ctx, req.ChatID, media.Path, opts)
	} else {
		err = o.transport.SendVideo(ctx, req.ChatID, media.Path, opts)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("Delivery failed")
		msg := fmt.Sprintf(msgSendFailed, sendErrorText(err))
		if telegram.IsTooLarge(err) {
			msg = fmt.Sprintf(msgTooLargeUpload, sizeMB)
		}
		o.notify(ctx, a, msg)
		return o.fail(a.state, apperrors.NewDeliveryFailure(err, msg))
	}

	if a.ticket != nil {
		if err := a.ticket.Commit(); err != nil {
			a.logger.Error().Err(err).Msg("Reservation settled twice")
		}
	}
	if err := o.transport.DeleteMessage(ctx, req.ChatID, req.PromptMessageID); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to delete status message")
	}
	a.enter(StateDone)
	a.logger.Info().Int64("bytes", size).Msg("Media delivered")
	return Outcome{State: StateDone}
}

// finalize is the single exit step of HandleFormatChoice.
func (o *Orchestrator) finalize(ctx context.Context, a *attempt, out Outcome) {
	ctx = context.WithoutCancel(ctx)

	if out.Failed() {
		a.logger.WithLevel(outcomeLevel(out)).
			Err(out.Err).
			Str("failed_in", out.FailedIn.String()).
			Msg("Download attempt ended")
	}

	if a.ticket != nil && a.ticket.State() == quota.TicketReserved {
		if err := a.ticket.Rollback(ctx); err != nil {
			a.logger.Error().Err(err).Str("failed_in", out.FailedIn.String()).Msg("Quota rollback failed")
		}
	}

	if a.url != "" {
		// only clear pending fields that still belong to this attempt
		if _, err := o.users.Update(ctx, a.req.UserID, func(r *domain.Record) (bool, error) {
			if r.PendingURL != a.url || r.PendingReplyTarget != a.replyTo {
				return false, nil
			}
			r.ClearPending()
			return true, nil
		}); err != nil {
			a.logger.Error().Err(err).Msg("Failed to clear pending request")
		}
	}

	if a.media != nil {
		if err := os.Remove(a.media.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Error().Err(err).Str("path", a.media.Path).Msg("Failed to delete temp file")
		}
	}

	if err := o.users.Flush(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Final flush failed")
	}
}

func (o *Orchestrator) fail(in State, err error) Outcome {
	return Outcome{State: StateFailed, FailedIn: in, Err: err}
}

func (o *Orchestrator) unexpected(ctx context.Context, a *attempt, err error) Outcome {
	a.logger.Error().Err(err).Str("state", a.state.String()).Msg("Unexpected error in download flow")
	o.notify(ctx, a, msgUnexpected)
	return o.fail(a.state, err)
}

// edit updates the status message, ignoring failures.
func (o *Orchestrator) edit(ctx context.Context, a *attempt, text string) {
	if err := o.transport.EditMessageText(ctx, a.req.ChatID, a.req.PromptMessageID, text, nil); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to edit status message")
	}
}

// notify tells the user how the attempt ended, falling back to a new reply when the status message cannot be edited.
func (o *Orchestrator) notify(ctx context.Context, a *attempt, text string) {
	if err := o.transport.EditMessageText(ctx, a.req.ChatID, a.req.PromptMessageID, text, nil); err == nil {
		return
	}
	if _, err := o.transport.SendMessage(ctx, a.req.ChatID, text, &telegram.SendOptions{ReplyTo: a.replyTo}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to notify user")
	}
}

func sendErrorText(err error) string {
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Description
	}
	return "upload failed"
}

// outcomeLevel keeps expected denials out of the info log.
func outcomeLevel(out Outcome) zerolog.Level {
	if appErr, ok := apperrors.AsAppError(out.Err); ok && appErr.IsPolicy() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func recordOutcome(out Outcome) {
	m := metrics.Get()
	switch {
	case out.State == StateDone:
		m.RecordDownload(metrics.OutcomeDelivered)
	case out.State != StateFailed:
		return
	default:
		switch apperrors.CodeOf(out.Err) {
		case apperrors.ErrCodePolicyDenied:
			m.RecordDownload(metrics.OutcomePolicyDenied)
		case apperrors.ErrCodeContextLost:
			m.RecordDownload(metrics.OutcomeContextLost)
		case apperrors.ErrCodeFetchFailure:
			m.RecordDownload(metrics.OutcomeFetchFailed)
		case apperrors.ErrCodeSizeExceeded:
			m.RecordDownload(metrics.OutcomeSizeExceeded)
		case apperrors.ErrCodeDeliveryFailure:
			m.RecordDownload(metrics.OutcomeDeliveryError)
		default:
			m.RecordDownload(metrics.OutcomeInternalError)
		}
	}
}
