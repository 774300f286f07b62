package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/domain/settings"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/rs/zerolog/log"
)

// usersPerMessage bounds one /viewusers reply.
const usersPerMessage = 50

const expiryLayout = "2006-01-02 15:04:05 UTC"

func (b *Bot) setUserPremium(ctx context.Context, cmd *Command) error {
	if len(cmd.Args) != 2 {
		return b.replyHTML(ctx, cmd.Message, "Usage: /setuserpremium <code>[user_id] [days]</code>")
	}
	target, err1 := strconv.ParseInt(cmd.Args[0], 10, 64)
	days, err2 := strconv.Atoi(cmd.Args[1])
	if err1 != nil || err2 != nil {
		return b.reply(ctx, cmd.Message, "Invalid user ID or days. Both must be numbers.")
	}
	if days <= 0 {
		return b.reply(ctx, cmd.Message, "Days must be a positive number.")
	}

	expiry, err := b.admin.GrantPremium(ctx, target, days)
	if err != nil {
		return err
	}
	if err := b.reply(ctx, cmd.Message, fmt.Sprintf("✅ User %d has been granted Premium for %d days. Their premium now expires on %s.",
		target, days, expiry.UTC().Format(expiryLayout))); err != nil {
		return err
	}
	b.notifyUser(ctx, target, fmt.Sprintf("🎉 Congratulations! An admin has granted you Premium access for %d days.", days))
	return nil
}

func (b *Bot) removeUserPremium(ctx context.Context, cmd *Command) error {
	if len(cmd.Args) != 1 {
		return b.replyHTML(ctx, cmd.Message, "Usage: /removeuserpremium <code>[user_id]</code>")
	}
	target, err := strconv.ParseInt(cmd.Args[0], 10, 64)
	if err != nil {
		return b.reply(ctx, cmd.Message, "Invalid user ID. It must be a number.")
	}

	switch err := b.admin.RevokePremium(ctx, target); {
	case errors.Is(err, admin.ErrNotFound):
		return b.reply(ctx, cmd.Message, fmt.Sprintf("User %d not found in bot data. Cannot remove premium.", target))
	case errors.Is(err, admin.ErrNotPremium):
		return b.reply(ctx, cmd.Message, fmt.Sprintf("User %d is not currently premium or has no premium data.", target))
	case err != nil:
		return err
	}
	if err := b.reply(ctx, cmd.Message, fmt.Sprintf("✅ Premium status for user %d has been revoked.", target)); err != nil {
		return err
	}
	b.notifyUser(ctx, target, "ℹ️ Your Premium access has been revoked by an administrator.")
	return nil
}

func (b *Bot) banUser(ctx context.Context, cmd *Command) error {
	target, ok := targetArg(cmd)
	if !ok {
		return b.replyHTML(ctx, cmd.Message, "Usage: /banuser <code>[user_id]</code>")
	}
	switch err := b.admin.Ban(ctx, cmd.UserID(), target); {
	case errors.Is(err, admin.ErrSelfBan):
		return b.reply(ctx, cmd.Message, "You cannot ban yourself.")
	case errors.Is(err, admin.ErrAdminBan):
		return b.reply(ctx, cmd.Message, "Admins cannot be banned.")
	case errors.Is(err, admin.ErrAlreadyBanned):
		return b.reply(ctx, cmd.Message, fmt.Sprintf("User %d is already banned.", target))
	case err != nil:
		return err
	}
	return b.reply(ctx, cmd.Message, fmt.Sprintf("🚫 User %d has been banned and their premium (if any) revoked.", target))
}

func (b *Bot) unbanUser(ctx context.Context, cmd *Command) error {
	target, ok := targetArg(cmd)
	if !ok {
		return b.replyHTML(ctx, cmd.Message, "Usage: /unbanuser <code>[user_id]</code>")
	}
	switch err := b.admin.Unban(ctx, target); {
	case errors.Is(err, admin.ErrNotBanned):
		return b.reply(ctx, cmd.Message, fmt.Sprintf("User %d was not found in the ban list.", target))
	case err != nil:
		return err
	}
	return b.reply(ctx, cmd.Message, fmt.Sprintf("✅ User %d has been unbanned.", target))
}

func (b *Bot) toggleChannelCheck(ctx context.Context, cmd *Command) error {
	cfg, err := b.admin.ToggleChannelGate(ctx)
	if err != nil {
		return err
	}
	return b.reply(ctx, cmd.Message, "📢 Mandatory channel subscription is now "+onOff(cfg.Enabled)+".")
}

func (b *Bot) setRequiredChannels(ctx context.Context, cmd *Command) error {
	if len(cmd.Args) == 0 {
		return b.replyHTML(ctx, cmd.Message, "Usage: /setrequiredchannels <code>[@ch1 ID2...]</code> or <code>none</code> to clear.\n"+
			"Channels must be public or bot must be admin in private channels.")
	}
	cfg, err := b.admin.SetRequiredChannels(ctx, strings.Join(cmd.Args, " "))
	var invalid *admin.InvalidChannelsError
	if errors.As(err, &invalid) {
		return b.reply(ctx, cmd.Message, fmt.Sprintf("Invalid channel formats: %s. Use @username or numeric chat ID (e.g., -100123456789).",
			strings.Join(invalid.Invalid, ", ")))
	}
	if err != nil {
		return err
	}
	return b.reply(ctx, cmd.Message, channelsSummary(cfg))
}

func channelsSummary(cfg settings.ChannelGateConfig) string {
	if len(cfg.Channels) == 0 {
		return "📢 Required channels list cleared.\nℹ️ No channels are set as required."
	}
	msg := "📢 Required channels set to: " + strings.Join(cfg.Channels, ", ")
	if cfg.Enabled {
		return msg + "\nℹ️ Channel check is currently ENABLED."
	}
	return msg + "\n⚠️ Channel check is currently DISABLED. Enable with /togglechannelcheck."
}

func (b *Bot) stats(ctx context.Context, cmd *Command) error {
	st, err := b.admin.Stats(ctx)
	if err != nil {
		return err
	}
	channels := strings.Join(st.ChannelGate.Channels, ", ")
	if channels == "" {
		channels = "None"
	}
	lines := []string{
		"📊 <b>Bot Usage Statistics</b> 📊",
		fmt.Sprintf("  - Total Users with Data: %d", st.TotalUsers),
		fmt.Sprintf("  - Configured Admins (in ADMIN_IDS): %d (Interacted: %d)", st.ConfiguredAdmins, st.InteractedAdmins),
		"  - Roles Breakdown:",
		fmt.Sprintf("    - Admin: %d", st.Admins),
		fmt.Sprintf("    - Admin (Premium): %d", st.AdminsPremium),
		fmt.Sprintf("    - Premium Users: %d", st.Premium),
		fmt.Sprintf("    - Standard Users: %d (of which ~%d previously had premium)", st.Standard, st.FormerPremium),
		fmt.Sprintf("    - Banned Users: %d", st.Banned),
		"\n📢 <b>Channel Subscription:</b> " + onOff(st.ChannelGate.Enabled),
		"  - Required Channels: " + html.EscapeString(channels),
	}
	return b.replyHTML(ctx, cmd.Message, strings.Join(lines, "\n"))
}

func (b *Bot) viewUsers(ctx context.Context, cmd *Command) error {
	views, err := b.admin.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		return b.reply(ctx, cmd.Message, "No user data found.")
	}

	now := time.Now()
	limit := b.ledger.Limit()
	part := 1
	chunk := []string{"👥 <b>User Details List (Max 50 users displayed per message):</b>"}
	for i, v := range views {
		chunk = append(chunk, userLine(v, now, limit))
		last := i == len(views)-1
		if (i+1)%usersPerMessage != 0 && !last {
			continue
		}
		if err := b.replyHTML(ctx, cmd.Message, strings.Join(chunk, "\n")); err != nil {
			log.Warn().Err(err).Int("part", part).Msg("Failed to send user list part")
			return b.reply(ctx, cmd.Message, fmt.Sprintf("Error sending user list part: %v", err))
		}
		part++
		chunk = []string{fmt.Sprintf("... (continued - part %d) ...", part)}
	}
	return nil
}

func userLine(v admin.UserView, now time.Time, limit int) string {
	lines := []string{
		fmt.Sprintf("\n👤 ID: <code>%d</code>", v.ID),
		"   Role: " + v.Role,
	}
	switch {
	case v.PremiumActive:
		tier := v.PremiumTier
		if tier == "" {
			tier = "N/A"
		}
		lines = append(lines, fmt.Sprintf("   Tier: Active Premium (%s)", html.EscapeString(tier)))
	case v.PremiumTier != "":
		lines = append(lines, "   Tier: "+html.EscapeString(v.PremiumTier))
	}
	if v.PremiumExpiry != nil {
		exp := v.PremiumExpiry.UTC().Format("2006-01-02 15:04")
		if v.PremiumExpiry.After(now) {
			lines = append(lines, fmt.Sprintf("   <b>Premium Ends:</b> %s UTC (%s left)", exp, formatRemaining(v.PremiumExpiry.Sub(now))))
		} else {
			lines = append(lines, fmt.Sprintf("   <b>Premium Expired:</b> %s UTC", exp))
		}
	}
	if v.DownloadsToday != nil {
		lines = append(lines, fmt.Sprintf("   <b>Downloads Today:</b> %d/%d", *v.DownloadsToday, limit))
	}
	return strings.Join(lines, "\n")
}

func targetArg(cmd *Command) (int64, bool) {
	if len(cmd.Args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(cmd.Args[0], 10, 64)
	return id, err == nil
}

func onOff(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}
