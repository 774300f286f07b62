package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/fairy-root/media-downloader-bot/internal/service/admin"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
)

func (b *Bot) start(ctx context.Context, cmd *Command) error {
	from := cmd.Message.From
	if from == nil {
		return nil
	}
	if _, err := b.users.Touch(ctx, from.ID); err != nil {
		return err
	}
	role, err := b.resolver.Resolve(ctx, from.ID, true, false)
	if err != nil {
		return err
	}
	if err := b.users.Flush(ctx); err != nil {
		return err
	}

	text := fmt.Sprintf("👋 Hello %s!\n\n"+
		"I'm your media downloader bot. Send me a link from supported platforms, and I'll fetch it for you!\n\n"+
		"✨ <b>Your Current Status:</b> %s\n"+
		"Type /help to see all available commands and learn more about what I can do.\n"+
		"Happy downloading! 📥",
		mentionHTML(from), admin.DisplayRole(role, false))
	return b.replyHTML(ctx, cmd.Message, text)
}

func (b *Bot) help(ctx context.Context, cmd *Command) error {
	uid := cmd.UserID()
	role, err := b.resolver.Resolve(ctx, uid, true, true)
	if err != nil {
		return err
	}
	rec, err := b.users.Get(ctx, uid)
	if err != nil {
		return err
	}
	premiumActive := rec != nil && rec.PremiumActive(time.Now())
	isAdmin := b.resolver.IsAdmin(uid)

	var sb strings.Builder
	sb.WriteString("🌟 <b>Welcome to the Media Downloader Bot!</b> 🌟\n\n" +
		"Here's how I can help you:\n" +
		"1. Send me a link to a video or audio from platforms like TikTok, YouTube, Instagram, etc.\n" +
		"2. I'll process it and send back the media file for you to save!\n\n" +
		"🔗 <b>Available Commands for Everyone:</b>\n" +
		"  /start - Initialize or restart the bot.\n" +
		"  /help - Show this help message.\n" +
		"  /myrole - Check your current user status, limits, and premium days.\n" +
		"  /premium - Explore options to upgrade to Premium for more features!\n")
	fmt.Fprintf(&sb, "  /support - Need help? Contact %s.\n\n", html.EscapeString(b.opts.SupportContact))

	switch {
	case role == domain.RoleStandard:
		sb.WriteString("💡 <b>Standard User Info:</b>\n")
		fmt.Fprintf(&sb, "  - Download up to %d files per day.\n", b.ledger.Limit())
		sb.WriteString("  - Limited to TikTok videos only.\n  - Video format only.\n")
		fmt.Fprintf(&sb, "  - Max file size: %.0fMB.\n", b.opts.StandardMaxMB)
		sb.WriteString("  Consider /premium for an unrestricted experience!\n")
	case role == domain.RolePremium || (isAdmin && premiumActive):
		sb.WriteString("💎 <b>Premium User Perks:</b>\n" +
			"  - Unlimited daily downloads!\n" +
			"  - Download from a wider range of platforms.\n" +
			"  - Download audio &amp; video formats.\n" +
			"  - Higher file size limits (up to Telegram's max for direct send).\n")
	}

	if isAdmin {
		sb.WriteString("\n👑 <b>Admin Exclusive Commands:</b>\n" +
			"  /setuserpremium <code>[user_id] [days]</code> - Grant premium status.\n" +
			"  /removeuserpremium <code>[user_id]</code> - Revoke premium status.\n" +
			"  /banuser <code>[user_id]</code> - Ban a user.\n" +
			"  /unbanuser <code>[user_id]</code> - Unban a user.\n" +
			"  /togglechannelcheck - Enable/disable mandatory channel join.\n" +
			"  /setrequiredchannels <code>[@ch1 ID2...]</code> or <code>none</code> - Set channels.\n" +
			"  /stats - View bot usage statistics.\n" +
			"  /viewusers - List users with details.\n")
	}
	return b.replyHTML(ctx, cmd.Message, sb.String())
}

func (b *Bot) myRole(ctx context.Context, cmd *Command) error {
	uid := cmd.UserID()
	if uid == 0 {
		return nil
	}
	role, err := b.resolver.Resolve(ctx, uid, true, false)
	if err != nil {
		return err
	}
	if err := b.users.Flush(ctx); err != nil {
		return err
	}
	rec, err := b.users.Get(ctx, uid)
	if err != nil {
		return err
	}

	now := time.Now()
	premiumActive := role != domain.RoleBanned && rec != nil && rec.PremiumActive(now)
	lines := []string{
		fmt.Sprintf("👤 <b>User ID:</b> <code>%d</code>", uid),
		fmt.Sprintf("🏅 <b>Role:</b> <b>%s</b>", admin.DisplayRole(role, premiumActive)),
	}
	switch {
	case premiumActive:
		lines = append(lines, "⏳ <b>Premium Expires In:</b> "+formatRemaining(rec.PremiumExpiry.Sub(now)))
	case role == domain.RoleStandard:
		used, err := b.ledger.Used(ctx, uid)
		if err != nil {
			return err
		}
		limit := b.ledger.Limit()
		lines = append(lines,
			fmt.Sprintf("📥 <b>Downloads Today:</b> %d/%d (Remaining: %d)", used, limit, max(0, limit-used)),
			fmt.Sprintf("⚠️ <b>Restrictions:</b> TikTok videos only, video format only, max %.0fMB.", b.opts.StandardMaxMB),
		)
	}
	return b.replyHTML(ctx, cmd.Message, strings.Join(lines, "\n"))
}

func (b *Bot) support(ctx context.Context, cmd *Command) error {
	return b.replyHTML(ctx, cmd.Message, "For assistance, please contact our support: "+html.EscapeString(b.opts.SupportContact))
}

func mentionHTML(u *telegram.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(name))
}
