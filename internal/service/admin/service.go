package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/domain/settings"
	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/fairy-root/media-downloader-bot/internal/metrics"
	"github.com/fairy-root/media-downloader-bot/internal/service/entitlement"
	"github.com/fairy-root/media-downloader-bot/internal/service/premium"
	"github.com/fairy-root/media-downloader-bot/internal/service/quota"
	settingssvc "github.com/fairy-root/media-downloader-bot/internal/service/settings"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrNotPremium    = errors.New("user is not premium")
	ErrSelfBan       = errors.New("cannot ban yourself")
	ErrAdminBan      = errors.New("admins cannot be banned")
	ErrAlreadyBanned = errors.New("user is already banned")
	ErrNotBanned     = errors.New("user is not banned")
)

// Service implements the administrative operations shared by bot commands and the admin API.
// Callers are responsible for checking that the actor is an administrator.
type Service struct {
	users    *usersvc.Service
	settings *settingssvc.Service
	resolver *entitlement.Resolver
	premium  *premium.Engine
	ledger   *quota.Ledger
	now      func() time.Time
}

func NewService(
	users *usersvc.Service,
	settings *settingssvc.Service,
	resolver *entitlement.Resolver,
	engine *premium.Engine,
	ledger *quota.Ledger,
) *Service {
	return &Service{
		users:    users,
		settings: settings,
		resolver: resolver,
		premium:  engine,
		ledger:   ledger,
		now:      time.Now,
	}
}

// GrantPremium extends targetID's premium by days and returns the new expiry.
func (s *Service) GrantPremium(ctx context.Context, targetID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, premium.ErrInvalidDays
	}
	expiry, err := s.premium.Grant(ctx, targetID, days, domain.AdminGrantTier(days))
	if err != nil {
		return time.Time{}, err
	}
	metrics.Get().RecordPremiumGrant(metrics.SourceAdmin)
	log.Info().Int64("user_id", targetID).Int("days", days).Time("expires_at", expiry).Msg("Premium granted by admin")
	return expiry, nil
}

// RevokePremium removes premium from a known user that currently holds premium data.
func (s *Service) RevokePremium(ctx context.Context, targetID int64) error {
	rec, err := s.users.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if !rec.IsPremium && rec.PremiumExpiry == nil {
		return ErrNotPremium
	}
	if err := s.premium.Revoke(ctx, targetID, domain.TierAdminRevoked); err != nil {
		return err
	}
	log.Info().Int64("user_id", targetID).Msg("Premium revoked by admin")
	return nil
}

// Ban adds targetID to the banned set and strips any premium it holds.
func (s *Service) Ban(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return ErrSelfBan
	}
	if s.resolver.IsAdmin(targetID) {
		return ErrAdminBan
	}
	added, err := s.settings.Ban(ctx, targetID)
	if err != nil {
		return err
	}
	if !added {
		return ErrAlreadyBanned
	}

	rec, err := s.users.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if rec != nil {
		if err := s.premium.Revoke(ctx, targetID, domain.TierRevokedBanned); err != nil {
			return fmt.Errorf("revoke premium of banned user: %w", err)
		}
	}
	log.Info().Int64("user_id", targetID).Int64("actor_id", actorID).Msg("User banned")
	return nil
}

func (s *Service) Unban(ctx context.Context, targetID int64) error {
	removed, err := s.settings.Unban(ctx, targetID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotBanned
	}
	log.Info().Int64("user_id", targetID).Msg("User unbanned")
	return nil
}

// ToggleChannelGate flips the gate and returns the new config. The channel list is kept.
func (s *Service) ToggleChannelGate(ctx context.Context) (settings.ChannelGateConfig, error) {
	return s.settings.UpdateChannelGate(ctx, func(cfg *settings.ChannelGateConfig) {
		cfg.Enabled = !cfg.Enabled
	})
}

// SetRequiredChannels replaces the channel list from admin input without touching the enabled flag.
func (s *Service) SetRequiredChannels(ctx context.Context, raw string) (settings.ChannelGateConfig, error) {
	channels, err := ParseChannels(raw)
	if err != nil {
		return settings.ChannelGateConfig{}, err
	}
	return s.settings.UpdateChannelGate(ctx, func(cfg *settings.ChannelGateConfig) {
		cfg.Channels = channels
	})
}

// SetChannelGate replaces the whole gate config.
func (s *Service) SetChannelGate(ctx context.Context, enabled bool, channels []string) (settings.ChannelGateConfig, error) {
	if err := ValidateChannels(channels); err != nil {
		return settings.ChannelGateConfig{}, err
	}
	return s.settings.UpdateChannelGate(ctx, func(cfg *settings.ChannelGateConfig) {
		cfg.Enabled = enabled
		cfg.Channels = append([]string(nil), channels...)
	})
}

// Stats is the aggregate usage report.
type Stats struct {
	TotalUsers       int                        `json:"total_users"`
	ConfiguredAdmins int                        `json:"configured_admins"`
	InteractedAdmins int                        `json:"interacted_admins"`
	Admins           int                        `json:"admins"`
	AdminsPremium    int                        `json:"admins_premium"`
	Premium          int                        `json:"premium"`
	Standard         int                        `json:"standard"`
	FormerPremium    int                        `json:"former_premium"`
	Banned           int                        `json:"banned"`
	DailyLimit       int                        `json:"daily_limit"`
	ChannelGate      settings.ChannelGateConfig `json:"channel_gate"`
}

// Stats counts known users by display role. Banned is the size of the banned set,
// which may include users without a record.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	records, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	banned, err := s.settings.BannedIDs(ctx)
	if err != nil {
		return nil, err
	}
	gate, err := s.settings.ChannelGate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	st := &Stats{
		TotalUsers:       len(records),
		ConfiguredAdmins: len(s.resolver.AdminIDs()),
		Banned:           len(banned),
		DailyLimit:       s.ledger.Limit(),
		ChannelGate:      gate,
	}
	for i := range records {
		rec := &records[i]
		if s.resolver.IsAdmin(rec.ID) {
			st.InteractedAdmins++
		}
		role, err := s.resolver.Resolve(ctx, rec.ID, false, true)
		if err != nil {
			return nil, err
		}
		switch role {
		case domain.RoleAdmin:
			if rec.PremiumActive(now) {
				st.AdminsPremium++
			} else {
				st.Admins++
			}
		case domain.RolePremium:
			st.Premium++
		case domain.RoleStandard:
			st.Standard++
			if rec.HadPremium() {
				st.FormerPremium++
			}
		}
	}
	return st, nil
}

// UserView is one row of the user listing.
type UserView struct {
	ID             int64      `json:"id"`
	Role           string     `json:"role"`
	PremiumActive  bool       `json:"premium_active"`
	PremiumTier    string     `json:"premium_tier,omitempty"`
	PremiumExpiry  *time.Time `json:"premium_expiry,omitempty"`
	DownloadsToday *int       `json:"downloads_today,omitempty"`
}

// ListUsers describes every known user, ordered by id. DownloadsToday is set for
// standard users only.
func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	records, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	now := s.now()
	today := s.ledger.Today()
	views := make([]UserView, 0, len(records))
	for i := range records {
		rec := &records[i]
		role, err := s.resolver.Resolve(ctx, rec.ID, false, true)
		if err != nil {
			return nil, err
		}
		active := rec.PremiumActive(now)
		v := UserView{
			ID:            rec.ID,
			Role:          DisplayRole(role, active),
			PremiumActive: active,
			PremiumTier:   rec.PremiumTier,
			PremiumExpiry: rec.PremiumExpiry,
		}
		if role == domain.RoleStandard {
			n := rec.DownloadsOn(today)
			v.DownloadsToday = &n
		}
		views = append(views, v)
	}
	return views, nil
}

// DisplayRole names a role for humans; admins holding active premium show as "Admin (Premium)".
func DisplayRole(role domain.Role, premiumActive bool) string {
	switch role {
	case domain.RoleBanned:
		return "Banned"
	case domain.RoleAdmin:
		if premiumActive {
			return "Admin (Premium)"
		}
		return "Admin"
	case domain.RolePremium:
		return "Premium"
	default:
		return "Standard"
	}
}
