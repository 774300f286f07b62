package channelgate

import (
	"context"
	"strings"

	"github.com/fairy-root/media-downloader-bot/internal/domain/settings"
	"github.com/rs/zerolog/log"
)

// MembershipOracle answers whether a user belongs to a channel.
type MembershipOracle interface {
	IsMember(ctx context.Context, channel string, userID int64) (bool, error)
}

// ConfigSource provides the current gate policy.
type ConfigSource interface {
	ChannelGate(ctx context.Context) (settings.ChannelGateConfig, error)
}

// Gate enforces the mandatory-channel policy.
type Gate struct {
	config ConfigSource
	oracle MembershipOracle
}

func New(config ConfigSource, oracle MembershipOracle) *Gate {
	return &Gate{config: config, oracle: oracle}
}

// CheckJoin reports whether userID has joined every required channel. When not, reason lists
// the missing channels in configured order; a channel whose lookup failed is annotated.
func (g *Gate) CheckJoin(ctx context.Context, userID int64) (bool, string, error) {
	cfg, err := g.config.ChannelGate(ctx)
	if err != nil {
		return false, "", err
	}
	if !cfg.Enabled || len(cfg.Channels) == 0 {
		return true, "", nil
	}

	var missing []string
	for _, ch := range cfg.Channels {
		ok, err := g.oracle.IsMember(ctx, ch, userID)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Str("channel", ch).Msg("Channel membership check failed")
			missing = append(missing, ch+" (config error?)")
			continue
		}
		if !ok {
			missing = append(missing, ch)
		}
	}
	if len(missing) == 0 {
		return true, "", nil
	}
	return false, "Please join: " + strings.Join(missing, ", "), nil
}
