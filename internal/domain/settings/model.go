package settings

import "context"

// ChannelGateConfig is the global mandatory-channel policy.
type ChannelGateConfig struct {
	Enabled bool `json:"enabled"`
	// Channels are @usernames or numeric chat ids, checked in this order
	Channels []string `json:"channels"`
}

// Repository persists global records. Writes are durable when the call returns.
type Repository interface {
	BannedIDs(ctx context.Context) ([]int64, error)
	IsBanned(ctx context.Context, id int64) (bool, error)
	// AddBanned returns false if id was already banned.
	AddBanned(ctx context.Context, id int64) (bool, error)
	// RemoveBanned returns false if id was not banned.
	RemoveBanned(ctx context.Context, id int64) (bool, error)
	ChannelGate(ctx context.Context) (ChannelGateConfig, error)
	SaveChannelGate(ctx context.Context, cfg ChannelGateConfig) error
}
