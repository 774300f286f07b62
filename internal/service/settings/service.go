package settings

import (
	"context"
	"sync"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	domain "github.com/fairy-root/media-downloader-bot/internal/domain/settings"
)

// Service guards the global records (banned set, channel gate) with one lock.
type Service struct {
	mu   sync.Mutex
	repo domain.Repository
}

func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// Init persists a disabled, empty gate if none exists yet.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.repo.ChannelGate(ctx)
	if err != nil {
		return apperrors.NewCacheError("load channel gate", err)
	}
	if err := s.repo.SaveChannelGate(ctx, cfg); err != nil {
		return apperrors.NewCacheError("save channel gate", err)
	}
	return nil
}

func (s *Service) IsBanned(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.repo.IsBanned(ctx, id)
	if err != nil {
		return false, apperrors.NewCacheError("check ban", err).WithUserID(id)
	}
	return ok, nil
}

func (s *Service) BannedIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.repo.BannedIDs(ctx)
	if err != nil {
		return nil, apperrors.NewCacheError("list bans", err)
	}
	return ids, nil
}

// Ban adds id to the banned set; false means it was already banned.
func (s *Service) Ban(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added, err := s.repo.AddBanned(ctx, id)
	if err != nil {
		return false, apperrors.NewCacheError("ban user", err).WithUserID(id)
	}
	return added, nil
}

// Unban removes id from the banned set; false means it was not banned.
func (s *Service) Unban(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.repo.RemoveBanned(ctx, id)
	if err != nil {
		return false, apperrors.NewCacheError("unban user", err).WithUserID(id)
	}
	return removed, nil
}

func (s *Service) ChannelGate(ctx context.Context) (domain.ChannelGateConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.repo.ChannelGate(ctx)
	if err != nil {
		return cfg, apperrors.NewCacheError("load channel gate", err)
	}
	return cfg, nil
}

// UpdateChannelGate applies fn to the gate config atomically and persists the result.
func (s *Service) UpdateChannelGate(ctx context.Context, fn func(cfg *domain.ChannelGateConfig)) (domain.ChannelGateConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.repo.ChannelGate(ctx)
	if err != nil {
		return cfg, apperrors.NewCacheError("load channel gate", err)
	}
	fn(&cfg)
	if cfg.Channels == nil {
		cfg.Channels = []string{}
	}
	if err := s.repo.SaveChannelGate(ctx, cfg); err != nil {
		return cfg, apperrors.NewCacheError("save channel gate", err)
	}
	return cfg, nil
}
