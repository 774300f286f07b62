package user

import (
	"context"
	"time"

	apperrors "github.com/fairy-root/media-downloader-bot/internal/common/errors"
	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
)

// Mutation edits a record in place and reports whether anything changed.
type Mutation func(r *domain.Record) (changed bool, err error)

// Service serializes every read-modify-write of a user record per user id.
// Callers never touch the repository directly.
type Service struct {
	repo  domain.Repository
	locks *keyedMutex
	now   func() time.Time
}

func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo, locks: newKeyedMutex(), now: time.Now}
}

// Get returns a snapshot of the user's record, or nil if the user was never seen. It never writes.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewCacheError("get user", err).WithUserID(id)
	}
	return rec, nil
}

// Update runs fn against the current record while holding the user's lock.
// A missing record is created; the result is staged when created or changed.
// The returned record is a copy of the state after fn.
func (s *Service) Update(ctx context.Context, id int64, fn Mutation) (*domain.Record, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.NewCacheError("get user", err).WithUserID(id)
	}
	created := rec == nil
	if created {
		rec = domain.New(id, s.now())
	}

	changed, err := fn(rec)
	if err != nil {
		return nil, err
	}
	if changed || created {
		rec.UpdatedAt = s.now()
		if err := s.repo.Save(ctx, rec); err != nil {
			return nil, apperrors.NewCacheError("save user", err).WithUserID(id)
		}
	}
	return rec.Clone(), nil
}

// Touch makes sure a record exists for id.
func (s *Service) Touch(ctx context.Context, id int64) (*domain.Record, error) {
	return s.Update(ctx, id, func(*domain.Record) (bool, error) { return false, nil })
}

// List returns every known user.
func (s *Service) List(ctx context.Context) ([]domain.Record, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewCacheError("list users", err)
	}
	return recs, nil
}

// Flush makes all staged writes durable.
func (s *Service) Flush(ctx context.Context) error {
	if err := s.repo.Flush(ctx); err != nil {
		return apperrors.NewCacheError("flush", err)
	}
	return nil
}
