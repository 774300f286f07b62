package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
)

// UserRepository keeps user records in process memory.
// Staged and durable state are tracked separately so Flush semantics match the Redis store.
type UserRepository struct {
	mu      sync.RWMutex
	durable map[int64]*domain.Record
	pending map[int64]*domain.Record
	flushes int
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		durable: make(map[int64]*domain.Record),
		pending: make(map[int64]*domain.Record),
	}
}

func (r *UserRepository) Get(_ context.Context, id int64) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.pending[id]; ok {
		return rec.Clone(), nil
	}
	return r.durable[id].Clone(), nil
}

func (r *UserRepository) Save(_ context.Context, rec *domain.Record) error {
	r.mu.Lock()
	r.pending[rec.ID] = rec.Clone()
	r.mu.Unlock()
	return nil
}

func (r *UserRepository) Flush(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.pending {
		r.durable[id] = rec
	}
	r.pending = make(map[int64]*domain.Record)
	r.flushes++
	return nil
}

func (r *UserRepository) List(_ context.Context) ([]domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	merged := make(map[int64]*domain.Record, len(r.durable)+len(r.pending))
	for id, rec := range r.durable {
		merged[id] = rec
	}
	for id, rec := range r.pending {
		merged[id] = rec
	}
	out := make([]domain.Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, *rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Durable returns the last flushed copy of id, ignoring staged writes.
func (r *UserRepository) Durable(id int64) *domain.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.durable[id].Clone()
}

// Flushes counts Flush calls.
func (r *UserRepository) Flushes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flushes
}
