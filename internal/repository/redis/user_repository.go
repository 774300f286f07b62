package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/redis/go-redis/v9"
)

const userIDsKey = "users:ids"

func userKey(id int64) string { return fmt.Sprintf("user:%d", id) }

// storedUser is the wire shape of a user record; premium expiry is epoch seconds.
type storedUser struct {
	ID                  int64    `json:"id"`
	IsPremium           bool     `json:"is_premium"`
	PremiumExpiry       *float64 `json:"premium_expiry_timestamp"`
	PremiumTier         string   `json:"premium_tier,omitempty"`
	LastDownloadDate    string   `json:"last_download_date,omitempty"`
	DailyDownloadsCount int      `json:"daily_downloads_count"`
	PendingURL          string   `json:"current_url_to_download,omitempty"`
	PendingReplyTarget  int      `json:"last_message_id_for_url,omitempty"`
	CreatedAt           int64    `json:"created_at"`
	UpdatedAt           int64    `json:"updated_at"`
}

func toStored(r *domain.Record) storedUser {
	s := storedUser{
		ID:                  r.ID,
		IsPremium:           r.IsPremium,
		PremiumTier:         r.PremiumTier,
		LastDownloadDate:    r.LastDownloadDate,
		DailyDownloadsCount: r.DailyDownloadsCount,
		PendingURL:          r.PendingURL,
		PendingReplyTarget:  r.PendingReplyTarget,
		CreatedAt:           r.CreatedAt.Unix(),
		UpdatedAt:           r.UpdatedAt.Unix(),
	}
	if r.PremiumExpiry != nil {
		ts := float64(r.PremiumExpiry.UnixNano()) / float64(time.Second)
		s.PremiumExpiry = &ts
	}
	return s
}

func fromStored(s storedUser) *domain.Record {
	r := &domain.Record{
		ID:                  s.ID,
		IsPremium:           s.IsPremium,
		PremiumTier:         s.PremiumTier,
		LastDownloadDate:    s.LastDownloadDate,
		DailyDownloadsCount: s.DailyDownloadsCount,
		PendingURL:          s.PendingURL,
		PendingReplyTarget:  s.PendingReplyTarget,
		CreatedAt:           time.Unix(s.CreatedAt, 0),
		UpdatedAt:           time.Unix(s.UpdatedAt, 0),
	}
	if s.PremiumExpiry != nil {
		sec, frac := math.Modf(*s.PremiumExpiry)
		exp := time.Unix(int64(sec), int64(frac*float64(time.Second)))
		r.PremiumExpiry = &exp
	}
	return r
}

// UserRepository stores user records as JSON under user:{id}.
// Save stages records in memory; Flush writes every staged record in one transaction.
// A batch being written stays readable as inflight until Redis has it.
type UserRepository struct {
	client *rplatform.Client

	flushMu  sync.Mutex
	mu       sync.Mutex
	pending  map[int64][]byte
	inflight map[int64][]byte
}

func NewUserRepository(client *rplatform.Client) *UserRepository {
	return &UserRepository{
		client:   client,
		pending:  make(map[int64][]byte),
		inflight: make(map[int64][]byte),
	}
}

// staged returns the newest unflushed copy of id.
func (r *UserRepository) staged(id int64) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.pending[id]; ok {
		return b, true
	}
	b, ok := r.inflight[id]
	return b, ok
}

func (r *UserRepository) Get(ctx context.Context, id int64) (*domain.Record, error) {
	staged, ok := r.staged(id)

	data := staged
	if !ok {
		b, err := r.client.Get(ctx, userKey(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, err
		}
		data = b
	}

	var s storedUser
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	return fromStored(s), nil
}

func (r *UserRepository) Save(ctx context.Context, rec *domain.Record) error {
	b, err := json.Marshal(toStored(rec))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.pending[rec.ID] = b
	r.mu.Unlock()
	return nil
}

// Flush commits staged records. Flushes run one at a time. On failure the batch is
// re-staged unless a newer write for the same user arrived meanwhile.
func (r *UserRepository) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[int64][]byte)
	r.inflight = batch
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ids := make([]interface{}, 0, len(batch))
		for id, b := range batch {
			pipe.Set(ctx, userKey(id), b, 0)
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		pipe.SAdd(ctx, userIDsKey, ids...)
		return nil
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight = make(map[int64][]byte)
	if err != nil {
		for id, b := range batch {
			if _, newer := r.pending[id]; !newer {
				r.pending[id] = b
			}
		}
		return fmt.Errorf("flush %d user records: %w", len(batch), err)
	}
	return nil
}

// List returns every known user, overlaying staged writes on durable state.
func (r *UserRepository) List(ctx context.Context) ([]domain.Record, error) {
	members, err := r.client.SMembers(ctx, userIDsKey).Result()
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(members))
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, convErr := strconv.ParseInt(m, 10, 64)
		if convErr != nil {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.mu.Lock()
	for _, staged := range []map[int64][]byte{r.pending, r.inflight} {
		for id := range staged {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	r.mu.Unlock()

	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}
