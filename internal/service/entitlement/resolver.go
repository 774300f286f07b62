package entitlement

import (
	"context"
	"time"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/rs/zerolog/log"
)

// BanChecker reports banned-set membership.
type BanChecker interface {
	IsBanned(ctx context.Context, id int64) (bool, error)
}

// Resolver is the single place a Role is derived. Call sites must not re-derive roles from record fields.
type Resolver struct {
	users  *usersvc.Service
	bans   BanChecker
	admins map[int64]struct{}
	now    func() time.Time
}

func NewResolver(users *usersvc.Service, bans BanChecker, adminIDs []int64) *Resolver {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Resolver{users: users, bans: bans, admins: admins, now: time.Now}
}

// IsAdmin reports static allowlist membership.
func (r *Resolver) IsAdmin(id int64) bool {
	_, ok := r.admins[id]
	return ok
}

// ActsAsAdmin reports whether id currently resolves to the admin role.
// An allowlisted id that is banned does not.
func (r *Resolver) ActsAsAdmin(ctx context.Context, id int64) (bool, error) {
	if !r.IsAdmin(id) {
		return false, nil
	}
	role, err := r.Resolve(ctx, id, true, true)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

// AdminIDs returns the allowlist.
func (r *Resolver) AdminIDs() []int64 {
	ids := make([]int64, 0, len(r.admins))
	for id := range r.admins {
		ids = append(ids, id)
	}
	return ids
}

// Resolve derives the current role of userID.
//
// Precedence is banned, admin, active premium, standard. When isSelf is set and forDisplay
// is not, a stale premium grant on the acting user's record is normalized in the same
// locked read-modify-write that observed it. Display resolutions never write.
func (r *Resolver) Resolve(ctx context.Context, userID int64, isSelf, forDisplay bool) (domain.Role, error) {
	banned, err := r.bans.IsBanned(ctx, userID)
	if err != nil {
		return domain.RoleStandard, err
	}
	if banned {
		return domain.RoleBanned, nil
	}
	if r.IsAdmin(userID) {
		return domain.RoleAdmin, nil
	}

	now := r.now()
	if !isSelf || forDisplay {
		rec, err := r.users.Get(ctx, userID)
		if err != nil {
			return domain.RoleStandard, err
		}
		if rec != nil && rec.PremiumActive(now) {
			return domain.RolePremium, nil
		}
		return domain.RoleStandard, nil
	}

	// The master record is re-read under the user lock, so grants racing this call are observed.
	var cleaned bool
	rec, err := r.users.Update(ctx, userID, func(rec *domain.Record) (bool, error) {
		cleaned = rec.NormalizeStalePremium(now)
		return cleaned, nil
	})
	if err != nil {
		return domain.RoleStandard, err
	}
	if cleaned {
		log.Info().Int64("user_id", userID).Str("tier", rec.PremiumTier).Msg("Expired premium cleaned up")
	}
	if rec.PremiumActive(now) {
		return domain.RolePremium, nil
	}
	return domain.RoleStandard, nil
}
