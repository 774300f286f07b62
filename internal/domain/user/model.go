package user

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format of LastDownloadDate.
const DateLayout = "2006-01-02"

// Premium tier labels written by the bot itself. Purchased tiers use the plan key.
const (
	TierExpiredOrCleaned = "expired_or_cleaned"
	TierAdminRevoked     = "admin_revoked"
	TierRevokedBanned    = "revoked_banned"

	tierAdminPrefix   = "admin_"
	tierRevokedPrefix = "revoked_"
)

// AdminGrantTier is the tier label for an administrative grant of the given length.
func AdminGrantTier(days int) string {
	return tierAdminPrefix + "grant_" + strconv.Itoa(days) + "d"
}

// Record is the per-user state. It is created lazily on first touch and never deleted.
type Record struct {
	ID            int64      `json:"id"`
	IsPremium     bool       `json:"is_premium"`
	PremiumExpiry *time.Time `json:"premium_expiry,omitempty"`
	// PremiumTier is an audit label only; access decisions never read it
	PremiumTier         string `json:"premium_tier,omitempty"`
	LastDownloadDate    string `json:"last_download_date,omitempty"`
	DailyDownloadsCount int    `json:"daily_downloads_count"`

	// In-flight request context between "URL received" and "format chosen"
	PendingURL         string `json:"pending_url,omitempty"`
	PendingReplyTarget int    `json:"pending_reply_target,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty record for id.
func New(id int64, now time.Time) *Record {
	return &Record{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy so callers never alias stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.PremiumExpiry != nil {
		exp := *r.PremiumExpiry
		c.PremiumExpiry = &exp
	}
	return &c
}

// PremiumActive reports whether the record holds an unexpired premium grant.
func (r *Record) PremiumActive(now time.Time) bool {
	return r.IsPremium && r.PremiumExpiry != nil && r.PremiumExpiry.After(now)
}

// HasStalePremium reports premium fields left behind by an expired or partially cleaned grant.
func (r *Record) HasStalePremium(now time.Time) bool {
	return !r.PremiumActive(now) && (r.IsPremium || r.PremiumExpiry != nil)
}

// NormalizeStalePremium clears premium fields of a record whose grant is no longer active.
// Tier labels set by administrative or revocation actions are preserved; any other label
// is replaced with TierExpiredOrCleaned. Returns true if the record was changed.
func (r *Record) NormalizeStalePremium(now time.Time) bool {
	if !r.HasStalePremium(now) {
		return false
	}
	r.IsPremium = false
	r.PremiumExpiry = nil
	if !strings.HasPrefix(r.PremiumTier, tierAdminPrefix) && !strings.HasPrefix(r.PremiumTier, tierRevokedPrefix) {
		r.PremiumTier = TierExpiredOrCleaned
	}
	return true
}

// DownloadsOn returns the counted downloads for the given day; a stale date counts as zero.
func (r *Record) DownloadsOn(day string) int {
	if r.LastDownloadDate != day {
		return 0
	}
	return r.DailyDownloadsCount
}

// HadPremium reports whether the tier label records a past purchase or grant
// rather than a cleanup or revocation marker.
func (r *Record) HadPremium() bool {
	switch r.PremiumTier {
	case "", TierAdminRevoked, TierRevokedBanned, TierExpiredOrCleaned:
		return false
	}
	return true
}

// ClearPending drops the in-flight request context.
func (r *Record) ClearPending() {
	r.PendingURL = ""
	r.PendingReplyTarget = 0
}
