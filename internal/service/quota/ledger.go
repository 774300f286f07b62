package quota

import (
	"context"
	"time"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
)

// Ledger is the per-user daily download counter. Days are calendar days in loc.
type Ledger struct {
	users      *usersvc.Service
	limit      int
	loc        *time.Location
	now        func() time.Time
	onRollback func()
}

func NewLedger(users *usersvc.Service, dailyLimit int, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{users: users, limit: dailyLimit, loc: loc, now: time.Now}
}

// OnRollback registers a hook called after each effective rollback.
func (l *Ledger) OnRollback(fn func()) { l.onRollback = fn }

// Limit is the daily allowance.
func (l *Ledger) Limit() int { return l.limit }

// Today is the current quota day.
func (l *Ledger) Today() string {
	return l.now().In(l.loc).Format(domain.DateLayout)
}

// Reserve counts one attempt for today. It returns false, leaving the record untouched
// except for a day rollover reset, when the limit is already reached.
func (l *Ledger) Reserve(ctx context.Context, userID int64) (bool, error) {
	today := l.Today()
	var granted bool
	_, err := l.users.Update(ctx, userID, func(r *domain.Record) (bool, error) {
		changed := false
		if r.LastDownloadDate != today {
			r.LastDownloadDate = today
			r.DailyDownloadsCount = 0
			changed = true
		}
		if r.DailyDownloadsCount >= l.limit {
			return changed, nil
		}
		r.DailyDownloadsCount++
		granted = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// Rollback returns one attempt counted today. It never goes below zero and does nothing
// once the day has rolled over.
func (l *Ledger) Rollback(ctx context.Context, userID int64) error {
	today := l.Today()
	var rolled bool
	_, err := l.users.Update(ctx, userID, func(r *domain.Record) (bool, error) {
		if r.LastDownloadDate != today || r.DailyDownloadsCount <= 0 {
			return false, nil
		}
		r.DailyDownloadsCount--
		rolled = true
		return true, nil
	})
	if err == nil && rolled && l.onRollback != nil {
		l.onRollback()
	}
	return err
}

// Used returns today's counted attempts without writing.
func (l *Ledger) Used(ctx context.Context, userID int64) (int, error) {
	rec, err := l.users.Get(ctx, userID)
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.DownloadsOn(l.Today()), nil
}

// Acquire reserves one attempt and wraps it in a Ticket.
// A nil ticket with a nil error means the daily limit is reached.
func (l *Ledger) Acquire(ctx context.Context, userID int64) (*Ticket, error) {
	ok, err := l.Reserve(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}
	return &Ticket{ledger: l, userID: userID, state: TicketReserved}, nil
}
