package bot

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/fairy-root/media-downloader-bot/internal/metrics"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Handler processes a single update.
type Handler interface {
	HandleUpdate(ctx context.Context, upd *telegram.Update)
}

// Dispatcher runs each update in its own goroutine, at most limit at a time.
// A panicking handler is logged and does not affect other updates.
type Dispatcher struct {
	handler Handler
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

func NewDispatcher(handler Handler, limit int) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	return &Dispatcher{handler: handler, sem: semaphore.NewWeighted(int64(limit))}
}

// Dispatch blocks while limit updates are in flight. It returns ctx.Err() if ctx ends first.
// Handlers run on a context detached from ctx's cancellation so shutdown lets them finish.
func (d *Dispatcher) Dispatch(ctx context.Context, upd *telegram.Update) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.Get().RecordUpdate(upd.Kind())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Int("update_id", upd.UpdateID).
					Int64("user_id", upd.UserID()).
					Str("stack", string(debug.Stack())).
					Msg("Panic in update handler")
			}
		}()
		d.handler.HandleUpdate(context.WithoutCancel(ctx), upd)
	}()
	return nil
}

// Wait blocks until all dispatched updates are handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
