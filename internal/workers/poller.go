package workers

import (
	"context"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	"github.com/rs/zerolog/log"
)

const pollTimeoutSec = 30

// UpdateSource is the getUpdates half of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int, timeoutSec int) ([]telegram.Update, error)
}

// Poller long-polls Telegram and feeds every update to a Dispatcher in order.
type Poller struct {
	source  UpdateSource
	timeout int
	backoff time.Duration
}

func NewPoller(source UpdateSource) *Poller {
	return &Poller{source: source, timeout: pollTimeoutSec, backoff: 3 * time.Second}
}

// Run polls until ctx is cancelled. An update is confirmed to Telegram (via the next offset)
// only after it was handed to d.
func (p *Poller) Run(ctx context.Context, d Dispatcher) error {
	log.Info().Msg("Polling for updates")
	offset := 0
	for ctx.Err() == nil {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn().Err(err).Int("offset", offset).Msg("getUpdates failed")
			sleep(ctx, p.backoff)
			continue
		}
		for i := range updates {
			upd := updates[i]
			if err := d.Dispatch(ctx, &upd); err != nil {
				return nil
			}
			offset = upd.UpdateID + 1
		}
	}
	log.Info().Msg("Polling stopped")
	return nil
}
