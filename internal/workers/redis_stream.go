package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	StreamKey     = "bot:updates"
	ConsumerGroup = "bot_update_consumers"

	payloadField  = "update"
	streamMaxLen  = 10000
	readBlock     = 5 * time.Second
	readBatch     = 16
	errorBackoff  = time.Second
	pendingCursor = "0"
	newCursor     = ">"
)

// Dispatcher accepts updates for processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, upd *telegram.Update) error
}

// UpdateStream queues webhook updates in a Redis stream and feeds them to a Dispatcher
// through a consumer group, so several bot replicas can share the load.
type UpdateStream struct {
	rdb      *rplatform.Client
	consumer string
	block    time.Duration
}

func NewUpdateStream(rdb *rplatform.Client, consumer string) *UpdateStream {
	return &UpdateStream{rdb: rdb, consumer: consumer, block: readBlock}
}

// Publish appends a raw update to the stream.
func (s *UpdateStream) Publish(ctx context.Context, payload []byte) error {
	return s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: string(payload)},
	}).Err()
}

// Run consumes the stream until ctx is cancelled. Entries left pending by a previous run of
// this consumer are replayed first. Each entry is acknowledged once handed to d.
func (s *UpdateStream) Run(ctx context.Context, d Dispatcher) error {
	err := s.rdb.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	log.Info().Str("stream", StreamKey).Str("consumer", s.consumer).Msg("Update stream worker started")

	cursor := pendingCursor
	for {
		if ctx.Err() != nil {
			log.Info().Msg("Update stream worker stopped")
			return nil
		}

		streams, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: s.consumer,
			Streams:  []string{StreamKey, cursor},
			Count:    readBatch,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("Failed to read update stream")
			sleep(ctx, errorBackoff)
			continue
		}

		handled := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := s.handle(ctx, d, msg); err != nil {
					// ctx ended while waiting for a dispatch slot; leave the entry pending
					return nil
				}
				handled++
			}
		}
		if cursor == pendingCursor && handled == 0 {
			cursor = newCursor
		}
	}
}

func (s *UpdateStream) handle(ctx context.Context, d Dispatcher, msg goredis.XMessage) error {
	raw, _ := msg.Values[payloadField].(string)
	var upd telegram.Update
	if err := json.Unmarshal([]byte(raw), &upd); err != nil {
		log.Warn().Err(err).Str("entry_id", msg.ID).Msg("Dropping undecodable stream entry")
		s.ack(msg.ID)
		return nil
	}
	if err := d.Dispatch(ctx, &upd); err != nil {
		return err
	}
	s.ack(msg.ID)
	return nil
}

func (s *UpdateStream) ack(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.rdb.XAck(ctx, StreamKey, ConsumerGroup, id).Err(); err != nil {
		log.Error().Err(err).Str("entry_id", id).Msg("Failed to ack stream entry")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
