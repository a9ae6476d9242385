package replies

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/redis"
)

const (
	fieldMessageID  = "message_id"
	fieldFrom       = "from"
	fieldSubject    = "subject"
	fieldBody       = "body"
	fieldReceivedAt = "received_at"

	defaultStreamBatch = 100
	defaultClaimIdle   = 15 * time.Minute
	maxBatchesPerDrain = 50
)

type streamStore interface {
	Append(ctx context.Context, stream string, values map[string]any) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, args redis.StreamReadArgs) ([]redis.StreamEntry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Claim(ctx context.Context, args redis.StreamClaimArgs) ([]redis.StreamEntry, string, error)
}

// RedisStreamFeed reads replies from a Redis stream through a consumer group.
type RedisStreamFeed struct {
	store    streamStore
	stream   string
	group    string
	consumer string
	batch    int
	minIdle  time.Duration
	logg     *logger.Logger
}

// RedisStreamOptions configures a RedisStreamFeed.
type RedisStreamOptions struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int
	// ClaimIdle is how long an entry may sit unacknowledged under another
	// consumer before this one takes it over.
	ClaimIdle time.Duration
}

func NewRedisStreamFeed(store streamStore, opts RedisStreamOptions, logg *logger.Logger) (*RedisStreamFeed, error) {
	if store == nil {
		return nil, fmt.Errorf("redis stream store required")
	}
	if opts.Stream == "" || opts.Group == "" || opts.Consumer == "" {
		return nil, fmt.Errorf("stream, group and consumer are required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultStreamBatch
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = defaultClaimIdle
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisStreamFeed{
		store:    store,
		stream:   opts.Stream,
		group:    opts.Group,
		consumer: opts.Consumer,
		batch:    opts.BatchSize,
		minIdle:  opts.ClaimIdle,
		logg:     logg,
	}, nil
}

// Publish appends a reply to the stream.
func (f *RedisStreamFeed) Publish(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	return f.store.Append(ctx, f.stream, map[string]any{
		fieldMessageID:  msg.ID,
		fieldFrom:       msg.From,
		fieldSubject:    msg.Subject,
		fieldBody:       msg.Body,
		fieldReceivedAt: msg.ReceivedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Drain takes over entries left idle by other consumers, retries everything
// pending under this consumer, then reads new entries until the stream is
// empty. Handler failures stay pending and are reported together after the
// drain.
func (f *RedisStreamFeed) Drain(ctx context.Context, handle Handler) error {
	if err := f.store.EnsureGroup(ctx, f.stream, f.group); err != nil {
		return err
	}
	f.reclaim(ctx)

	var handlerErrs error
	start := redis.StreamStartPending
	for i := 0; i < maxBatchesPerDrain; i++ {
		pending, err := f.read(ctx, start)
		if err != nil {
			return multierr.Append(handlerErrs, err)
		}
		handlerErrs = multierr.Append(handlerErrs, f.process(ctx, pending, handle))
		if len(pending) < f.batch {
			break
		}
		start = pending[len(pending)-1].ID
	}

	for i := 0; i < maxBatchesPerDrain; i++ {
		if err := ctx.Err(); err != nil {
			return multierr.Append(handlerErrs, err)
		}
		entries, err := f.read(ctx, redis.StreamStartNew)
		if err != nil {
			return multierr.Append(handlerErrs, err)
		}
		handlerErrs = multierr.Append(handlerErrs, f.process(ctx, entries, handle))
		if len(entries) < f.batch {
			break
		}
	}
	return handlerErrs
}

// reclaim moves idle entries from any consumer of the group, including names
// of processes that no longer exist, into this consumer's pending list. A
// failed claim is logged; the entries are picked up on a later cycle.
func (f *RedisStreamFeed) reclaim(ctx context.Context) {
	cursor := redis.StreamClaimStart
	for i := 0; i < maxBatchesPerDrain; i++ {
		claimed, next, err := f.store.Claim(ctx, redis.StreamClaimArgs{
			Stream:   f.stream,
			Group:    f.group,
			Consumer: f.consumer,
			MinIdle:  f.minIdle,
			Start:    cursor,
			Count:    int64(f.batch),
		})
		if err != nil {
			f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "failed to claim idle replies")
			return
		}
		if len(claimed) > 0 {
			f.logg.Info(f.logg.WithField(ctx, "claimed", len(claimed)), "claimed idle replies")
		}
		if next == "" || next == redis.StreamClaimStart {
			return
		}
		cursor = next
	}
}

func (f *RedisStreamFeed) read(ctx context.Context, start string) ([]redis.StreamEntry, error) {
	return f.store.ReadGroup(ctx, redis.StreamReadArgs{
		Stream:   f.stream,
		Group:    f.group,
		Consumer: f.consumer,
		Start:    start,
		Count:    int64(f.batch),
	})
}

func (f *RedisStreamFeed) process(ctx context.Context, entries []redis.StreamEntry, handle Handler) error {
	var errs error
	for _, entry := range entries {
		msg := entryMessage(entry)
		logCtx := f.logg.WithFields(ctx, map[string]any{"stream_id": entry.ID, "message_id": msg.ID})
		if err := handle(ctx, msg); err != nil {
			f.logg.Warn(logCtx, "reply left pending for redelivery")
			errs = multierr.Append(errs, fmt.Errorf("stream entry %s: %w", entry.ID, err))
			continue
		}
		if err := f.store.Ack(ctx, f.stream, f.group, entry.ID); err != nil {
			f.logg.Error(logCtx, "failed to acknowledge reply", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func entryMessage(entry redis.StreamEntry) Message {
	msg := Message{
		ID:      entry.Values[fieldMessageID],
		From:    entry.Values[fieldFrom],
		Subject: entry.Values[fieldSubject],
		Body:    entry.Values[fieldBody],
	}
	if msg.ID == "" {
		msg.ID = entry.ID
	}
	if raw := entry.Values[fieldReceivedAt]; raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			msg.ReceivedAt = at
		}
	}
	return msg
}
