package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamStartPending re-reads entries delivered to this consumer but never acknowledged.
const StreamStartPending = "0"

// StreamStartNew reads entries never delivered to any consumer of the group.
const StreamStartNew = ">"

// StreamClaimStart begins an XAUTOCLAIM scan; it is also the cursor returned
// when the scan is complete.
const StreamClaimStart = "0-0"

// StreamEntry is a single stream record.
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// StreamReadArgs selects a consumer-group read.
type StreamReadArgs struct {
	Stream   string
	Group    string
	Consumer string
	Start    string
	Count    int64
}

// Append adds a record to stream and returns its id.
func (c *Client) Append(ctx context.Context, stream string, values map[string]any) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
}

// EnsureGroup creates the consumer group (and the stream) when missing.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	err := c.store.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup returns up to args.Count entries without blocking.
func (c *Client) ReadGroup(ctx context.Context, args StreamReadArgs) ([]StreamEntry, error) {
	if c.store == nil {
		return nil, errors.New("redis client not initialized")
	}
	start := args.Start
	if start == "" {
		start = StreamStartNew
	}
	streams, err := c.store.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  []string{args.Stream, start},
		Count:    args.Count,
		Block:    -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", args.Stream, err)
	}

	var entries []StreamEntry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			entries = append(entries, StreamEntry{ID: msg.ID, Values: stringValues(msg.Values)})
		}
	}
	return entries, nil
}

// StreamClaimArgs selects idle pending entries to move to Consumer.
type StreamClaimArgs struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
	Start    string
	Count    int64
}

// Claim transfers entries pending longer than args.MinIdle, under any consumer
// of the group, to args.Consumer. The returned cursor is "0-0" once the
// pending list has been scanned to the end.
func (c *Client) Claim(ctx context.Context, args StreamClaimArgs) ([]StreamEntry, string, error) {
	if c.store == nil {
		return nil, "", errors.New("redis client not initialized")
	}
	start := args.Start
	if start == "" {
		start = StreamClaimStart
	}
	msgs, next, err := c.store.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   args.Stream,
		Group:    args.Group,
		Consumer: args.Consumer,
		MinIdle:  args.MinIdle,
		Start:    start,
		Count:    args.Count,
	}).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim %s: %w", args.Stream, err)
	}
	entries := make([]StreamEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, StreamEntry{ID: msg.ID, Values: stringValues(msg.Values)})
	}
	return entries, next, nil
}

// Ack acknowledges processed entries for group.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	if len(ids) == 0 {
		return nil
	}
	return c.store.XAck(ctx, stream, group, ids...).Err()
}

func stringValues(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch typed := v.(type) {
		case string:
			out[k] = typed
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(typed)
		}
	}
	return out
}
