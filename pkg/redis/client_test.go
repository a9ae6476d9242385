package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightbid-backend/pkg/config"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "k", "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "owner-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "owner-1", value)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	require.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "fb:lock:negotiator:prod", client.LockKey("negotiator", "prod"))
	require.Equal(t, "fb:lock:cycle", client.LockKey("", "cycle"))
	require.Equal(t, "fb:idempotency:POST /api/v1/shipments:abc", client.IdempotencyKey("POST /api/v1/shipments", "abc"))
	require.Equal(t, "fb:rl:replies:10.0.0.1", client.RateLimitKey("replies", "10.0.0.1"))
}

func TestIncrWithTTLSetsExpiryOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, "counter", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, 1, mock.expires["counter"])
}

func TestStreamPendingThenAck(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	require.NoError(t, client.EnsureGroup(ctx, "replies", "negotiator"))
	require.NoError(t, client.EnsureGroup(ctx, "replies", "negotiator"), "existing group is not an error")

	_, err := client.Append(ctx, "replies", map[string]any{"subject": "Quote Request - Shipment #1"})
	require.NoError(t, err)
	_, err = client.Append(ctx, "replies", map[string]any{"subject": "Quote Request - Shipment #2"})
	require.NoError(t, err)

	args := StreamReadArgs{Stream: "replies", Group: "negotiator", Consumer: "c1", Count: 10}
	fresh, err := client.ReadGroup(ctx, args)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	require.Equal(t, "Quote Request - Shipment #1", fresh[0].Values["subject"])

	empty, err := client.ReadGroup(ctx, args)
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, client.Ack(ctx, "replies", "negotiator", fresh[0].ID))

	args.Start = StreamStartPending
	pending, err := client.ReadGroup(ctx, args)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, fresh[1].ID, pending[0].ID)
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7})
	require.NoError(t, err)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
}

type mockCmdable struct {
	data    map[string]string
	groups  map[string]bool
	entries []redis.XMessage
	// delivered tracks entry ids handed out but not yet acknowledged.
	delivered map[string]bool
	cursor    int
	seq       int
	expires   map[string]int
	claims    []redis.XAutoClaimArgs
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:      make(map[string]string),
		groups:    make(map[string]bool),
		delivered: make(map[string]bool),
		expires:   make(map[string]int),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expires[key]++
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	m.seq++
	id := strconv.Itoa(m.seq) + "-0"
	values, _ := a.Values.(map[string]any)
	m.entries = append(m.entries, redis.XMessage{ID: id, Values: values})
	return redis.NewStringResult(id, nil)
}

func (m *mockCmdable) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	key := stream + "/" + group
	if m.groups[key] {
		return redis.NewStatusResult("", errors.New("BUSYGROUP Consumer Group name already exists"))
	}
	m.groups[key] = true
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	var out []redis.XMessage
	if a.Streams[1] == "0" {
		ids := make([]string, 0, len(m.delivered))
		for id := range m.delivered {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			for _, msg := range m.entries {
				if msg.ID == id {
					out = append(out, msg)
				}
			}
		}
	} else {
		for m.cursor < len(m.entries) && int64(len(out)) < a.Count {
			msg := m.entries[m.cursor]
			m.cursor++
			m.delivered[msg.ID] = true
			out = append(out, msg)
		}
		if len(out) == 0 {
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
	}
	return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: a.Streams[0], Messages: out}}, nil)
}

func (m *mockCmdable) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	for _, id := range ids {
		delete(m.delivered, id)
	}
	return redis.NewIntResult(int64(len(ids)), nil)
}

// XAutoClaim hands every delivered entry to the caller; idle time is not tracked.
func (m *mockCmdable) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	m.claims = append(m.claims, *a)
	var out []redis.XMessage
	for _, msg := range m.entries {
		if m.delivered[msg.ID] {
			out = append(out, msg)
		}
	}
	cmd := redis.NewXAutoClaimCmd(ctx)
	cmd.SetVal(out, StreamClaimStart)
	return cmd
}

func TestClaimForwardsIdleWindow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	_, err := client.Append(ctx, "replies", map[string]any{"subject": "Final Offer Request - Shipment #3"})
	require.NoError(t, err)
	_, err = client.ReadGroup(ctx, StreamReadArgs{Stream: "replies", Group: "negotiator", Consumer: "old-pod", Count: 10})
	require.NoError(t, err)

	claimed, next, err := client.Claim(ctx, StreamClaimArgs{
		Stream:   "replies",
		Group:    "negotiator",
		Consumer: "new-pod",
		MinIdle:  15 * time.Minute,
		Count:    50,
	})
	require.NoError(t, err)
	require.Equal(t, StreamClaimStart, next)
	require.Len(t, claimed, 1)
	require.Equal(t, "Final Offer Request - Shipment #3", claimed[0].Values["subject"])

	require.Len(t, mock.claims, 1)
	require.Equal(t, "new-pod", mock.claims[0].Consumer)
	require.Equal(t, 15*time.Minute, mock.claims[0].MinIdle)
	require.Equal(t, StreamClaimStart, mock.claims[0].Start)
}
