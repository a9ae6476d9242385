package replies

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

const defaultDrainWindow = 5 * time.Second

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// PubSubFeed drains a Pub/Sub subscription for a bounded window each cycle.
// Message data is a JSON encoded Message.
type PubSubFeed struct {
	sub    receiver
	window time.Duration
	logg   *logger.Logger
}

// NewPubSubFeed wraps a subscriber. Callbacks are serialized so the
// reconciler sees one reply at a time.
func NewPubSubFeed(sub *pubsub.Subscriber, window time.Duration, logg *logger.Logger) (*PubSubFeed, error) {
	if sub == nil {
		return nil, fmt.Errorf("reply subscription required")
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	return newPubSubFeed(sub, window, logg), nil
}

func newPubSubFeed(sub receiver, window time.Duration, logg *logger.Logger) *PubSubFeed {
	if window <= 0 {
		window = defaultDrainWindow
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &PubSubFeed{sub: sub, window: window, logg: logg}
}

func (f *PubSubFeed) Drain(ctx context.Context, handle Handler) error {
	drainCtx, cancel := context.WithTimeout(ctx, f.window)
	defer cancel()

	err := f.sub.Receive(drainCtx, func(ctx context.Context, msg *pubsub.Message) {
		if f.deliver(ctx, msg.ID, msg.Data, handle) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && ctx.Err() == nil && drainCtx.Err() == nil {
		return fmt.Errorf("receive replies: %w", err)
	}
	return nil
}

// deliver reports whether the message should be acknowledged. Undecodable
// payloads are acknowledged since redelivery cannot fix them.
func (f *PubSubFeed) deliver(ctx context.Context, id string, data []byte, handle Handler) bool {
	logCtx := f.logg.WithField(ctx, "message_id", id)
	msg, err := decodeMessage(data)
	if err != nil {
		f.logg.Error(logCtx, "dropping undecodable reply", err)
		return true
	}
	if msg.ID == "" {
		msg.ID = id
	}
	if err := handle(ctx, msg); err != nil {
		f.logg.Warn(logCtx, "reply nacked for redelivery")
		return false
	}
	return true
}
