// Package replies drains carrier replies and records them on the ledger.
package replies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is one inbound carrier reply.
type Message struct {
	ID         string    `json:"message_id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Handler processes a message. A nil return lets the feed acknowledge it;
// any error leaves it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Feed yields the replies available right now and returns once drained.
type Feed interface {
	Drain(ctx context.Context, handle Handler) error
}

// Sink accepts replies pushed by an inbound mail webhook.
type Sink interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

var errEmptyMessage = errors.New("reply has neither subject nor body")

// Validate checks the minimum a reply needs to be routed.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return errors.New("reply sender is required")
	}
	if strings.TrimSpace(m.Subject) == "" && strings.TrimSpace(m.Body) == "" {
		return errEmptyMessage
	}
	return nil
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode reply: %w", err)
	}
	return msg, nil
}
