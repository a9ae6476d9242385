package shipments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/outbox"
	"github.com/angelmondragon/freightbid-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Ledger wraps the repository with the transactional writes that end a
// shipment's lifecycle.
type Ledger struct {
	repo   Repository
	tx     txRunner
	events eventEmitter
	logg   *logger.Logger
}

// NewLedger wires a ledger. events may be nil when no outbox is configured.
func NewLedger(repo Repository, tx txRunner, events eventEmitter, logg *logger.Logger) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{repo: repo, tx: tx, events: events, logg: logg}, nil
}

// Repository exposes the non-transactional reads and writes.
func (l *Ledger) Repository() Repository {
	return l.repo
}

// Complete moves the shipment from c.From into complete, recording the winner
// exactly once and queuing the completion event in the same transaction.
// It returns false when another caller already moved the shipment.
func (l *Ledger) Complete(ctx context.Context, shipment *models.Shipment, c Completion) (bool, error) {
	if shipment == nil {
		return false, fmt.Errorf("shipment required")
	}
	if c.Winner == "" {
		return false, fmt.Errorf("winner required")
	}

	completedAt := time.Now().UTC()
	updates := map[string]any{
		"final_winner": c.Winner,
		"final_price":  c.Price,
		"completed_at": completedAt,
	}
	if c.Leader != nil {
		updates["leader_carrier"] = c.Leader.CarrierName
		updates["leader_price"] = c.Leader.Price
	}
	if c.FinalCount != nil {
		updates["expected_final_offers"] = *c.FinalCount
	}

	won := false
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := l.repo.WithTx(tx).Transition(ctx, shipment.ID, c.From, enums.ShipmentStatusComplete, updates)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true
		if l.events == nil {
			return nil
		}
		return l.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentCompleted,
			AggregateType: enums.AggregateShipment,
			AggregateID:   strconv.FormatInt(shipment.ID, 10),
			OccurredAt:    completedAt,
			Data:          completedEvent(shipment, c, completedAt),
		})
	})
	if err != nil {
		return false, fmt.Errorf("complete shipment %d: %w", shipment.ID, err)
	}
	if !won {
		return false, nil
	}

	shipment.Status = enums.ShipmentStatusComplete
	winner := c.Winner
	shipment.FinalWinner = &winner
	shipment.FinalPrice = c.Price
	shipment.CompletedAt = &completedAt

	logCtx := l.logg.WithFields(ctx, map[string]any{
		"shipment_id":  shipment.ID,
		"final_winner": c.Winner,
		"outcome":      string(c.Outcome),
	})
	if c.Price.Valid {
		logCtx = l.logg.WithField(logCtx, "final_price", c.Price.Decimal.StringFixed(2))
	}
	l.logg.Info(logCtx, "shipment completed")
	return true, nil
}

func completedEvent(shipment *models.Shipment, c Completion, completedAt time.Time) payloads.ShipmentCompletedEvent {
	event := payloads.ShipmentCompletedEvent{
		ShipmentID:     shipment.ID,
		DestinationZIP: shipment.DestinationZIP,
		Outcome:        string(c.Outcome),
		FinalWinner:    c.Winner,
		FinalPrice:     nullablePrice(c.Price),
		CompletedAt:    completedAt,
	}
	switch {
	case c.Leader != nil:
		carrier := c.Leader.CarrierName
		event.LeaderCarrier = &carrier
		event.LeaderPrice = nullablePrice(c.Leader.Price)
	case shipment.LeaderCarrier != nil:
		event.LeaderCarrier = shipment.LeaderCarrier
		event.LeaderPrice = nullablePrice(shipment.LeaderPrice)
	}
	return event
}
