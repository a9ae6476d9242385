package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

// Reaper force-completes shipments that have waited on carriers past the
// staleness horizon.
type Reaper struct {
	store     Store
	completer Completer
	horizon   time.Duration
	batch     int
	metrics   completionRecorder
	logg      *logger.Logger
	now       func() time.Time
	// negotiation derives the best known price for shipments in negotiation.
	negotiation *Orchestrator
}

// NewReaper builds a reaper that shares the orchestrator's ledger view.
func NewReaper(o *Orchestrator, horizon time.Duration) (*Reaper, error) {
	if o == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("staleness horizon must be positive")
	}
	return &Reaper{
		store:       o.store,
		completer:   o.completer,
		horizon:     horizon,
		batch:       o.batch,
		metrics:     o.metrics,
		logg:        o.logg,
		now:         o.now,
		negotiation: o,
	}, nil
}

func (r *Reaper) Run(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.horizon)
	stale := func(ctx context.Context, afterID int64, limit int) ([]models.Shipment, error) {
		rows, err := r.store.FindStale(ctx, cutoff, enums.AwaitingShipmentStatuses, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("load stale shipments: %w", err)
		}
		return rows, nil
	}
	return walk(ctx, r.batch, stale, func(shipment models.Shipment) error {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"shipment_id":  shipment.ID,
			"status":       string(shipment.Status),
			"requested_at": shipment.RequestedAt.UTC().Format(time.RFC3339),
		})

		price, err := r.bestKnownPrice(ctx, shipment)
		if err != nil {
			r.logg.Error(logCtx, "failed to price stale shipment", err)
			return fmt.Errorf("reap shipment %d: %w", shipment.ID, err)
		}
		won, err := r.completer.Complete(ctx, &shipment, shipments.Completion{
			From:    shipment.Status,
			Winner:  shipments.WinnerTimedOut,
			Price:   price,
			Outcome: shipments.OutcomeTimedOut,
		})
		if err != nil {
			r.logg.Error(logCtx, "failed to time out shipment", err)
			return fmt.Errorf("reap shipment %d: %w", shipment.ID, err)
		}
		if won {
			if r.metrics != nil {
				r.metrics.IncCompleted(string(shipments.OutcomeTimedOut))
			}
			r.logg.Warn(logCtx, "shipment timed out")
		}
		return nil
	})
}

// bestKnownPrice is the lowest of the leader and any received final offer for
// shipments in negotiation; shipments still gathering initial quotes have none.
func (r *Reaper) bestKnownPrice(ctx context.Context, shipment models.Shipment) (decimal.NullDecimal, error) {
	if shipment.Status != enums.ShipmentStatusAwaitingFinalOffers {
		return decimal.NullDecimal{}, nil
	}
	quotes, err := r.store.ListQuotes(ctx, shipment.ID)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	round, ok := r.negotiation.negotiationRound(shipment, quotes)
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	price := round.leader.Price
	if best, ok := receivedBids(quotes, enums.QuoteTypeFinal, round.targets).best(); ok && best.Price.Decimal.LessThan(price.Decimal) {
		price = best.Price
	}
	return price, nil
}
