package negotiation

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Advance moves shipments whose initial round is fully answered into
// negotiation, or straight to complete when there is nothing to negotiate.
func (o *Orchestrator) Advance(ctx context.Context) error {
	configured := nameSet(o.dir.Names())
	return walk(ctx, o.batch, o.inStatus(enums.ShipmentStatusAwaitingInitialQuotes), func(shipment models.Shipment) error {
		if err := o.advanceOne(ctx, &shipment, configured); err != nil {
			o.logg.Error(o.shipmentCtx(ctx, shipment), "failed to advance shipment", err)
			return fmt.Errorf("advance shipment %d: %w", shipment.ID, err)
		}
		return nil
	})
}

func (o *Orchestrator) advanceOne(ctx context.Context, shipment *models.Shipment, configured map[string]struct{}) error {
	quotes, err := o.store.ListQuotes(ctx, shipment.ID)
	if err != nil {
		return err
	}
	if countTerminal(quotes, enums.QuoteTypeInitial, configured) < len(configured) {
		return nil
	}

	initial := receivedBids(quotes, enums.QuoteTypeInitial, configured)
	leader, ok := initial.best()
	if !ok {
		return o.complete(ctx, shipment, shipments.Completion{
			From:    enums.ShipmentStatusAwaitingInitialQuotes,
			Winner:  shipments.WinnerNoBids,
			Outcome: shipments.OutcomeNoBids,
		})
	}

	targets := initial.above(leader)
	if len(targets) == 0 {
		outcome := shipments.OutcomeLeaderHeld
		if len(initial) == 1 {
			outcome = shipments.OutcomeSoleBid
		}
		zero := 0
		return o.complete(ctx, shipment, shipments.Completion{
			From:       enums.ShipmentStatusAwaitingInitialQuotes,
			Winner:     leader.CarrierName,
			Price:      leader.Price,
			Outcome:    outcome,
			Leader:     &leader,
			FinalCount: &zero,
		})
	}

	won, err := o.store.Transition(ctx, shipment.ID, enums.ShipmentStatusAwaitingInitialQuotes, enums.ShipmentStatusAwaitingFinalOffers, map[string]any{
		"leader_carrier":        leader.CarrierName,
		"leader_price":          leader.Price,
		"expected_final_offers": len(targets),
	})
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	shipment.Status = enums.ShipmentStatusAwaitingFinalOffers

	logCtx := o.logg.WithFields(o.shipmentCtx(ctx, *shipment), map[string]any{
		"leader_carrier": leader.CarrierName,
		"leader_price":   leader.Price.Decimal.StringFixed(2),
		"targets":        len(targets),
	})
	o.logg.Info(logCtx, "negotiation opened")

	return o.requestFinalOffers(ctx, *shipment, leader, targets)
}

func (o *Orchestrator) requestFinalOffers(ctx context.Context, shipment models.Shipment, leader models.Quote, targets bids) error {
	var errs error
	for _, target := range targets {
		carrierCtx := o.logg.WithCarrier(o.shipmentCtx(ctx, shipment), target.CarrierName)

		carrier, ok := o.dir.Lookup(target.CarrierName)
		if !ok {
			o.logg.Warn(carrierCtx, "carrier no longer configured; recording failed final offer")
			if _, err := o.store.RecordFinalReply(ctx, shipment.ID, target.CarrierName, shipments.ReplyOutcome{ReceivedAt: o.now().UTC()}); err != nil {
				errs = multierr.Append(errs, err)
			}
			continue
		}

		inserted, err := o.store.CreatePendingQuote(ctx, shipment.ID, carrier.Name, enums.QuoteTypeFinal)
		if err != nil {
			o.logg.Error(carrierCtx, "failed to create final offer placeholder", err)
			errs = multierr.Append(errs, fmt.Errorf("shipment %d carrier %s: %w", shipment.ID, carrier.Name, err))
			continue
		}
		if !inserted {
			continue
		}

		result, err := o.dispatcher.RequestFinalOffer(ctx, carrier, shipment, leader.Price.Decimal)
		if err != nil {
			if markErr := o.dispatchFailed(carrierCtx, shipment, carrier.Name, enums.QuoteTypeFinal, err); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			continue
		}
		if !result.Resolved {
			continue
		}
		if _, err := o.store.RecordFinalReply(ctx, shipment.ID, carrier.Name, replyOutcome(result, o.now())); err != nil {
			o.logg.Error(carrierCtx, "failed to record synchronous final offer", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
