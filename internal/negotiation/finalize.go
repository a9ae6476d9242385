package negotiation

import (
	"context"
	"fmt"

	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Finalize completes negotiating shipments once every carrier asked to beat
// the leader has answered.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	return walk(ctx, o.batch, o.inStatus(enums.ShipmentStatusAwaitingFinalOffers), func(shipment models.Shipment) error {
		if err := o.finalizeOne(ctx, &shipment); err != nil {
			o.logg.Error(o.shipmentCtx(ctx, shipment), "failed to finalize shipment", err)
			return fmt.Errorf("finalize shipment %d: %w", shipment.ID, err)
		}
		return nil
	})
}

// round is the negotiation state derived from the ledger: the Phase B leader,
// the carriers asked to beat it, and how many answers are expected.
type round struct {
	leader   models.Quote
	targets  map[string]struct{}
	expected int
}

func (o *Orchestrator) negotiationRound(shipment models.Shipment, quotes []models.Quote) (round, bool) {
	initial := receivedBids(quotes, enums.QuoteTypeInitial, nil)
	leader, ok := initial.best()
	if shipment.LeaderCarrier != nil && shipment.LeaderPrice.Valid {
		leader = models.Quote{CarrierName: *shipment.LeaderCarrier, Price: shipment.LeaderPrice}
		for _, q := range initial {
			if q.CarrierName == *shipment.LeaderCarrier {
				leader.ID = q.ID
				break
			}
		}
		ok = true
	}
	if !ok {
		return round{}, false
	}
	targets := initial.above(leader)
	expected := len(targets)
	if shipment.ExpectedFinalOffers != nil {
		expected = *shipment.ExpectedFinalOffers
	}
	return round{leader: leader, targets: targets.carrierSet(), expected: expected}, true
}

func (o *Orchestrator) finalizeOne(ctx context.Context, shipment *models.Shipment) error {
	quotes, err := o.store.ListQuotes(ctx, shipment.ID)
	if err != nil {
		return err
	}
	r, ok := o.negotiationRound(*shipment, quotes)
	if !ok {
		// No received initial bid can only mean the ledger was edited by hand.
		return o.complete(ctx, shipment, shipments.Completion{
			From:    enums.ShipmentStatusAwaitingFinalOffers,
			Winner:  shipments.WinnerNoBids,
			Outcome: shipments.OutcomeNoBids,
		})
	}
	if countTerminal(quotes, enums.QuoteTypeFinal, r.targets) < r.expected {
		return nil
	}

	completion := shipments.Completion{
		From:    enums.ShipmentStatusAwaitingFinalOffers,
		Winner:  r.leader.CarrierName,
		Price:   r.leader.Price,
		Outcome: shipments.OutcomeLeaderHeld,
	}
	if best, ok := receivedBids(quotes, enums.QuoteTypeFinal, r.targets).best(); ok && best.Price.Decimal.LessThan(r.leader.Price.Decimal) {
		completion.Winner = best.CarrierName
		completion.Price = best.Price
		completion.Outcome = shipments.OutcomeBeaten
	}
	return o.complete(ctx, shipment, completion)
}
