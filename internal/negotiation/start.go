package negotiation

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Start claims quoting shipments and requests initial quotes from every
// carrier, then finishes any claim a previous cycle left half dispatched.
func (o *Orchestrator) Start(ctx context.Context) error {
	errs := walk(ctx, o.batch, o.inStatus(enums.ShipmentStatusQuoting), func(shipment models.Shipment) error {
		logCtx := o.shipmentCtx(ctx, shipment)

		won, err := o.store.Transition(ctx, shipment.ID, enums.ShipmentStatusQuoting, enums.ShipmentStatusAwaitingInitialQuotes, nil)
		if err != nil {
			o.logg.Error(logCtx, "failed to claim shipment", err)
			return fmt.Errorf("claim shipment %d: %w", shipment.ID, err)
		}
		if !won {
			o.logg.Debug(logCtx, "shipment claimed elsewhere")
			return nil
		}
		shipment.Status = enums.ShipmentStatusAwaitingInitialQuotes
		o.logg.Info(logCtx, "shipment claimed for quoting")
		return o.requestInitialQuotes(ctx, shipment)
	})

	names := o.dir.Names()
	partial := func(ctx context.Context, afterID int64, limit int) ([]models.Shipment, error) {
		rows, err := o.store.FindMissingInitialQuotes(ctx, names, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("load partially started shipments: %w", err)
		}
		return rows, nil
	}
	return multierr.Append(errs, walk(ctx, o.batch, partial, func(shipment models.Shipment) error {
		o.logg.Warn(o.shipmentCtx(ctx, shipment), "resuming partially started shipment")
		return o.requestInitialQuotes(ctx, shipment)
	}))
}

// requestInitialQuotes sends to carriers that still lack an initial row. The
// insert-if-absent placeholder gates the send, so concurrent or repeated runs
// dispatch at most once per carrier.
func (o *Orchestrator) requestInitialQuotes(ctx context.Context, shipment models.Shipment) error {
	var errs error
	for _, carrier := range o.dir.All() {
		carrierCtx := o.logg.WithCarrier(o.shipmentCtx(ctx, shipment), carrier.Name)

		inserted, err := o.store.CreatePendingQuote(ctx, shipment.ID, carrier.Name, enums.QuoteTypeInitial)
		if err != nil {
			o.logg.Error(carrierCtx, "failed to create quote placeholder", err)
			errs = multierr.Append(errs, fmt.Errorf("shipment %d carrier %s: %w", shipment.ID, carrier.Name, err))
			continue
		}
		if !inserted {
			continue
		}

		result, err := o.dispatcher.RequestQuote(ctx, carrier, shipment)
		if err != nil {
			if markErr := o.dispatchFailed(carrierCtx, shipment, carrier.Name, enums.QuoteTypeInitial, err); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			continue
		}
		if !result.Resolved {
			continue
		}
		if _, err := o.store.RecordInitialReply(ctx, shipment.ID, carrier.Name, replyOutcome(result, o.now())); err != nil {
			o.logg.Error(carrierCtx, "failed to record synchronous quote", err)
			errs = multierr.Append(errs, fmt.Errorf("shipment %d carrier %s: %w", shipment.ID, carrier.Name, err))
		}
	}
	return errs
}
