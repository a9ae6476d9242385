// Package dispatch sends initial and final-offer requests to carriers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/metrics"
)

var (
	errMailerNotConfigured  = errors.New("email channel not configured")
	errPricingNotConfigured = errors.New("api channel not configured")
)

// Result is the immediate outcome of a request. Resolved is false while the
// carrier still owes an asynchronous reply; a resolved result with a null
// price is a definitive decline.
type Result struct {
	Resolved bool
	Price    decimal.NullDecimal
}

type dispatchRecorder interface {
	IncDispatch(kind, channel, outcome string)
}

// Options wires a Dispatcher.
type Options struct {
	Mailer      Mailer
	Pricing     *PricingClient
	CompanyName string
	Timeout     time.Duration
	Metrics     dispatchRecorder
	Logger      *logger.Logger
}

// Dispatcher routes requests to the carrier's configured channel.
type Dispatcher struct {
	mailer  Mailer
	pricing *PricingClient
	company string
	timeout time.Duration
	metrics dispatchRecorder
	logg    *logger.Logger
}

func NewDispatcher(opts Options) *Dispatcher {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Dispatcher{
		mailer:  opts.Mailer,
		pricing: opts.Pricing,
		company: opts.CompanyName,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logg:    logg,
	}
}

// RequestQuote sends the initial request for shipment to carrier.
func (d *Dispatcher) RequestQuote(ctx context.Context, carrier carriers.Carrier, shipment models.Shipment) (Result, error) {
	return d.send(ctx, enums.QuoteTypeInitial, carrier, shipment.ID, func(ctx context.Context) (Result, error) {
		switch carrier.Channel {
		case enums.CarrierChannelAPI:
			if d.pricing == nil {
				return Result{}, errPricingNotConfigured
			}
			price, err := d.pricing.Quote(ctx, carrier, shipment)
			if err != nil {
				return Result{}, err
			}
			return Result{Resolved: true, Price: price}, nil
		default:
			if d.mailer == nil {
				return Result{}, errMailerNotConfigured
			}
			return Result{}, d.mailer.Send(ctx, carrier.Email, shipment.ID, RenderQuoteRequest(d.company, shipment))
		}
	})
}

// RequestFinalOffer asks carrier to beat benchmark.
func (d *Dispatcher) RequestFinalOffer(ctx context.Context, carrier carriers.Carrier, shipment models.Shipment, benchmark decimal.Decimal) (Result, error) {
	return d.send(ctx, enums.QuoteTypeFinal, carrier, shipment.ID, func(ctx context.Context) (Result, error) {
		switch carrier.Channel {
		case enums.CarrierChannelAPI:
			if d.pricing == nil {
				return Result{}, errPricingNotConfigured
			}
			price, err := d.pricing.FinalOffer(ctx, carrier, shipment, benchmark)
			if err != nil {
				return Result{}, err
			}
			return Result{Resolved: true, Price: price}, nil
		default:
			if d.mailer == nil {
				return Result{}, errMailerNotConfigured
			}
			return Result{}, d.mailer.Send(ctx, carrier.Email, shipment.ID, RenderFinalOfferRequest(d.company, shipment, benchmark))
		}
	})
}

func (d *Dispatcher) send(ctx context.Context, kind enums.QuoteType, carrier carriers.Carrier, shipmentID int64, fn func(context.Context) (Result, error)) (Result, error) {
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	result, err := fn(callCtx)
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"shipment_id": shipmentID,
		"carrier":     carrier.Name,
		"channel":     string(carrier.Channel),
		"quote_type":  string(kind),
	})
	if err != nil {
		d.record(kind, carrier, metrics.DispatchOutcomeError)
		return Result{}, fmt.Errorf("dispatch %s request to %s: %w", kind, carrier.Name, err)
	}
	if result.Resolved {
		d.record(kind, carrier, metrics.DispatchOutcomeResolved)
		d.logg.Info(logCtx, "carrier priced synchronously")
		return result, nil
	}
	d.record(kind, carrier, metrics.DispatchOutcomeSent)
	d.logg.Info(logCtx, "request sent")
	return result, nil
}

func (d *Dispatcher) record(kind enums.QuoteType, carrier carriers.Carrier, outcome string) {
	if d.metrics != nil {
		d.metrics.IncDispatch(string(kind), string(carrier.Channel), outcome)
	}
}
