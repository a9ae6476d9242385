// Package negotiation drives shipments through quoting, negotiation and
// completion, one level-triggered pass per cycle.
package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/internal/dispatch"
	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

const defaultBatchSize = 200

// Store is the slice of the ledger the orchestrator reads and writes.
type Store interface {
	FindByStatus(ctx context.Context, status enums.ShipmentStatus, afterID int64, limit int) ([]models.Shipment, error)
	FindStale(ctx context.Context, cutoff time.Time, statuses []enums.ShipmentStatus, afterID int64, limit int) ([]models.Shipment, error)
	FindMissingInitialQuotes(ctx context.Context, carriers []string, afterID int64, limit int) ([]models.Shipment, error)
	Transition(ctx context.Context, id int64, from, to enums.ShipmentStatus, updates map[string]any) (bool, error)
	ListQuotes(ctx context.Context, shipmentID int64) ([]models.Quote, error)
	CreatePendingQuote(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType) (bool, error)
	RecordInitialReply(ctx context.Context, shipmentID int64, carrier string, outcome shipments.ReplyOutcome) (bool, error)
	RecordFinalReply(ctx context.Context, shipmentID int64, carrier string, outcome shipments.ReplyOutcome) (bool, error)
	MarkDispatchFailed(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType, cause error) error
}

// Completer performs the single terminal write for a shipment.
type Completer interface {
	Complete(ctx context.Context, shipment *models.Shipment, c shipments.Completion) (bool, error)
}

// Dispatcher contacts carriers.
type Dispatcher interface {
	RequestQuote(ctx context.Context, carrier carriers.Carrier, shipment models.Shipment) (dispatch.Result, error)
	RequestFinalOffer(ctx context.Context, carrier carriers.Carrier, shipment models.Shipment, benchmark decimal.Decimal) (dispatch.Result, error)
}

// Directory is the configured carrier set.
type Directory interface {
	All() []carriers.Carrier
	Names() []string
	Lookup(name string) (carriers.Carrier, bool)
	Len() int
}

type completionRecorder interface {
	IncCompleted(outcome string)
}

// Options wires an Orchestrator.
type Options struct {
	Store      Store
	Completer  Completer
	Dispatcher Dispatcher
	Directory  Directory
	BatchSize  int
	Metrics    completionRecorder
	Logger     *logger.Logger
}

// Orchestrator owns phases A, B and C of the shipment state machine.
type Orchestrator struct {
	store      Store
	completer  Completer
	dispatcher Dispatcher
	dir        Directory
	batch      int
	metrics    completionRecorder
	logg       *logger.Logger
	now        func() time.Time
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("shipment store required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("completer required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if opts.Directory == nil || opts.Directory.Len() == 0 {
		return nil, fmt.Errorf("carrier directory required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Orchestrator{
		store:      opts.Store,
		completer:  opts.Completer,
		dispatcher: opts.Dispatcher,
		dir:        opts.Directory,
		batch:      batch,
		metrics:    opts.Metrics,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// pageLoader returns up to limit shipments with ids above afterID, ascending.
type pageLoader func(ctx context.Context, afterID int64, limit int) ([]models.Shipment, error)

// walk visits every shipment load yields, batch by batch, so shipments that
// stay put do not hide the ones behind them. Visit errors are collected; a
// load error ends the walk.
func walk(ctx context.Context, batch int, load pageLoader, visit func(models.Shipment) error) error {
	var errs error
	var after int64
	for {
		page, err := load(ctx, after, batch)
		if err != nil {
			return multierr.Append(errs, err)
		}
		for _, shipment := range page {
			after = shipment.ID
			errs = multierr.Append(errs, visit(shipment))
		}
		if len(page) < batch {
			return errs
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
	}
}

func (o *Orchestrator) inStatus(status enums.ShipmentStatus) pageLoader {
	return func(ctx context.Context, afterID int64, limit int) ([]models.Shipment, error) {
		rows, err := o.store.FindByStatus(ctx, status, afterID, limit)
		if err != nil {
			return nil, fmt.Errorf("load %s shipments: %w", status, err)
		}
		return rows, nil
	}
}

func (o *Orchestrator) complete(ctx context.Context, shipment *models.Shipment, c shipments.Completion) error {
	won, err := o.completer.Complete(ctx, shipment, c)
	if err != nil {
		return err
	}
	if won && o.metrics != nil {
		o.metrics.IncCompleted(string(c.Outcome))
	}
	return nil
}

func (o *Orchestrator) shipmentCtx(ctx context.Context, shipment models.Shipment) context.Context {
	return o.logg.WithFields(ctx, map[string]any{
		"shipment_id": shipment.ID,
		"status":      string(shipment.Status),
	})
}

func (o *Orchestrator) dispatchFailed(ctx context.Context, shipment models.Shipment, carrier string, kind enums.QuoteType, cause error) error {
	logCtx := o.logg.WithFields(ctx, map[string]any{
		"event":      "dispatch.failed",
		"carrier":    carrier,
		"quote_type": string(kind),
	})
	o.logg.Warn(o.logg.WithField(logCtx, "error", cause.Error()), "carrier request failed; quote left pending")
	return o.store.MarkDispatchFailed(ctx, shipment.ID, carrier, kind, cause)
}

func replyOutcome(result dispatch.Result, at time.Time) shipments.ReplyOutcome {
	return shipments.ReplyOutcome{Price: result.Price, ReceivedAt: at.UTC()}
}
