package replies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/internal/dispatch"
	"github.com/angelmondragon/freightbid-backend/internal/pricing"
	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/metrics"
)

const unknownQuoteType = "unknown"

type ledger interface {
	FindByID(ctx context.Context, id int64) (*models.Shipment, error)
	RecordInitialReply(ctx context.Context, shipmentID int64, carrier string, outcome shipments.ReplyOutcome) (bool, error)
	RecordFinalReply(ctx context.Context, shipmentID int64, carrier string, outcome shipments.ReplyOutcome) (bool, error)
}

type senderDirectory interface {
	ResolveSender(from string) (carriers.Carrier, bool)
}

type replyRecorder interface {
	IncReply(quoteType, outcome string)
}

// Reconciler matches replies to (shipment, carrier, quote type) and writes
// the outcome. Unmatchable replies are consumed; storage failures are not.
type Reconciler struct {
	feed    Feed
	ledger  ledger
	dir     senderDirectory
	oracle  pricing.Oracle
	metrics replyRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// ReconcilerOptions wires a Reconciler.
type ReconcilerOptions struct {
	Feed      Feed
	Ledger    ledger
	Directory senderDirectory
	Oracle    pricing.Oracle
	Metrics   replyRecorder
	Logger    *logger.Logger
}

func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Feed == nil {
		return nil, fmt.Errorf("reply feed required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if opts.Directory == nil {
		return nil, fmt.Errorf("carrier directory required")
	}
	if opts.Oracle == nil {
		return nil, fmt.Errorf("price oracle required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Reconciler{
		feed:    opts.Feed,
		ledger:  opts.Ledger,
		dir:     opts.Directory,
		oracle:  opts.Oracle,
		metrics: opts.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Run drains the feed once.
func (r *Reconciler) Run(ctx context.Context) error {
	return r.feed.Drain(ctx, r.Handle)
}

// Handle processes one reply. It returns an error only when the reply should
// be redelivered.
func (r *Reconciler) Handle(ctx context.Context, msg Message) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"from":       msg.From,
	})

	carrier, ok := r.dir.ResolveSender(msg.From)
	if !ok {
		r.discard(logCtx, unknownQuoteType, "reply from unknown sender discarded")
		return nil
	}
	logCtx = r.logg.WithCarrier(logCtx, carrier.Name)

	shipmentID, ok := dispatch.ParseReference(msg.Subject)
	if !ok {
		r.discard(logCtx, unknownQuoteType, "reply without shipment reference discarded")
		return nil
	}
	logCtx = r.logg.WithShipmentID(logCtx, shipmentID)

	quoteType, ok := dispatch.ClassifySubject(msg.Subject)
	if !ok {
		r.discard(logCtx, unknownQuoteType, "reply subject matches no request template")
		return nil
	}
	logCtx = r.logg.WithField(logCtx, "quote_type", string(quoteType))

	if _, err := r.ledger.FindByID(ctx, shipmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.discard(logCtx, string(quoteType), "reply references unknown shipment")
			return nil
		}
		r.record(string(quoteType), metrics.ReplyOutcomeError)
		r.logg.Error(logCtx, "failed to load shipment for reply", err)
		return err
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}
	outcome := shipments.ReplyOutcome{
		Price:      r.oracle.Extract(ctx, pricing.StripQuoted(msg.Body)),
		ReceivedAt: receivedAt.UTC(),
	}

	var applied bool
	var err error
	switch quoteType {
	case enums.QuoteTypeInitial:
		applied, err = r.ledger.RecordInitialReply(ctx, shipmentID, carrier.Name, outcome)
	default:
		applied, err = r.ledger.RecordFinalReply(ctx, shipmentID, carrier.Name, outcome)
	}
	if err != nil {
		r.record(string(quoteType), metrics.ReplyOutcomeError)
		r.logg.Error(logCtx, "failed to record reply", err)
		return err
	}

	if !applied {
		r.record(string(quoteType), metrics.ReplyOutcomeDuplicate)
		r.logg.Info(logCtx, "reply already recorded")
		return nil
	}

	if outcome.Price.Valid {
		r.record(string(quoteType), metrics.ReplyOutcomeReceived)
		r.logg.Info(r.logg.WithField(logCtx, "price", outcome.Price.Decimal.StringFixed(2)), "reply recorded")
		return nil
	}
	r.record(string(quoteType), metrics.ReplyOutcomeFailed)
	r.logg.Warn(logCtx, "reply carried no usable price")
	return nil
}

func (r *Reconciler) discard(ctx context.Context, quoteType, msg string) {
	r.record(quoteType, metrics.ReplyOutcomeUnmatched)
	r.logg.Warn(ctx, msg)
}

func (r *Reconciler) record(quoteType, outcome string) {
	if r.metrics != nil {
		r.metrics.IncReply(quoteType, outcome)
	}
}
