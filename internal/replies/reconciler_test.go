package replies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/internal/dispatch"
	"github.com/angelmondragon/freightbid-backend/internal/pricing"
	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

type sliceFeed struct {
	messages []Message
	acked    []string
	failed   []string
}

func (f *sliceFeed) Drain(ctx context.Context, handle Handler) error {
	var firstErr error
	for _, msg := range f.messages {
		if err := handle(ctx, msg); err != nil {
			f.failed = append(f.failed, msg.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		f.acked = append(f.acked, msg.ID)
	}
	return firstErr
}

type replyCount struct{ quoteType, outcome string }

type countingRecorder map[replyCount]int

func (c countingRecorder) IncReply(quoteType, outcome string) {
	c[replyCount{quoteType, outcome}]++
}

type fixture struct {
	repo       shipments.Repository
	feed       *sliceFeed
	recorder   countingRecorder
	reconciler *Reconciler
}

func newFixture(t *testing.T, ledgerOverride ledger) *fixture {
	t.Helper()
	dir, err := carriers.New([]carriers.Carrier{
		{Name: "Budget Freight", Email: "quotes@budget.example", Channel: enums.CarrierChannelEmail},
		{Name: "Premium Express", Email: "desk@premium.example", Channel: enums.CarrierChannelEmail},
	})
	require.NoError(t, err)

	repo := shipments.NewRepository(dbtest.Open(t).DB())
	var l ledger = repo
	if ledgerOverride != nil {
		l = ledgerOverride
	}
	feed := &sliceFeed{}
	recorder := countingRecorder{}
	reconciler, err := NewReconciler(ReconcilerOptions{
		Feed:      feed,
		Ledger:    l,
		Directory: dir,
		Oracle:    pricing.Safe(pricing.PatternExtractor{}, nil),
		Metrics:   recorder,
	})
	require.NoError(t, err)
	return &fixture{repo: repo, feed: feed, recorder: recorder, reconciler: reconciler}
}

func (f *fixture) seed(t *testing.T, status enums.ShipmentStatus, pending ...string) *models.Shipment {
	t.Helper()
	ctx := context.Background()
	shipment := &models.Shipment{
		RequestedAt:    time.Now().UTC(),
		Spots:          2,
		Weight:         decimal.NewFromInt(500),
		DestinationZIP: "10001",
		Status:         status,
	}
	require.NoError(t, f.repo.Create(ctx, shipment))
	for _, carrier := range pending {
		_, err := f.repo.CreatePendingQuote(ctx, shipment.ID, carrier, enums.QuoteTypeInitial)
		require.NoError(t, err)
	}
	return shipment
}

func quotesByKey(t *testing.T, repo shipments.Repository, shipmentID int64) map[string]models.Quote {
	t.Helper()
	quotes, err := repo.ListQuotes(context.Background(), shipmentID)
	require.NoError(t, err)
	out := map[string]models.Quote{}
	for _, q := range quotes {
		out[q.CarrierName+"/"+string(q.QuoteType)] = q
	}
	return out
}

func TestReconcilerRecordsInitialReplies(t *testing.T) {
	f := newFixture(t, nil)
	shipment := f.seed(t, enums.ShipmentStatusAwaitingInitialQuotes, "Budget Freight", "Premium Express")

	f.feed.messages = []Message{
		{ID: "m1", From: "Budget Freight <quotes@budget.example>", Subject: "Re: " + dispatch.QuoteRequestSubject(shipment.ID), Body: "Quote: $500.00\n\nOn Mon someone wrote:\n> Quote: $1234.56"},
		{ID: "m2", From: "desk@premium.example", Subject: "RE: " + dispatch.QuoteRequestSubject(shipment.ID), Body: "Sorry, no capacity this week."},
	}
	require.NoError(t, f.reconciler.Run(context.Background()))
	assert.Equal(t, []string{"m1", "m2"}, f.feed.acked)

	quotes := quotesByKey(t, f.repo, shipment.ID)
	budget := quotes["Budget Freight/initial"]
	assert.Equal(t, enums.QuoteStatusReceived, budget.Status)
	assert.True(t, budget.Price.Decimal.Equal(decimal.NewFromInt(500)))

	premium := quotes["Premium Express/initial"]
	assert.Equal(t, enums.QuoteStatusFailed, premium.Status)
	assert.False(t, premium.Price.Valid)

	assert.Equal(t, 1, f.recorder[replyCount{"initial", "received"}])
	assert.Equal(t, 1, f.recorder[replyCount{"initial", "failed"}])
}

func TestReconcilerFinalReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	shipment := f.seed(t, enums.ShipmentStatusAwaitingFinalOffers)

	reply := Message{ID: "f1", From: "quotes@budget.example", Subject: "Re: " + dispatch.FinalOfferRequestSubject(shipment.ID), Body: "Quote: $410"}
	f.feed.messages = []Message{reply, reply}
	require.NoError(t, f.reconciler.Run(context.Background()))
	assert.Equal(t, []string{"f1", "f1"}, f.feed.acked)

	quotes, err := f.repo.ListQuotes(context.Background(), shipment.ID)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, enums.QuoteTypeFinal, quotes[0].QuoteType)
	assert.Equal(t, 1, f.recorder[replyCount{"final", "duplicate"}])
}

func TestReconcilerDiscardsUnmatchedReplies(t *testing.T) {
	f := newFixture(t, nil)
	shipment := f.seed(t, enums.ShipmentStatusAwaitingInitialQuotes, "Budget Freight")

	f.feed.messages = []Message{
		{ID: "u1", From: "spam@nowhere.example", Subject: dispatch.QuoteRequestSubject(shipment.ID), Body: "Quote: $1"},
		{ID: "u2", From: "quotes@budget.example", Subject: "Quote Request", Body: "Quote: $1"},
		{ID: "u3", From: "quotes@budget.example", Subject: "Invoice #" + "12", Body: "Quote: $1"},
		{ID: "u4", From: "quotes@budget.example", Subject: dispatch.QuoteRequestSubject(shipment.ID + 100), Body: "Quote: $1"},
	}
	require.NoError(t, f.reconciler.Run(context.Background()))
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, f.feed.acked)
	assert.Equal(t, 3, f.recorder[replyCount{"unknown", "unmatched"}])
	assert.Equal(t, 1, f.recorder[replyCount{"initial", "unmatched"}])

	quotes := quotesByKey(t, f.repo, shipment.ID)
	assert.Equal(t, enums.QuoteStatusPending, quotes["Budget Freight/initial"].Status)
}

type failingLedger struct {
	ledger
	failFor int64
}

func (l failingLedger) RecordInitialReply(ctx context.Context, shipmentID int64, carrier string, outcome shipments.ReplyOutcome) (bool, error) {
	if shipmentID == l.failFor {
		return false, errors.New("database is locked")
	}
	return l.ledger.RecordInitialReply(ctx, shipmentID, carrier, outcome)
}

func TestReconcilerStorageFailureIsNotAcknowledged(t *testing.T) {
	base := newFixture(t, nil)
	broken := base.seed(t, enums.ShipmentStatusAwaitingInitialQuotes, "Budget Freight")
	healthy := base.seed(t, enums.ShipmentStatusAwaitingInitialQuotes, "Budget Freight")

	reconciler, err := NewReconciler(ReconcilerOptions{
		Feed:      base.feed,
		Ledger:    failingLedger{ledger: base.repo, failFor: broken.ID},
		Directory: base.reconciler.dir,
		Oracle:    pricing.Safe(pricing.PatternExtractor{}, nil),
	})
	require.NoError(t, err)

	base.feed.messages = []Message{
		{ID: "b1", From: "quotes@budget.example", Subject: dispatch.QuoteRequestSubject(broken.ID), Body: "Quote: $300"},
		{ID: "h1", From: "quotes@budget.example", Subject: dispatch.QuoteRequestSubject(healthy.ID), Body: "Quote: $320"},
	}
	require.Error(t, reconciler.Run(context.Background()))
	assert.Equal(t, []string{"b1"}, base.feed.failed)
	assert.Equal(t, []string{"h1"}, base.feed.acked)

	quotes := quotesByKey(t, base.repo, healthy.ID)
	assert.Equal(t, enums.QuoteStatusReceived, quotes["Budget Freight/initial"].Status)
}

func TestNewReconcilerRequiresDependencies(t *testing.T) {
	_, err := NewReconciler(ReconcilerOptions{})
	require.Error(t, err)
}
