package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/metrics"
)

type sentMail struct {
	to         string
	shipmentID int64
	msg        Message
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to string, shipmentID int64, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, shipmentID: shipmentID, msg: msg})
	return nil
}

type recordedDispatch struct {
	kind, channel, outcome string
}

type fakeRecorder struct {
	calls []recordedDispatch
}

func (f *fakeRecorder) IncDispatch(kind, channel, outcome string) {
	f.calls = append(f.calls, recordedDispatch{kind: kind, channel: channel, outcome: outcome})
}

func testShipment() models.Shipment {
	return models.Shipment{ID: 11, Spots: 2, Weight: decimal.NewFromInt(800), DestinationZIP: "73301"}
}

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
}

func TestRequestQuoteByEmailIsPending(t *testing.T) {
	mailer := &fakeMailer{}
	recorder := &fakeRecorder{}
	d := NewDispatcher(Options{Mailer: mailer, CompanyName: "Freight Desk", Metrics: recorder})

	carrier := carriers.Carrier{Name: "Budget Freight", Email: "quotes@budget.example", Channel: enums.CarrierChannelEmail}
	result, err := d.RequestQuote(context.Background(), carrier, testShipment())
	require.NoError(t, err)
	assert.False(t, result.Resolved)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "quotes@budget.example", mailer.sent[0].to)
	assert.Equal(t, "Quote Request - Shipment #11", mailer.sent[0].msg.Subject)
	assert.Equal(t, []recordedDispatch{{kind: "initial", channel: "email", outcome: metrics.DispatchOutcomeSent}}, recorder.calls)
}

func TestRequestFinalOfferEmailFailureIsError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	recorder := &fakeRecorder{}
	d := NewDispatcher(Options{Mailer: mailer, Metrics: recorder})

	carrier := carriers.Carrier{Name: "Budget Freight", Email: "quotes@budget.example", Channel: enums.CarrierChannelEmail}
	_, err := d.RequestFinalOffer(context.Background(), carrier, testShipment(), decimal.NewFromInt(420))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Equal(t, []recordedDispatch{{kind: "final", channel: "email", outcome: metrics.DispatchOutcomeError}}, recorder.calls)
}

func TestRequestQuoteByAPIResolves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quotes", r.URL.Path)
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "73301", body["destination_zip"])
		_, _ = w.Write([]byte(`{"price": 512.499}`))
	}))
	defer srv.Close()

	d := NewDispatcher(Options{Pricing: NewPricingClient(WithPricingHTTPClient(srv.Client()), WithRetryBackoff(fastBackoff))})
	carrier := carriers.Carrier{Name: "Regional Pro", Channel: enums.CarrierChannelAPI, Endpoint: srv.URL, APIKey: "k-1"}

	result, err := d.RequestQuote(context.Background(), carrier, testShipment())
	require.NoError(t, err)
	assert.True(t, result.Resolved)
	require.True(t, result.Price.Valid)
	assert.True(t, result.Price.Decimal.Equal(decimal.RequireFromString("512.5")))
}

func TestRequestFinalOfferByAPIDecline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/final-offers", r.URL.Path)
		_, _ = w.Write([]byte(`{"price": null}`))
	}))
	defer srv.Close()

	d := NewDispatcher(Options{Pricing: NewPricingClient(WithRetryBackoff(fastBackoff))})
	carrier := carriers.Carrier{Name: "Regional Pro", Channel: enums.CarrierChannelAPI, Endpoint: srv.URL}

	result, err := d.RequestFinalOffer(context.Background(), carrier, testShipment(), decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.True(t, result.Resolved)
	assert.False(t, result.Price.Valid)
}

func TestRequestQuoteByAPIOutOfRangePriceIsDecline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price": 99999999999}`))
	}))
	defer srv.Close()

	d := NewDispatcher(Options{Pricing: NewPricingClient(WithRetryBackoff(fastBackoff))})
	carrier := carriers.Carrier{Name: "Regional Pro", Channel: enums.CarrierChannelAPI, Endpoint: srv.URL}

	result, err := d.RequestQuote(context.Background(), carrier, testShipment())
	require.NoError(t, err)
	assert.True(t, result.Resolved)
	assert.False(t, result.Price.Valid)
}

func TestPricingClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"price": 300}`))
	}))
	defer srv.Close()

	client := NewPricingClient(WithRetryBackoff(fastBackoff))
	carrier := carriers.Carrier{Name: "Regional Pro", Channel: enums.CarrierChannelAPI, Endpoint: srv.URL}

	price, err := client.Quote(context.Background(), carrier, testShipment())
	require.NoError(t, err)
	require.True(t, price.Valid)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPricingClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewPricingClient(WithRetryBackoff(fastBackoff))
	carrier := carriers.Carrier{Name: "Regional Pro", Channel: enums.CarrierChannelAPI, Endpoint: srv.URL}

	_, err := client.Quote(context.Background(), carrier, testShipment())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnconfiguredChannelsFail(t *testing.T) {
	d := NewDispatcher(Options{})
	_, err := d.RequestQuote(context.Background(), carriers.Carrier{Name: "A", Channel: enums.CarrierChannelEmail, Email: "a@b.example"}, testShipment())
	require.ErrorIs(t, err, errMailerNotConfigured)

	_, err = d.RequestQuote(context.Background(), carriers.Carrier{Name: "B", Channel: enums.CarrierChannelAPI, Endpoint: "http://x"}, testShipment())
	require.ErrorIs(t, err, errPricingNotConfigured)
}
