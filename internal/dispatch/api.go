package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/internal/pricing"
	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
)

const (
	apiRequestTimeout  = 10 * time.Second
	apiMaxRetries      = 2
	apiRetryBase       = 250 * time.Millisecond
	apiErrorBodyLimit  = 1024
	apiResponseMaxSize = 1 << 16
)

// PricingClient calls carriers that price synchronously over HTTP.
type PricingClient struct {
	httpClient *http.Client
	backoff    func() retry.Backoff
}

// PricingOption configures optional client behavior.
type PricingOption func(*PricingClient)

// WithPricingHTTPClient overrides the default HTTP client.
func WithPricingHTTPClient(client *http.Client) PricingOption {
	return func(c *PricingClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryBackoff overrides the retry schedule.
func WithRetryBackoff(fn func() retry.Backoff) PricingOption {
	return func(c *PricingClient) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

func NewPricingClient(opts ...PricingOption) *PricingClient {
	c := &PricingClient{
		httpClient: &http.Client{Timeout: apiRequestTimeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(apiMaxRetries, retry.NewExponential(apiRetryBase))
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type quoteRequestBody struct {
	ShipmentID     int64           `json:"shipment_id"`
	Spots          int             `json:"spots"`
	Weight         decimal.Decimal `json:"weight"`
	DestinationZIP string          `json:"destination_zip"`
}

type finalOfferRequestBody struct {
	ShipmentID     int64           `json:"shipment_id"`
	BenchmarkPrice decimal.Decimal `json:"benchmark_price"`
}

type priceResponse struct {
	Price *decimal.Decimal `json:"price"`
}

// Quote asks the carrier for an initial price. A null price is a definitive
// decline, distinct from a transport error.
func (c *PricingClient) Quote(ctx context.Context, carrier carriers.Carrier, shipment models.Shipment) (decimal.NullDecimal, error) {
	return c.post(ctx, carrier, "/quotes", quoteRequestBody{
		ShipmentID:     shipment.ID,
		Spots:          shipment.Spots,
		Weight:         shipment.Weight,
		DestinationZIP: shipment.DestinationZIP,
	})
}

func (c *PricingClient) FinalOffer(ctx context.Context, carrier carriers.Carrier, shipment models.Shipment, benchmark decimal.Decimal) (decimal.NullDecimal, error) {
	return c.post(ctx, carrier, "/final-offers", finalOfferRequestBody{
		ShipmentID:     shipment.ID,
		BenchmarkPrice: benchmark,
	})
}

func (c *PricingClient) post(ctx context.Context, carrier carriers.Carrier, path string, body any) (decimal.NullDecimal, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("marshal pricing request: %w", err)
	}
	url := strings.TrimRight(carrier.Endpoint, "/") + path

	var result decimal.NullDecimal
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build pricing request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if carrier.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+carrier.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("execute pricing request: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, apiErrorBodyLimit))
			return retry.RetryableError(fmt.Errorf("pricing request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, apiErrorBodyLimit))
			return fmt.Errorf("pricing request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}

		var decoded priceResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, apiResponseMaxSize)).Decode(&decoded); err != nil {
			return fmt.Errorf("decode pricing response: %w", err)
		}
		result = decimal.NullDecimal{}
		if decoded.Price != nil {
			result = pricing.Normalize(*decoded.Price)
		}
		return nil
	})
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return result, nil
}
