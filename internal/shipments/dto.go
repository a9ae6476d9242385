package shipments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Sentinel winners recorded when no carrier wins on price.
const (
	WinnerNoBids   = "No Bids"
	WinnerTimedOut = "Timed Out"
)

// CompletionOutcome labels how a shipment reached complete.
type CompletionOutcome string

const (
	OutcomeNoBids     CompletionOutcome = "no_bids"
	OutcomeSoleBid    CompletionOutcome = "sole_bid"
	OutcomeLeaderHeld CompletionOutcome = "leader_held"
	OutcomeBeaten     CompletionOutcome = "beaten"
	OutcomeTimedOut   CompletionOutcome = "timed_out"
)

// ReplyOutcome is a matched carrier reply: a price, or a definitive absence.
type ReplyOutcome struct {
	Price      decimal.NullDecimal
	ReceivedAt time.Time
}

// Status maps the outcome onto the terminal quote status it records.
func (o ReplyOutcome) Status() enums.QuoteStatus {
	if o.Price.Valid {
		return enums.QuoteStatusReceived
	}
	return enums.QuoteStatusFailed
}

// Completion describes the terminal write for a shipment.
type Completion struct {
	From       enums.ShipmentStatus
	Winner     string
	Price      decimal.NullDecimal
	Outcome    CompletionOutcome
	Leader     *models.Quote
	FinalCount *int
}

// ShipmentList is a page of shipments, newest first.
type ShipmentList struct {
	Items      []models.Shipment
	NextCursor string
}

// Stats is the dashboard summary.
type Stats struct {
	Total      int64
	InProgress int64
	Savings    decimal.Decimal
}

// CreateShipmentInput carries the physical attributes supplied at creation.
type CreateShipmentInput struct {
	Spots          int             `json:"spots" validate:"required,gt=0"`
	Weight         decimal.Decimal `json:"weight"`
	DestinationZIP string          `json:"destination_zip" validate:"required,len=5,number"`
}

// ShipmentDTO is the API shape of a shipment.
type ShipmentDTO struct {
	ID                  int64                `json:"id"`
	RequestedAt         time.Time            `json:"requested_at"`
	Spots               int                  `json:"spots"`
	Weight              decimal.Decimal      `json:"weight"`
	DestinationZIP      string               `json:"destination_zip"`
	Status              enums.ShipmentStatus `json:"status"`
	FinalWinner         *string              `json:"final_winner"`
	FinalPrice          *decimal.Decimal     `json:"final_price"`
	LeaderCarrier       *string              `json:"leader_carrier,omitempty"`
	LeaderPrice         *decimal.Decimal     `json:"leader_price,omitempty"`
	ExpectedFinalOffers *int                 `json:"expected_final_offers,omitempty"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
}

// QuoteDTO is the API shape of a quote.
type QuoteDTO struct {
	ID            int64             `json:"id"`
	ShipmentID    int64             `json:"shipment_id"`
	CarrierName   string            `json:"carrier_name"`
	QuoteType     enums.QuoteType   `json:"quote_type"`
	Price         *decimal.Decimal  `json:"price"`
	ReceivedAt    *time.Time        `json:"received_at"`
	Status        enums.QuoteStatus `json:"status"`
	DispatchError *string           `json:"dispatch_error,omitempty"`
}

// ShipmentPage is the API shape of a shipment list page.
type ShipmentPage struct {
	Items      []ShipmentDTO `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// StatsDTO is the API shape of the dashboard summary.
type StatsDTO struct {
	TotalShipments      int64           `json:"total_shipments"`
	InProgressShipments int64           `json:"in_progress_shipments"`
	TotalSavings        decimal.Decimal `json:"total_savings"`
}

func nullablePrice(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	price := value.Decimal
	return &price
}

func ToShipmentDTO(s models.Shipment) ShipmentDTO {
	return ShipmentDTO{
		ID:                  s.ID,
		RequestedAt:         s.RequestedAt,
		Spots:               s.Spots,
		Weight:              s.Weight,
		DestinationZIP:      s.DestinationZIP,
		Status:              s.Status,
		FinalWinner:         s.FinalWinner,
		FinalPrice:          nullablePrice(s.FinalPrice),
		LeaderCarrier:       s.LeaderCarrier,
		LeaderPrice:         nullablePrice(s.LeaderPrice),
		ExpectedFinalOffers: s.ExpectedFinalOffers,
		CompletedAt:         s.CompletedAt,
	}
}

func ToQuoteDTO(q models.Quote) QuoteDTO {
	return QuoteDTO{
		ID:            q.ID,
		ShipmentID:    q.ShipmentID,
		CarrierName:   q.CarrierName,
		QuoteType:     q.QuoteType,
		Price:         nullablePrice(q.Price),
		ReceivedAt:    q.ReceivedAt,
		Status:        q.Status,
		DispatchError: q.DispatchError,
	}
}
