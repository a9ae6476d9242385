package payloads

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShipmentCompletedEvent is emitted once a shipment reaches its terminal state.
type ShipmentCompletedEvent struct {
	ShipmentID     int64            `json:"shipment_id"`
	DestinationZIP string           `json:"destination_zip"`
	Outcome        string           `json:"outcome"`
	FinalWinner    string           `json:"final_winner"`
	FinalPrice     *decimal.Decimal `json:"final_price,omitempty"`
	LeaderCarrier  *string          `json:"leader_carrier,omitempty"`
	LeaderPrice    *decimal.Decimal `json:"leader_price,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
}
