package enums

import (
	"fmt"
	"strings"
)

// ShipmentStatus tracks the negotiation lifecycle of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusQuoting               ShipmentStatus = "quoting"
	ShipmentStatusAwaitingInitialQuotes ShipmentStatus = "awaiting_initial_quotes"
	ShipmentStatusAwaitingFinalOffers   ShipmentStatus = "awaiting_final_offers"
	ShipmentStatusComplete              ShipmentStatus = "complete"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusQuoting,
	ShipmentStatusAwaitingInitialQuotes,
	ShipmentStatusAwaitingFinalOffers,
	ShipmentStatusComplete,
}

// AwaitingShipmentStatuses lists the states the staleness reaper may force-complete.
var AwaitingShipmentStatuses = []ShipmentStatus{
	ShipmentStatusAwaitingInitialQuotes,
	ShipmentStatusAwaitingFinalOffers,
}

// String implements fmt.Stringer.
func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	for _, candidate := range validShipmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ShipmentStatus) IsTerminal() bool {
	return s == ShipmentStatusComplete
}

// IsAwaiting reports whether the shipment waits on carrier replies.
func (s ShipmentStatus) IsAwaiting() bool {
	return strings.HasPrefix(string(s), "awaiting")
}

// rank orders statuses along the forward-only lifecycle.
func (s ShipmentStatus) rank() int {
	for i, candidate := range validShipmentStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() > s.rank()
}

// ParseShipmentStatus converts raw input into a ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	for _, candidate := range validShipmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipment status %q", value)
}
