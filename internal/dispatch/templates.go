package dispatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

const (
	quoteRequestSubject      = "Quote Request"
	finalOfferRequestSubject = "Final Offer Request"
)

var shipmentReference = regexp.MustCompile(`#(\d+)`)

// Message is a rendered outbound request.
type Message struct {
	Subject string
	Body    string
}

// QuoteRequestSubject embeds the shipment id carriers echo back in replies.
func QuoteRequestSubject(shipmentID int64) string {
	return fmt.Sprintf("%s - Shipment #%d", quoteRequestSubject, shipmentID)
}

func FinalOfferRequestSubject(shipmentID int64) string {
	return fmt.Sprintf("%s - Shipment #%d", finalOfferRequestSubject, shipmentID)
}

// RenderQuoteRequest builds the initial request for a shipment.
func RenderQuoteRequest(company string, shipment models.Shipment) Message {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("Please provide a quote for the following shipment:\n")
	fmt.Fprintf(&b, "- Pallets (Spots): %d\n", shipment.Spots)
	fmt.Fprintf(&b, "- Weight (lbs): %s\n", shipment.Weight.String())
	fmt.Fprintf(&b, "- Destination ZIP: %s\n\n", shipment.DestinationZIP)
	b.WriteString("To help us process this automatically, please reply with the price on a line by itself formatted like this:\n")
	b.WriteString("Quote: $1234.56\n\n")
	fmt.Fprintf(&b, "Thank you,\n%s\n", company)
	return Message{Subject: QuoteRequestSubject(shipment.ID), Body: b.String()}
}

// RenderFinalOfferRequest builds the "beat this price" request.
func RenderFinalOfferRequest(company string, shipment models.Shipment, benchmark decimal.Decimal) Message {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "Regarding shipment #%d, we have received a competing quote of $%s.\n\n", shipment.ID, benchmark.StringFixed(2))
	b.WriteString("We value your service and would like to give you the opportunity to provide a final, more competitive offer.\n\n")
	b.WriteString("Please reply with your best and final offer in the same format as before:\n")
	b.WriteString("Quote: $1234.56\n\n")
	fmt.Fprintf(&b, "Thank you,\n%s\n", company)
	return Message{Subject: FinalOfferRequestSubject(shipment.ID), Body: b.String()}
}

// ParseReference recovers the shipment id from a reply subject.
func ParseReference(subject string) (int64, bool) {
	match := shipmentReference.FindStringSubmatch(subject)
	if match == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ClassifySubject reports which request a reply answers.
func ClassifySubject(subject string) (enums.QuoteType, bool) {
	switch {
	case strings.Contains(subject, finalOfferRequestSubject):
		return enums.QuoteTypeFinal, true
	case strings.Contains(subject, quoteRequestSubject):
		return enums.QuoteTypeInitial, true
	default:
		return "", false
	}
}
