package enums

import "fmt"

// QuoteType distinguishes first-round bids from negotiated offers.
type QuoteType string

const (
	QuoteTypeInitial QuoteType = "initial"
	QuoteTypeFinal   QuoteType = "final"
)

var validQuoteTypes = []QuoteType{QuoteTypeInitial, QuoteTypeFinal}

func (t QuoteType) String() string {
	return string(t)
}

func (t QuoteType) IsValid() bool {
	for _, candidate := range validQuoteTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseQuoteType(value string) (QuoteType, error) {
	for _, candidate := range validQuoteTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote type %q", value)
}
