package enums

import "fmt"

// QuoteStatus tracks a single carrier reply slot.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusReceived QuoteStatus = "received"
	QuoteStatusFailed   QuoteStatus = "failed"
)

var validQuoteStatuses = []QuoteStatus{
	QuoteStatusPending,
	QuoteStatusReceived,
	QuoteStatusFailed,
}

// TerminalQuoteStatuses are the reply states counted toward readiness.
var TerminalQuoteStatuses = []QuoteStatus{QuoteStatusReceived, QuoteStatusFailed}

func (s QuoteStatus) String() string {
	return string(s)
}

func (s QuoteStatus) IsValid() bool {
	for _, candidate := range validQuoteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s QuoteStatus) IsTerminal() bool {
	return s == QuoteStatusReceived || s == QuoteStatusFailed
}

func ParseQuoteStatus(value string) (QuoteStatus, error) {
	for _, candidate := range validQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote status %q", value)
}
