package pricing

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var quotePattern = regexp.MustCompile(`Quote: \$?([\d,]+\.?\d*)`)

// PatternExtractor reads the "Quote: $1234.56" line carriers are asked to send.
type PatternExtractor struct{}

func (PatternExtractor) ExtractPrice(_ context.Context, text string) (decimal.NullDecimal, error) {
	match := quotePattern.FindStringSubmatch(text)
	if match == nil {
		return decimal.NullDecimal{}, nil
	}
	raw := strings.TrimSuffix(strings.ReplaceAll(match[1], ",", ""), ".")
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(price.Round(2)), nil
}
