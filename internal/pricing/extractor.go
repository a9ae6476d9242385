// Package pricing extracts a quoted price from free-form reply text.
package pricing

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

// Extractor finds a price in text. A null result with a nil error means the
// text carries no price.
type Extractor interface {
	ExtractPrice(ctx context.Context, text string) (decimal.NullDecimal, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string) (decimal.NullDecimal, error)

func (f ExtractorFunc) ExtractPrice(ctx context.Context, text string) (decimal.NullDecimal, error) {
	return f(ctx, text)
}

// MaxPrice is the largest amount a stored quote can carry.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// Normalize rounds p to cents. Amounts that round to zero or less, or exceed
// MaxPrice, are treated as no price.
func Normalize(p decimal.Decimal) decimal.NullDecimal {
	rounded := p.Round(2)
	if !rounded.IsPositive() || rounded.GreaterThan(MaxPrice) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(rounded)
}

var quotedHistory = regexp.MustCompile(`\r?\nOn .* wrote:`)

// StripQuoted drops the quoted thread below the first "On ... wrote:" line so
// the price in our own request is never read back as the carrier's answer.
func StripQuoted(body string) string {
	if loc := quotedHistory.FindStringIndex(body); loc != nil {
		return body[:loc[0]]
	}
	return body
}

type chain []Extractor

// Chain tries each extractor in order and returns the first price found.
func Chain(extractors ...Extractor) Extractor {
	out := make(chain, 0, len(extractors))
	for _, e := range extractors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c chain) ExtractPrice(ctx context.Context, text string) (decimal.NullDecimal, error) {
	var errs error
	for _, e := range c {
		price, err := e.ExtractPrice(ctx, text)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if price.Valid {
			return price, nil
		}
	}
	return decimal.NullDecimal{}, errs
}

// Oracle is the fault-free view of an Extractor used by the reply reconciler.
type Oracle interface {
	Extract(ctx context.Context, text string) decimal.NullDecimal
}

type safe struct {
	inner Extractor
	logg  *logger.Logger
}

// Safe wraps e so that every failure, including a panic, reads as "no price".
func Safe(e Extractor, logg *logger.Logger) Oracle {
	if logg == nil {
		logg = logger.Nop()
	}
	return &safe{inner: e, logg: logg}
}

func (s *safe) Extract(ctx context.Context, text string) (price decimal.NullDecimal) {
	defer func() {
		if r := recover(); r != nil {
			s.logg.Error(ctx, "price extraction panicked", fmt.Errorf("%v", r))
			price = decimal.NullDecimal{}
		}
	}()
	if s.inner == nil || strings.TrimSpace(text) == "" {
		return decimal.NullDecimal{}
	}
	found, err := s.inner.ExtractPrice(ctx, text)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event", "pricing.extract_failed"), "price extraction failed", err)
		return decimal.NullDecimal{}
	}
	if !found.Valid {
		return found
	}
	price = Normalize(found.Decimal)
	if !price.Valid {
		s.logg.Warn(s.logg.WithField(ctx, "price", found.Decimal.String()), "extracted price out of range")
	}
	return price
}
