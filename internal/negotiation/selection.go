package negotiation

import (
	"sort"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// bids is the received quotes of one type, ordered by price then quote id so
// the first element is the deterministic leader.
type bids []models.Quote

func receivedBids(quotes []models.Quote, quoteType enums.QuoteType, allowed map[string]struct{}) bids {
	out := make(bids, 0, len(quotes))
	for _, q := range quotes {
		if q.QuoteType != quoteType || q.Status != enums.QuoteStatusReceived || !q.Price.Valid {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[q.CarrierName]; !ok {
				continue
			}
		}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := out[i].Price.Decimal.Cmp(out[j].Price.Decimal); cmp != 0 {
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b bids) best() (models.Quote, bool) {
	if len(b) == 0 {
		return models.Quote{}, false
	}
	return b[0], true
}

// above returns bids priced strictly above the leader. Carriers tied with the
// leader are neither asked to negotiate nor counted as expected offers.
func (b bids) above(leader models.Quote) bids {
	out := make(bids, 0, len(b))
	for _, q := range b {
		if q.ID == leader.ID {
			continue
		}
		if q.Price.Decimal.GreaterThan(leader.Price.Decimal) {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b bids) carrierSet() map[string]struct{} {
	out := make(map[string]struct{}, len(b))
	for _, q := range b {
		out[q.CarrierName] = struct{}{}
	}
	return out
}

func countTerminal(quotes []models.Quote, quoteType enums.QuoteType, allowed map[string]struct{}) int {
	n := 0
	for _, q := range quotes {
		if q.QuoteType != quoteType || !q.Status.IsTerminal() {
			continue
		}
		if _, ok := allowed[q.CarrierName]; ok {
			n++
		}
	}
	return n
}

func nameSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
