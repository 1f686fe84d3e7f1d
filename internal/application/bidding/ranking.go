package bidding

import (
	"math"
	"sort"

	"montro-backend/internal/domain"
)

// RankBids returns the winning bids of a listing: the top quantity bids by
// amount, each winning one unit at its own bid price (discriminatory
// multi-unit auction). Ties break by acceptance order. The ranking is always
// recomputed from the full bid set, never cached incrementally; n is small in
// this domain so the sort is cheap.
func RankBids(bids []domain.Bid, quantity int) []domain.Bid {
	if quantity < 1 || len(bids) == 0 {
		return nil
	}
	ranked := make([]domain.Bid, len(bids))
	copy(ranked, bids)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Amount != ranked[j].Amount {
			return ranked[i].Amount > ranked[j].Amount
		}
		return ranked[i].Seq < ranked[j].Seq
	})
	if len(ranked) > quantity {
		ranked = ranked[:quantity]
	}
	return ranked
}

// HighestAmount returns the highest bid amount, 0 when there are no bids.
func HighestAmount(bids []domain.Bid) float64 {
	highest := 0.0
	for _, b := range bids {
		if b.Amount > highest {
			highest = b.Amount
		}
	}
	return highest
}

// MinimumNextBid computes the smallest amount the next bid must reach: the
// starting price while no bids exist, otherwise one cent above the current
// highest. Rejected bidders are told this value.
func MinimumNextBid(listing *domain.Listing, bids []domain.Bid) float64 {
	if len(bids) == 0 {
		return listing.Price
	}
	return round2(HighestAmount(bids) + 0.01)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
