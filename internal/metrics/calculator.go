// Package metrics derives market-quality statistics from reconstructed
// orderbooks.
package metrics

import (
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// DefaultBandThreshold is the fraction of the best price that bounds the
// tight liquidity band (0.001%).
const DefaultBandThreshold = 0.00001

// Calculator computes a MarketSnapshot from ordered bid/ask levels. It is
// stateless apart from the configured band threshold, which is shared by all
// instruments in a deployment.
type Calculator struct {
	band float64
}

// NewCalculator creates a Calculator with the given band threshold. A
// threshold <= 0 falls back to DefaultBandThreshold.
func NewCalculator(band float64) *Calculator {
	if band <= 0 {
		band = DefaultBandThreshold
	}
	return &Calculator{band: band}
}

// Compute derives a snapshot from the given levels. Bids must be ordered
// descending by price and asks ascending, as returned by
// PriceLevelBook.BestLevels. If either side is empty no snapshot can be
// derived and Compute returns domain.ErrEmptySide; it never returns a
// partial result.
//
// Band liquidity sums resting size within band*best of each side's best
// price. Because the inputs are ordered from the best price outward, the scan
// stops at the first level past the cutoff. The USD estimate prices both
// sides' summed size at the mid rather than at each level's own price; this
// is a deliberately cheap approximation, not a precise notional.
func (c *Calculator) Compute(instrument string, bids, asks []domain.PriceLevel, ts time.Time) (domain.MarketSnapshot, error) {
	if len(bids) == 0 || len(asks) == 0 {
		return domain.MarketSnapshot{}, domain.ErrEmptySide
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	mid := (bestBid + bestAsk) / 2

	var bidLiq float64
	bidCutoff := bestBid * (1 - c.band)
	for _, lvl := range bids {
		if lvl.Price < bidCutoff {
			break
		}
		bidLiq += lvl.Size
	}

	var askLiq float64
	askCutoff := bestAsk * (1 + c.band)
	for _, lvl := range asks {
		if lvl.Price > askCutoff {
			break
		}
		askLiq += lvl.Size
	}

	spread := bestAsk - bestBid
	return domain.MarketSnapshot{
		Instrument:         instrument,
		BestBid:            bestBid,
		BestAsk:            bestAsk,
		MidPrice:           mid,
		SpreadAbs:          spread,
		SpreadPct:          spread / bestBid,
		BidLiquidityInBand: bidLiq,
		AskLiquidityInBand: askLiq,
		BandUSDEstimate:    (bidLiq + askLiq) * mid,
		Timestamp:          ts,
	}, nil
}

// Band returns the configured band threshold.
func (c *Calculator) Band() float64 {
	return c.band
}
