// Package book maintains per-instrument price-level orderbooks built from
// incremental feed updates.
package book

import (
	"sort"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// PriceLevelBook is the reconstructed two-sided orderbook for a single
// instrument: a price→size map per side. Storage is unordered; ordering is
// materialized on read by BestLevels. Books on this feed stay small (tens to
// low hundreds of levels), so sort-on-read is cheaper than maintaining an
// ordered structure per update.
//
// A PriceLevelBook is not safe for concurrent use. It is owned by a single
// Registry which serializes all access.
type PriceLevelBook struct {
	bids map[float64]float64
	asks map[float64]float64
}

// New returns an empty book.
func New() *PriceLevelBook {
	return &PriceLevelBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// ApplyDelta applies level updates to one side in the order given. A zero
// size removes the level (a no-op if absent); any other size inserts or
// overwrites, so a later entry for the same price wins within a batch. No
// sign or range validation is performed beyond the zero-size-deletes rule;
// the book stores whatever the feed sent.
func (b *PriceLevelBook) ApplyDelta(side domain.Side, entries []domain.PriceLevel) {
	levels := b.side(side)
	for _, e := range entries {
		if e.Size == 0 {
			delete(levels, e.Price)
			continue
		}
		levels[e.Price] = e.Size
	}
}

// BestLevels returns the top limit levels of a side: bids descending by
// price, asks ascending. A limit <= 0 returns the whole side. The returned
// slice is a fresh copy and safe to retain.
func (b *PriceLevelBook) BestLevels(side domain.Side, limit int) []domain.PriceLevel {
	levels := b.side(side)
	if len(levels) == 0 {
		return nil
	}

	prices := make([]float64, 0, len(levels))
	for p := range levels {
		prices = append(prices, p)
	}
	if side == domain.SideBid {
		sort.Sort(sort.Reverse(sort.Float64Slice(prices)))
	} else {
		sort.Float64s(prices)
	}

	n := len(prices)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PriceLevel, 0, n)
	for _, p := range prices[:n] {
		out = append(out, domain.PriceLevel{Price: p, Size: levels[p]})
	}
	return out
}

// Depth returns the number of resting levels on a side.
func (b *PriceLevelBook) Depth(side domain.Side) int {
	return len(b.side(side))
}

// Ready reports whether both sides have at least one level, i.e. whether the
// book can produce meaningful derived metrics.
func (b *PriceLevelBook) Ready() bool {
	return len(b.bids) > 0 && len(b.asks) > 0
}

// Reset drops every level on both sides. Used when the feed (re)delivers an
// authoritative snapshot and the previous state must not survive.
func (b *PriceLevelBook) Reset() {
	b.bids = make(map[float64]float64)
	b.asks = make(map[float64]float64)
}

func (b *PriceLevelBook) side(s domain.Side) map[float64]float64 {
	if s == domain.SideBid {
		return b.bids
	}
	return b.asks
}
