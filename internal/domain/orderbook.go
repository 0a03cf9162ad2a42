package domain

import "time"

// Side identifies which half of an orderbook a level or update belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// PriceLevel is a single price+size entry in an orderbook. A level with
// Size == 0 inside a Delta means "remove this price"; a stored level always
// has Size > 0.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Delta is one decoded incremental update for a single instrument. Price and
// size strings from the wire have already been parsed by the transport
// boundary; entries that failed to parse were dropped there and counted in
// DroppedEntries.
type Delta struct {
	Instrument     string
	Bids           []PriceLevel
	Asks           []PriceLevel
	DroppedEntries int
	Timestamp      time.Time
}

// MarketSnapshot is the fully materialized set of derived metrics for one
// instrument at one point in logical time. It is immutable once produced and
// safe to share across goroutines.
type MarketSnapshot struct {
	Instrument         string    `json:"instrument"`
	BestBid            float64   `json:"best_bid"`
	BestAsk            float64   `json:"best_ask"`
	MidPrice           float64   `json:"mid_price"`
	SpreadAbs          float64   `json:"spread_abs"`
	SpreadPct          float64   `json:"spread_pct"`
	BidLiquidityInBand float64   `json:"bid_liquidity_in_band"`
	AskLiquidityInBand float64   `json:"ask_liquidity_in_band"`
	BandUSDEstimate    float64   `json:"band_usd_estimate"`
	Timestamp          time.Time `json:"timestamp"`
}

// ConnectionState describes the lifecycle of the upstream feed transport. It
// is owned by the transport; the rest of the system only reads it.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
	StateErrored
)

// String returns the lowercase name used in logs and status events.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}
