package coinbase

import (
	"strconv"
	"time"

	"github.com/quantfeed/bookwatch/internal/domain"
)

// WSCommand is the subscribe/unsubscribe envelope for the exchange feed.
type WSCommand struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// SnapshotMessage is the full-book message sent once per product after a
// level2 subscription. Prices and sizes arrive as decimal strings.
type SnapshotMessage struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Bids      [][]string `json:"bids"` // [price, size]
	Asks      [][]string `json:"asks"`
}

// L2UpdateMessage is the incremental level2 message. Each change is a
// [side, price, size] triple; size is the new absolute size at that price,
// with "0" meaning the level is gone.
type L2UpdateMessage struct {
	Type      string     `json:"type"`
	ProductID string     `json:"product_id"`
	Changes   [][]string `json:"changes"`
	Time      time.Time  `json:"time"`
}

// ErrorMessage is the feed's error envelope.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// APIProduct is a tradable product as returned by the exchange REST API.
type APIProduct struct {
	ID              string `json:"id"`
	BaseCurrency    string `json:"base_currency"`
	QuoteCurrency   string `json:"quote_currency"`
	Status          string `json:"status"`
	TradingDisabled bool   `json:"trading_disabled"`
}

// SnapshotToDomain converts a full-book message to a Delta carrying every
// level. Entries whose price or size fails to parse, or whose price is not
// positive, are dropped and counted rather than failing the whole message.
func SnapshotToDomain(m *SnapshotMessage) domain.Delta {
	d := domain.Delta{
		Instrument: m.ProductID,
		Timestamp:  time.Now().UTC(),
	}
	d.Bids, d.Asks, d.DroppedEntries = parseLevels(m.Bids, m.Asks)
	return d
}

// L2UpdateToDomain converts an incremental message to a Delta, splitting the
// mixed change list into bid and ask entries.
func L2UpdateToDomain(m *L2UpdateMessage) domain.Delta {
	d := domain.Delta{
		Instrument: m.ProductID,
		Timestamp:  m.Time,
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	for _, ch := range m.Changes {
		if len(ch) != 3 {
			d.DroppedEntries++
			continue
		}
		lvl, ok := parseLevel(ch[1], ch[2])
		if !ok {
			d.DroppedEntries++
			continue
		}
		switch ch[0] {
		case "buy":
			d.Bids = append(d.Bids, lvl)
		case "sell":
			d.Asks = append(d.Asks, lvl)
		default:
			d.DroppedEntries++
		}
	}
	return d
}

// parseLevels parses snapshot-style [price, size] pairs for both sides.
func parseLevels(bids, asks [][]string) (b, a []domain.PriceLevel, dropped int) {
	b = make([]domain.PriceLevel, 0, len(bids))
	for _, pair := range bids {
		if len(pair) < 2 {
			dropped++
			continue
		}
		lvl, ok := parseLevel(pair[0], pair[1])
		if !ok {
			dropped++
			continue
		}
		b = append(b, lvl)
	}

	a = make([]domain.PriceLevel, 0, len(asks))
	for _, pair := range asks {
		if len(pair) < 2 {
			dropped++
			continue
		}
		lvl, ok := parseLevel(pair[0], pair[1])
		if !ok {
			dropped++
			continue
		}
		a = append(a, lvl)
	}
	return b, a, dropped
}

// parseLevel parses one price/size pair. The size is carried through with
// whatever sign the feed sent; only parse failures and non-positive prices
// count as malformed.
func parseLevel(priceStr, sizeStr string) (domain.PriceLevel, bool) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 {
		return domain.PriceLevel{}, false
	}
	size, err := strconv.ParseFloat(sizeStr, 64)
	if err != nil {
		return domain.PriceLevel{}, false
	}
	return domain.PriceLevel{Price: price, Size: size}, true
}
