package domain

import "time"

// PriceLevel is a single price+quantity entry in an L2 orderbook.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// BookSnapshot is a full replace-the-book snapshot for one instrument.
// Each inbound feed message carries the complete visible depth; there is no
// delta application anywhere in the system.
type BookSnapshot struct {
	Venue     string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time // exchange-reported, zero if the feed omitted it
}

// Side identifies which half of the book an operation targets.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BookStats bundles the derived read-only statistics of the current book so a
// reader gets one consistent view instead of issuing several racy reads.
type BookStats struct {
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	BestBid    float64   `json:"best_bid"`
	BestAsk    float64   `json:"best_ask"`
	MidPrice   float64   `json:"mid_price"`
	Spread     float64   `json:"spread"`
	SpreadPct  float64   `json:"spread_pct"`
	Imbalance  float64   `json:"imbalance"`
	BidDepth   float64   `json:"bid_depth"`
	AskDepth   float64   `json:"ask_depth"`
	BidLevels  int       `json:"bid_levels"`
	AskLevels  int       `json:"ask_levels"`
	LatencyMs  float64   `json:"latency_ms"`
	Volatility float64   `json:"volatility"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConnectionStats is the connectivity view exposed to the presentation layer.
type ConnectionStats struct {
	Connected         bool    `json:"connected"`
	State             string  `json:"state"`
	MessageCount      int64   `json:"message_count"`
	LastMessageAgeSec float64 `json:"last_message_age_sec"`
	MessagesPerSec    float64 `json:"messages_per_sec"`
	Reconnects        int64   `json:"reconnects"`
	LastError         string  `json:"last_error"`
}
