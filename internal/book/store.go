// Package book maintains the in-memory L2 orderbook and its derived
// statistics. The store has exactly one writer (the feed's connection
// manager); readers take the lock only long enough to copy what they need.
package book

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/quantera/tradesim/internal/domain"
)

const (
	// latencyRingCap bounds the per-update processing-duration history.
	latencyRingCap = 100

	// midHistoryCap bounds the rolling mid-price window used for the
	// volatility estimate.
	midHistoryCap = 120

	// DefaultDepthLevels is how many levels per side Depth sums by default.
	DefaultDepthLevels = 10
)

func higher(a, b float64) bool { return a > b }
func lower(a, b float64) bool  { return a < b }

// Store owns the current set of bid/ask price levels. Created empty, fully
// replaced on every accepted snapshot, discarded at shutdown. Quantities are
// always > 0; a level with quantity <= 0 is dropped on write, never stored.
type Store struct {
	mu sync.RWMutex

	bids map[float64]float64
	asks map[float64]float64

	venue     string
	symbol    string
	timestamp time.Time // exchange-reported, may be zero

	lastUpdateAt time.Time // local wall clock of last successful update

	latencies  []time.Duration // ring, oldest first
	midHistory []float64       // ring of recent mid prices, oldest first
}

// NewStore returns an empty book store for the given venue and symbol.
// Snapshots carrying their own venue/symbol override these on update.
func NewStore(venue, symbol string) *Store {
	return &Store{
		venue:  venue,
		symbol: symbol,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
	}
}

// Update replaces both sides of the book wholesale from the snapshot and
// records the given processing duration in the latency ring. It runs only on
// the connection manager's goroutine.
func (s *Store) Update(snap domain.BookSnapshot, processing time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.bids)
	clear(s.asks)
	for _, lvl := range snap.Bids {
		if lvl.Quantity > 0 {
			s.bids[lvl.Price] = lvl.Quantity
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Quantity > 0 {
			s.asks[lvl.Price] = lvl.Quantity
		}
	}

	if snap.Venue != "" {
		s.venue = snap.Venue
	}
	if snap.Symbol != "" {
		s.symbol = snap.Symbol
	}
	s.timestamp = snap.Timestamp
	s.lastUpdateAt = time.Now()

	s.latencies = append(s.latencies, processing)
	if len(s.latencies) > latencyRingCap {
		s.latencies = s.latencies[len(s.latencies)-latencyRingCap:]
	}

	if s.validLocked() {
		bb, _, _ := bestOf(s.bids, higher)
		ba, _, _ := bestOf(s.asks, lower)
		s.midHistory = append(s.midHistory, (bb+ba)/2)
		if len(s.midHistory) > midHistoryCap {
			s.midHistory = s.midHistory[len(s.midHistory)-midHistoryCap:]
		}
	}
}

// Valid reports whether the book carries usable data: both sides non-empty
// and at least one successful update applied.
func (s *Store) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked()
}

func (s *Store) validLocked() bool {
	return len(s.bids) > 0 && len(s.asks) > 0 && !s.lastUpdateAt.IsZero()
}

// BestBid returns the highest bid level. ok is false when the side is empty.
func (s *Store) BestBid() (price, qty float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bestOf(s.bids, higher)
}

// BestAsk returns the lowest ask level. ok is false when the side is empty.
func (s *Store) BestAsk() (price, qty float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bestOf(s.asks, lower)
}

func bestOf(side map[float64]float64, better func(a, b float64) bool) (float64, float64, bool) {
	if len(side) == 0 {
		return 0, 0, false
	}
	first := true
	var best float64
	for p := range side {
		if first || better(p, best) {
			best = p
			first = false
		}
	}
	return best, side[best], true
}

// MidPrice returns the average of best bid and best ask. ok is false until
// the book is valid; no numeric default ever masquerades as data.
func (s *Store) MidPrice() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return 0, false
	}
	bb, _, _ := bestOf(s.bids, higher)
	ba, _, _ := bestOf(s.asks, lower)
	return (bb + ba) / 2, true
}

// Spread returns ask minus bid. A crossed book yields a negative spread; that
// is reported as-is, never treated as an error.
func (s *Store) Spread() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return 0, false
	}
	bb, _, _ := bestOf(s.bids, higher)
	ba, _, _ := bestOf(s.asks, lower)
	return ba - bb, true
}

// SpreadPct returns the spread as a percentage of the mid price.
func (s *Store) SpreadPct() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return 0, false
	}
	bb, _, _ := bestOf(s.bids, higher)
	ba, _, _ := bestOf(s.asks, lower)
	mid := (bb + ba) / 2
	if mid == 0 {
		return 0, false
	}
	return (ba - bb) / mid * 100, true
}

// Imbalance returns totalBidQty / (totalBidQty + totalAskQty), in [0,1].
// 0.5 (neutral) when there is no volume on either side.
func (s *Store) Imbalance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return imbalanceLocked(s.bids, s.asks)
}

func imbalanceLocked(bids, asks map[float64]float64) float64 {
	var bidVol, askVol float64
	for _, q := range bids {
		bidVol += q
	}
	for _, q := range asks {
		askVol += q
	}
	total := bidVol + askVol
	if total == 0 {
		return 0.5
	}
	return bidVol / total
}

// Depth sums quantity across the best n levels per side (bids descending,
// asks ascending). n <= 0 falls back to DefaultDepthLevels.
func (s *Store) Depth(n int) (bidDepth, askDepth float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return depthLocked(s.bids, s.asks, n)
}

func depthLocked(bids, asks map[float64]float64, n int) (bidDepth, askDepth float64) {
	if n <= 0 {
		n = DefaultDepthLevels
	}
	b := sortedLevels(bids, true)
	a := sortedLevels(asks, false)
	for i := 0; i < n && i < len(b); i++ {
		bidDepth += b[i].Quantity
	}
	for i := 0; i < n && i < len(a); i++ {
		askDepth += a[i].Quantity
	}
	return bidDepth, askDepth
}

// EstimateSlippage simulates filling quantity against the book: asks
// ascending for a buy, bids descending for a sell, greedily consuming levels.
// The zero-slippage reference is the best-of-book price. When total liquidity
// across all levels cannot fill the order it returns
// domain.ErrInsufficientLiquidity and no partial result.
func (s *Store) EstimateSlippage(quantity float64, side domain.Side) (amount, pct float64, err error) {
	if quantity <= 0 {
		return 0, 0, domain.ErrNoData
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var levels []domain.PriceLevel
	switch side {
	case domain.SideBuy:
		levels = sortedLevels(s.asks, false)
	case domain.SideSell:
		levels = sortedLevels(s.bids, true)
	default:
		return 0, 0, domain.ErrNoData
	}
	if len(levels) == 0 {
		return 0, 0, domain.ErrNoData
	}

	remaining := quantity
	var notional float64
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, lvl.Quantity)
		notional += take * lvl.Price
		remaining -= take
	}
	if remaining > 0 {
		return 0, 0, domain.ErrInsufficientLiquidity
	}

	effective := notional / quantity
	best := levels[0].Price
	if side == domain.SideBuy {
		amount = effective - best
	} else {
		amount = best - effective
	}
	if best == 0 {
		return amount, 0, nil
	}
	return amount, amount / best * 100, nil
}

// AvgLatencyMs returns the mean of the latency ring in milliseconds, 0 when
// no updates have been processed yet.
func (s *Store) AvgLatencyMs() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return avgMs(s.latencies)
}

func avgMs(latencies []time.Duration) float64 {
	if len(latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range latencies {
		sum += d
	}
	return (float64(sum) / float64(time.Millisecond)) / float64(len(latencies))
}

// Volatility estimates per-update mid-price volatility as the standard
// deviation of log returns over the rolling mid window. Returns 0 until
// enough mids have been observed.
func (s *Store) Volatility() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stddevLogReturns(s.midHistory)
}

func stddevLogReturns(mids []float64) float64 {
	if len(mids) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		prev, cur := mids[i-1], mids[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		rets = append(rets, math.Log(cur/prev))
	}
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	return math.Sqrt(variance)
}

// Bids returns a copy of the bid side, sorted descending by price.
func (s *Store) Bids() []domain.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLevels(s.bids, true)
}

// Asks returns a copy of the ask side, sorted ascending by price.
func (s *Store) Asks() []domain.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedLevels(s.asks, false)
}

// Snapshot returns a consistent copy of the whole book for external readers.
func (s *Store) Snapshot() domain.BookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.BookSnapshot{
		Venue:     s.venue,
		Symbol:    s.symbol,
		Bids:      sortedLevels(s.bids, true),
		Asks:      sortedLevels(s.asks, false),
		Timestamp: s.timestamp,
	}
}

// Stats returns one consistent view of every derived statistic, computed
// under a single read lock. ok is false while the book is invalid.
func (s *Store) Stats() (domain.BookStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return domain.BookStats{}, false
	}

	bb, _, _ := bestOf(s.bids, higher)
	ba, _, _ := bestOf(s.asks, lower)
	mid := (bb + ba) / 2
	var spreadPct float64
	if mid != 0 {
		spreadPct = (ba - bb) / mid * 100
	}
	bidDepth, askDepth := depthLocked(s.bids, s.asks, DefaultDepthLevels)

	return domain.BookStats{
		Venue:      s.venue,
		Symbol:     s.symbol,
		BestBid:    bb,
		BestAsk:    ba,
		MidPrice:   mid,
		Spread:     ba - bb,
		SpreadPct:  spreadPct,
		Imbalance:  imbalanceLocked(s.bids, s.asks),
		BidDepth:   bidDepth,
		AskDepth:   askDepth,
		BidLevels:  len(s.bids),
		AskLevels:  len(s.asks),
		LatencyMs:  avgMs(s.latencies),
		Volatility: stddevLogReturns(s.midHistory),
		UpdatedAt:  s.lastUpdateAt,
	}, true
}

func sortedLevels(side map[float64]float64, descending bool) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(side))
	for p, q := range side {
		levels = append(levels, domain.PriceLevel{Price: p, Quantity: q})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}
