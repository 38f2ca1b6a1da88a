package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quantera/tradesim/internal/book"
	"github.com/quantera/tradesim/internal/domain"
	"github.com/quantera/tradesim/internal/model"
	"github.com/quantera/tradesim/internal/sim"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore() *book.Store {
	s := book.NewStore("OKX", "BTC-USDT")
	s.Update(domain.BookSnapshot{
		Bids:      []domain.PriceLevel{{Price: 94999, Quantity: 5}},
		Asks:      []domain.PriceLevel{{Price: 95001, Quantity: 5}},
		Timestamp: time.Now(),
	}, time.Millisecond)
	return s
}

func newEstimateHandler(store *book.Store) *EstimateHandler {
	est := sim.NewEstimator(sim.Config{
		Store:             store,
		Slippage:          model.NewSlippagePredictor(0),
		MakerTaker:        model.NewMakerTakerPredictor(0),
		Impact:            model.NewImpactModel(model.ImpactConfig{MarketImpactFactor: 0.1, RiskAversion: 1}),
		FeeTiers:          map[string]domain.FeeTier{"Tier 1": {Maker: 0.0008, Taker: 0.0010}},
		DefaultVolatility: 0.01,
	}, testLogger())
	return NewEstimateHandler(est, EstimateDefaults{
		Exchange:    "OKX",
		Asset:       "BTC-USDT",
		QuantityUSD: 100,
		FeeTier:     "Tier 1",
	}, testLogger())
}

func TestPostEstimateAppliesDefaults(t *testing.T) {
	h := newEstimateHandler(seededStore())

	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.PostEstimate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var est domain.CostEstimate
	if err := json.Unmarshal(rec.Body.Bytes(), &est); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if est.Exchange != "OKX" || est.Asset != "BTC-USDT" || est.QuantityUSD != 100 {
		t.Errorf("defaults not applied: %+v", est)
	}
	if est.MidPrice != 95000 {
		t.Errorf("mid price: got %v, want 95000", est.MidPrice)
	}
}

func TestPostEstimateRejectsBadBody(t *testing.T) {
	h := newEstimateHandler(seededStore())

	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	h.PostEstimate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestPostEstimateRejectsNegativeQuantity(t *testing.T) {
	h := newEstimateHandler(seededStore())

	req := httptest.NewRequest(http.MethodPost, "/api/estimate", strings.NewReader(`{"quantity_usd": -5}`))
	rec := httptest.NewRecorder()
	h.PostEstimate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestPostSample(t *testing.T) {
	h := newEstimateHandler(seededStore())

	body := `{"model": "slippage", "order_size": 1, "book_depth": 10, "volatility": 0.01, "imbalance": 0.5, "slippage_pct": 0.2}`
	req := httptest.NewRequest(http.MethodPost, "/api/samples", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PostSample(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status: got %d, want 202; body %s", rec.Code, rec.Body.String())
	}
}

func TestPostSampleUnknownModel(t *testing.T) {
	h := newEstimateHandler(seededStore())

	req := httptest.NewRequest(http.MethodPost, "/api/samples", strings.NewReader(`{"model": "oracle"}`))
	rec := httptest.NewRecorder()
	h.PostSample(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestGetBookEmpty(t *testing.T) {
	h := NewBookHandler(book.NewStore("OKX", "BTC-USDT"), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/book", nil)
	rec := httptest.NewRecorder()
	h.GetBook(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}

func TestGetBookStats(t *testing.T) {
	h := NewBookHandler(seededStore(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/book/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var stats domain.BookStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.MidPrice != 95000 || stats.Spread != 2 {
		t.Errorf("stats: got mid=%v spread=%v", stats.MidPrice, stats.Spread)
	}
}

func TestGetBookDepthParam(t *testing.T) {
	s := book.NewStore("OKX", "BTC-USDT")
	var bids, asks []domain.PriceLevel
	for i := 0; i < 20; i++ {
		bids = append(bids, domain.PriceLevel{Price: 94999 - float64(i), Quantity: 1})
		asks = append(asks, domain.PriceLevel{Price: 95001 + float64(i), Quantity: 1})
	}
	s.Update(domain.BookSnapshot{Bids: bids, Asks: asks}, 0)
	h := NewBookHandler(s, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/book?depth=3", nil)
	rec := httptest.NewRecorder()
	h.GetBook(rec, req)

	var resp struct {
		Bids []domain.PriceLevel `json:"bids"`
		Asks []domain.PriceLevel `json:"asks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Bids) != 3 || len(resp.Asks) != 3 {
		t.Errorf("depth bound: got %d bids / %d asks, want 3 each", len(resp.Bids), len(resp.Asks))
	}
}
