package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantera/tradesim/internal/metrics"
	"github.com/quantera/tradesim/internal/sim"
)

// EstimateDefaults fills request fields the client omitted.
type EstimateDefaults struct {
	Exchange    string
	Asset       string
	QuantityUSD float64
	FeeTier     string
}

// EstimateHandler serves cost estimates and training sample ingestion.
type EstimateHandler struct {
	est      *sim.Estimator
	defaults EstimateDefaults
	logger   *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler.
func NewEstimateHandler(est *sim.Estimator, defaults EstimateDefaults, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{est: est, defaults: defaults, logger: logHandler(logger, "estimate")}
}

// PostEstimate prices a hypothetical order against the current book.
// POST /api/estimate
func (h *EstimateHandler) PostEstimate(w http.ResponseWriter, r *http.Request) {
	var req sim.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Exchange == "" {
		req.Exchange = h.defaults.Exchange
	}
	if req.Asset == "" {
		req.Asset = h.defaults.Asset
	}
	if req.OrderType == "" {
		req.OrderType = "market"
	}
	if req.QuantityUSD == 0 {
		req.QuantityUSD = h.defaults.QuantityUSD
	}
	if req.QuantityUSD < 0 {
		writeError(w, http.StatusBadRequest, "quantity_usd must be positive")
		return
	}
	if req.FeeTier == "" {
		req.FeeTier = h.defaults.FeeTier
	}

	start := time.Now()
	est := h.est.Calculate(r.Context(), req)
	metrics.EstimateDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.EstimatesTotal.Inc()

	writeJSON(w, http.StatusOK, est)
}

// sampleRequest is the wire shape for one observed execution outcome.
type sampleRequest struct {
	Model       string  `json:"model"` // "slippage" or "maker_taker"
	OrderSize   float64 `json:"order_size"`
	BookDepth   float64 `json:"book_depth"`
	Volatility  float64 `json:"volatility"`
	Imbalance   float64 `json:"imbalance"`
	SpreadPct   float64 `json:"spread_pct"`
	SlippagePct float64 `json:"slippage_pct"`
	IsMaker     bool    `json:"is_maker"`
}

// PostSample ingests one observed outcome into the matching predictor.
// POST /api/samples
func (h *EstimateHandler) PostSample(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch req.Model {
	case "slippage":
		h.est.AddSlippageSample(r.Context(), req.OrderSize, req.BookDepth, req.Volatility, req.Imbalance, req.SlippagePct)
	case "maker_taker":
		h.est.AddMakerTakerSample(r.Context(), req.OrderSize, req.BookDepth, req.Volatility, req.Imbalance, req.SpreadPct, req.IsMaker)
	default:
		writeError(w, http.StatusBadRequest, `model must be "slippage" or "maker_taker"`)
		return
	}
	metrics.TrainingSamplesTotal.WithLabelValues(req.Model).Inc()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
