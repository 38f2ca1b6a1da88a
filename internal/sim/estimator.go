// Package sim composes the book store, the regression predictors, and the
// market impact model into transaction-cost estimates for hypothetical orders.
package sim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantera/tradesim/internal/book"
	"github.com/quantera/tradesim/internal/domain"
	"github.com/quantera/tradesim/internal/model"
)

// Request holds the parameters of one hypothetical order.
type Request struct {
	Exchange    string  `json:"exchange"`
	Asset       string  `json:"asset"`
	OrderType   string  `json:"order_type"`
	QuantityUSD float64 `json:"quantity_usd"`
	Volatility  float64 `json:"volatility"` // <= 0 uses the book's rolling estimate
	FeeTier     string  `json:"fee_tier"`
}

// Estimator is the read-only analytical engine behind the presentation layer.
// It never mutates the book.
type Estimator struct {
	store      *book.Store
	slippage   *model.SlippagePredictor
	makerTaker *model.MakerTakerPredictor
	impact     *model.ImpactModel
	feeTiers   map[string]domain.FeeTier
	defaultVol float64
	samples    domain.SampleStore // optional, nil when persistence is disabled
	logger     *slog.Logger
}

// Config bundles the estimator's collaborators and parameters.
type Config struct {
	Store             *book.Store
	Slippage          *model.SlippagePredictor
	MakerTaker        *model.MakerTakerPredictor
	Impact            *model.ImpactModel
	FeeTiers          map[string]domain.FeeTier
	DefaultVolatility float64
	Samples           domain.SampleStore
}

// NewEstimator creates an Estimator.
func NewEstimator(cfg Config, logger *slog.Logger) *Estimator {
	return &Estimator{
		store:      cfg.Store,
		slippage:   cfg.Slippage,
		makerTaker: cfg.MakerTaker,
		impact:     cfg.Impact,
		feeTiers:   cfg.FeeTiers,
		defaultVol: cfg.DefaultVolatility,
		samples:    cfg.Samples,
		logger:     logger.With(slog.String("component", "estimator")),
	}
}

// Calculate produces a CostEstimate for the request against the current book.
// It always returns a structurally valid estimate: when the book has no data
// the result is all-zero with a neutral maker proportion, never an error.
func (e *Estimator) Calculate(ctx context.Context, req Request) domain.CostEstimate {
	est := domain.CostEstimate{
		ID:              uuid.NewString(),
		Exchange:        req.Exchange,
		Asset:           req.Asset,
		OrderType:       req.OrderType,
		QuantityUSD:     req.QuantityUSD,
		MakerProportion: 0.5,
		CreatedAt:       time.Now(),
	}

	mid, ok := e.store.MidPrice()
	if !ok || mid <= 0 || req.QuantityUSD <= 0 {
		est.Degraded = true
		return est
	}
	est.MidPrice = mid
	est.LatencyMs = e.store.AvgLatencyMs()

	assetQty := req.QuantityUSD / mid

	volatility := req.Volatility
	if volatility <= 0 {
		volatility = e.store.Volatility()
	}
	if volatility <= 0 {
		volatility = e.defaultVol
	}

	imbalance := e.store.Imbalance()
	_, askDepth := e.store.Depth(book.DefaultDepthLevels)
	spreadPct, _ := e.store.SpreadPct()

	// Slippage: prefer the actual walk against the book, let the predictor
	// smooth it. A walk that cannot fill marks the estimate degraded but the
	// predictor still prices the order.
	if _, _, err := e.store.EstimateSlippage(assetQty, domain.SideBuy); err != nil {
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			e.logger.DebugContext(ctx, "order exceeds visible liquidity",
				slog.Float64("asset_qty", assetQty),
				slog.Float64("ask_depth", askDepth),
			)
			est.Degraded = true
		}
	}
	est.SlippagePct = e.slippage.Predict(assetQty, askDepth, volatility, imbalance)
	est.SlippageUSD = est.SlippagePct / 100 * req.QuantityUSD

	// Fees: blend maker and taker rates by predicted maker proportion.
	est.MakerProportion = e.makerTaker.Predict(assetQty, askDepth, volatility, imbalance, spreadPct)
	tier, ok := e.feeTiers[req.FeeTier]
	if !ok {
		tier = e.highestFeeTier()
	}
	feeRate := est.MakerProportion*tier.Maker + (1-est.MakerProportion)*tier.Taker
	est.FeePct = feeRate * 100
	est.FeeUSD = feeRate * req.QuantityUSD

	// Market impact.
	impact := e.impact.EstimateImpact(assetQty, mid, volatility, askDepth)
	est.ImpactPct = impact.Pct
	est.ImpactUSD = impact.Total * assetQty

	est.NetCostUSD = est.SlippageUSD + est.FeeUSD + est.ImpactUSD
	est.NetCostPct = est.NetCostUSD / req.QuantityUSD * 100

	return est
}

// highestFeeTier picks the most expensive configured tier as the fallback
// when a request names an unknown tier.
func (e *Estimator) highestFeeTier() domain.FeeTier {
	var worst domain.FeeTier
	for _, t := range e.feeTiers {
		if t.Taker > worst.Taker {
			worst = t
		}
	}
	return worst
}

// AddSlippageSample records an observed slippage outcome for model training
// and, when a sample store is configured, persists it.
func (e *Estimator) AddSlippageSample(ctx context.Context, orderSize, bookDepth, volatility, imbalance, slippagePct float64) {
	e.slippage.AddSample(orderSize, bookDepth, volatility, imbalance, slippagePct)
	e.persist(ctx, domain.TrainingSample{
		Model:      "slippage",
		Features:   []float64{normFeature(orderSize, bookDepth), volatility, imbalance},
		Label:      slippagePct,
		ObservedAt: time.Now(),
	})
}

// AddMakerTakerSample records an observed maker/taker fill outcome.
func (e *Estimator) AddMakerTakerSample(ctx context.Context, orderSize, bookDepth, volatility, imbalance, spreadPct float64, isMaker bool) {
	e.makerTaker.AddSample(orderSize, bookDepth, volatility, imbalance, spreadPct, isMaker)
	label := 0.0
	if isMaker {
		label = 1.0
	}
	e.persist(ctx, domain.TrainingSample{
		Model:      "maker_taker",
		Features:   []float64{normFeature(orderSize, bookDepth), volatility, imbalance, spreadPct},
		Label:      label,
		ObservedAt: time.Now(),
	})
}

func (e *Estimator) persist(ctx context.Context, s domain.TrainingSample) {
	if e.samples == nil {
		return
	}
	if err := e.samples.InsertBatch(ctx, []domain.TrainingSample{s}); err != nil {
		e.logger.WarnContext(ctx, "persist training sample failed",
			slog.String("model", s.Model),
			slog.String("error", err.Error()),
		)
	}
}

// WarmStart loads persisted samples into both predictors. Called once during
// wiring when a sample store is configured.
func (e *Estimator) WarmStart(ctx context.Context, limit int) error {
	if e.samples == nil {
		return nil
	}
	for _, name := range []string{"slippage", "maker_taker"} {
		samples, err := e.samples.ListRecent(ctx, name, limit)
		if err != nil {
			return err
		}
		for _, s := range samples {
			switch name {
			case "slippage":
				e.slippage.AddTrainingSample(s)
			case "maker_taker":
				e.makerTaker.AddTrainingSample(s)
			}
		}
		e.logger.InfoContext(ctx, "warm-started predictor",
			slog.String("model", name),
			slog.Int("samples", len(samples)),
		)
	}
	return nil
}

func normFeature(orderSize, bookDepth float64) float64 {
	if bookDepth > 0 {
		return orderSize / bookDepth
	}
	return orderSize
}
