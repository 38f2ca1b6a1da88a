// Package model holds the numerical cost models: the Almgren-Chriss market
// impact model and the regression predictors for slippage and maker/taker
// proportion.
package model

import (
	"math"

	"github.com/quantera/tradesim/internal/domain"
)

// scheduleSlices is the fixed number of time slices the execution optimizer
// splits an order into.
const scheduleSlices = 10

// ImpactConfig holds the Almgren-Chriss model parameters.
type ImpactConfig struct {
	MarketImpactFactor float64 // temporary impact coefficient k
	VolatilityFactor   float64 // retained for schedule shaping
	RiskAversion       float64
}

// ImpactModel implements the Almgren-Chriss closed-form market impact model:
// square-root temporary impact, linear permanent impact, and a sliced
// execution schedule trading off impact against timing risk.
type ImpactModel struct {
	cfg ImpactConfig
}

// NewImpactModel creates an ImpactModel with the given parameters.
func NewImpactModel(cfg ImpactConfig) *ImpactModel {
	return &ImpactModel{cfg: cfg}
}

// EstimateImpact computes the impact of trading quantity units at the given
// price. bookDepth normalizes the order size; a depth <= 0 falls back to the
// raw quantity. On any numeric failure the model fails closed and returns
// all-zero impact instead of propagating NaN.
func (m *ImpactModel) EstimateImpact(quantity, price, volatility, bookDepth float64) domain.ImpactEstimate {
	normalized := quantity
	if bookDepth > 0 {
		normalized = quantity / bookDepth
	}

	// Square-root law for the immediate move, linear law (10% coupling) for
	// the persistent one.
	temporary := m.cfg.MarketImpactFactor * volatility * price * math.Sqrt(normalized)
	permanent := m.cfg.MarketImpactFactor * volatility * price * normalized * 0.1
	total := (temporary + permanent) * (1 + m.cfg.RiskAversion*volatility)

	var pct float64
	if price > 0 {
		pct = total / price * 100
	}

	est := domain.ImpactEstimate{
		Temporary: temporary,
		Permanent: permanent,
		Total:     total,
		Pct:       pct,
	}
	if hasBadNumber(temporary, permanent, total, pct) {
		return domain.ImpactEstimate{}
	}
	return est
}

// OptimizeSchedule splits totalQuantity into scheduleSlices trades over
// targetHours. Risk-averse parameterizations (riskAversion > 0.5) front-load
// exponentially; otherwise the weights decay linearly. Weights are normalized
// to sum to 1 and each slice's impact is priced independently.
func (m *ImpactModel) OptimizeSchedule(totalQuantity, targetHours, volatility, bookDepth, price float64) domain.ExecutionSchedule {
	weights := make([]float64, scheduleSlices)
	var sum float64
	for i := range weights {
		if m.cfg.RiskAversion > 0.5 {
			weights[i] = math.Exp(-m.cfg.RiskAversion * float64(i) / scheduleSlices)
		} else {
			weights[i] = 1 - float64(i)/scheduleSlices
		}
		sum += weights[i]
	}
	if sum <= 0 || hasBadNumber(sum) {
		return domain.ExecutionSchedule{ExpectedPrice: price}
	}

	sizes := make([]float64, scheduleSlices)
	impacts := make([]float64, scheduleSlices)
	var totalImpact float64
	for i := range weights {
		weights[i] /= sum
		sizes[i] = weights[i] * totalQuantity
		impacts[i] = m.EstimateImpact(sizes[i], price, volatility, bookDepth).Total
		totalImpact += impacts[i]
	}

	expected := price
	if totalQuantity > 0 {
		expected = price - totalImpact/totalQuantity
	}

	return domain.ExecutionSchedule{
		Weights:       weights,
		TradeSizes:    sizes,
		SliceImpacts:  impacts,
		TotalImpact:   totalImpact,
		ExpectedPrice: expected,
		HoursPerSlice: targetHours / scheduleSlices,
	}
}

func hasBadNumber(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
