package domain

import "time"

// CostEstimate is the output of one transaction-cost calculation. Immutable
// once produced; all *Pct fields are percentages of the USD order size.
type CostEstimate struct {
	ID              string    `json:"id"`
	Exchange        string    `json:"exchange"`
	Asset           string    `json:"asset"`
	OrderType       string    `json:"order_type"`
	QuantityUSD     float64   `json:"quantity_usd"`
	MidPrice        float64   `json:"mid_price"`
	SlippagePct     float64   `json:"slippage_pct"`
	SlippageUSD     float64   `json:"slippage_usd"`
	FeePct          float64   `json:"fee_pct"`
	FeeUSD          float64   `json:"fee_usd"`
	ImpactPct       float64   `json:"impact_pct"`
	ImpactUSD       float64   `json:"impact_usd"`
	NetCostPct      float64   `json:"net_cost_pct"`
	NetCostUSD      float64   `json:"net_cost_usd"`
	MakerProportion float64   `json:"maker_proportion"`
	LatencyMs       float64   `json:"latency_ms"`
	Degraded        bool      `json:"degraded"` // book could not fully price the order
	CreatedAt       time.Time `json:"created_at"`
}

// ImpactEstimate is the Almgren-Chriss decomposition for a single trade.
type ImpactEstimate struct {
	Temporary float64 `json:"temporary"`
	Permanent float64 `json:"permanent"`
	Total     float64 `json:"total"`
	Pct       float64 `json:"pct"`
}

// ExecutionSchedule is an optimal execution plan split into fixed time slices.
type ExecutionSchedule struct {
	Weights       []float64 `json:"weights"`
	TradeSizes    []float64 `json:"trade_sizes"`
	SliceImpacts  []float64 `json:"slice_impacts"`
	TotalImpact   float64   `json:"total_impact"`
	ExpectedPrice float64   `json:"expected_price"`
	HoursPerSlice float64   `json:"hours_per_slice"`
}

// TrainingSample is one observed (features, label) pair for a predictor.
type TrainingSample struct {
	Model      string    `json:"model"` // "slippage" or "maker_taker"
	Features   []float64 `json:"features"`
	Label      float64   `json:"label"`
	ObservedAt time.Time `json:"observed_at"`
}

// FeeTier is one row of an exchange fee schedule.
type FeeTier struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}
