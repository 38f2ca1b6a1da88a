package model

import (
	"math"
	"testing"
)

func TestEstimateImpactKnownValues(t *testing.T) {
	m := NewImpactModel(ImpactConfig{
		MarketImpactFactor: 0.1,
		VolatilityFactor:   0.3,
		RiskAversion:       1.0,
	})

	// quantity 4 against depth 100: normalized 0.04.
	est := m.EstimateImpact(4, 100, 0.01, 100)

	wantTemp := 0.1 * 0.01 * 100 * math.Sqrt(0.04) // 0.02
	if !almostEqualF(est.Temporary, wantTemp, 1e-12) {
		t.Errorf("temporary: got %v, want %v", est.Temporary, wantTemp)
	}
	wantPerm := 0.1 * 0.01 * 100 * 0.04 * 0.1 // 0.0004
	if !almostEqualF(est.Permanent, wantPerm, 1e-12) {
		t.Errorf("permanent: got %v, want %v", est.Permanent, wantPerm)
	}
	wantTotal := (wantTemp + wantPerm) * (1 + 1.0*0.01)
	if !almostEqualF(est.Total, wantTotal, 1e-12) {
		t.Errorf("total: got %v, want %v", est.Total, wantTotal)
	}
	if !almostEqualF(est.Pct, wantTotal/100*100, 1e-12) {
		t.Errorf("pct: got %v", est.Pct)
	}
}

func TestEstimateImpactNoDepthFallsBackToRawQuantity(t *testing.T) {
	m := NewImpactModel(ImpactConfig{MarketImpactFactor: 0.1, RiskAversion: 1})

	est := m.EstimateImpact(0.04, 100, 0.01, 0)
	want := 0.1 * 0.01 * 100 * math.Sqrt(0.04)
	if !almostEqualF(est.Temporary, want, 1e-12) {
		t.Errorf("temporary without depth: got %v, want %v", est.Temporary, want)
	}
}

func TestEstimateImpactFailsClosed(t *testing.T) {
	m := NewImpactModel(ImpactConfig{MarketImpactFactor: 0.1, RiskAversion: 1})

	cases := []struct {
		name                       string
		qty, price, vol, bookDepth float64
	}{
		{"nan volatility", 1, 100, math.NaN(), 100},
		{"inf price", 1, math.Inf(1), 0.01, 100},
		{"negative quantity", -1, 100, 0.01, 100},
	}
	for _, tc := range cases {
		est := m.EstimateImpact(tc.qty, tc.price, tc.vol, tc.bookDepth)
		if est.Temporary != 0 || est.Permanent != 0 || est.Total != 0 || est.Pct != 0 {
			t.Errorf("%s: expected all-zero impact, got %+v", tc.name, est)
		}
	}
}

func TestOptimizeScheduleWeights(t *testing.T) {
	for _, riskAversion := range []float64{0.2, 1.0} {
		m := NewImpactModel(ImpactConfig{MarketImpactFactor: 0.1, RiskAversion: riskAversion})
		sched := m.OptimizeSchedule(100, 5, 0.01, 1000, 95000)

		if len(sched.Weights) != scheduleSlices {
			t.Fatalf("risk %v: slices: got %d, want %d", riskAversion, len(sched.Weights), scheduleSlices)
		}

		var wsum, qsum float64
		for i := range sched.Weights {
			wsum += sched.Weights[i]
			qsum += sched.TradeSizes[i]
			if i > 0 && sched.Weights[i] > sched.Weights[i-1] {
				t.Errorf("risk %v: weights must decay, slice %d rose", riskAversion, i)
			}
		}
		if !almostEqualF(wsum, 1, 1e-9) {
			t.Errorf("risk %v: weights sum: got %v, want 1", riskAversion, wsum)
		}
		if !almostEqualF(qsum, 100, 1e-9) {
			t.Errorf("risk %v: trade sizes sum: got %v, want 100", riskAversion, qsum)
		}
		if sched.ExpectedPrice >= 95000 {
			t.Errorf("risk %v: expected price must reflect impact: got %v", riskAversion, sched.ExpectedPrice)
		}
		if !almostEqualF(sched.HoursPerSlice, 0.5, 1e-12) {
			t.Errorf("risk %v: hours per slice: got %v, want 0.5", riskAversion, sched.HoursPerSlice)
		}
	}
}

func TestOptimizeScheduleFrontLoadsWhenRiskAverse(t *testing.T) {
	averse := NewImpactModel(ImpactConfig{MarketImpactFactor: 0.1, RiskAversion: 2.0})
	neutral := NewImpactModel(ImpactConfig{MarketImpactFactor: 0.1, RiskAversion: 0.1})

	a := averse.OptimizeSchedule(100, 5, 0.01, 1000, 95000)
	n := neutral.OptimizeSchedule(100, 5, 0.01, 1000, 95000)

	if a.Weights[0] <= n.Weights[0] {
		t.Errorf("risk-averse first slice %v must exceed neutral %v", a.Weights[0], n.Weights[0])
	}
}

func almostEqualF(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
