package model

import (
	"math"
	"testing"

	"github.com/quantera/tradesim/internal/domain"
)

func TestSlippageHeuristic(t *testing.T) {
	p := NewSlippagePredictor(0)

	// 5 units against depth 100: 0.1 * (0.05 * 100) = 0.5.
	if got := p.Predict(5, 100, 0.01, 0.5); !almostEqualF(got, 0.5, 1e-12) {
		t.Errorf("heuristic: got %v, want 0.5", got)
	}
	// Unusable depth falls back to the flat constant.
	if got := p.Predict(5, 0, 0.01, 0.5); got != 0.1 {
		t.Errorf("no-depth heuristic: got %v, want 0.1", got)
	}
	if p.Trained() {
		t.Error("predictor must not report trained without samples")
	}
}

func TestSlippageFitRecoversLinearModel(t *testing.T) {
	p := NewSlippagePredictor(0)

	// Exact linear data: y = 1 + 2*sizeNorm + 3*vol + 0.5*imb, depth 1 so
	// sizeNorm equals the raw order size.
	gen := func(size, vol, imb float64) float64 {
		return 1 + 2*size + 3*vol + 0.5*imb
	}
	for si := 1; si <= 4; si++ {
		for vi := 1; vi <= 3; vi++ {
			size := 0.1 * float64(si)
			vol := 0.01 * float64(vi)
			imb := 0.2 + 0.15*float64((si*3+vi)%4)
			p.AddSample(size, 1, vol, imb, gen(size, vol, imb))
		}
	}
	if p.SampleCount() < SlippageMinSamples {
		t.Fatalf("need at least %d samples, have %d", SlippageMinSamples, p.SampleCount())
	}

	if err := p.Fit(); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !p.Trained() {
		t.Fatal("predictor must report trained after a successful fit")
	}

	got := p.Predict(0.25, 1, 0.02, 0.5)
	want := gen(0.25, 0.02, 0.5)
	if !almostEqualF(got, want, 1e-6) {
		t.Errorf("trained prediction: got %v, want %v", got, want)
	}
}

func TestSlippagePredictionClampedNonNegative(t *testing.T) {
	p := NewSlippagePredictor(0)

	// All-zero labels force an all-zero fit; any negative drift must clamp.
	for i := 0; i < SlippageMinSamples+2; i++ {
		p.AddSample(float64(i+1)*0.1, 1, 0.01*float64(i%3+1), 0.1*float64(i%5), 0)
	}
	if got := p.Predict(10, 1, 0.05, 0.9); got < 0 {
		t.Errorf("prediction must not be negative: got %v", got)
	}
}

func TestSlippageFitRequiresMinSamples(t *testing.T) {
	p := NewSlippagePredictor(0)
	p.AddSample(1, 10, 0.01, 0.5, 0.2)

	if err := p.Fit(); err == nil {
		t.Error("fit must fail below the minimum sample count")
	}
	if p.Trained() {
		t.Error("failed fit must not mark the predictor trained")
	}
}

func TestSampleWindowEviction(t *testing.T) {
	p := NewSlippagePredictor(5)
	for i := 0; i < 9; i++ {
		p.AddSample(float64(i), 10, 0.01, 0.5, 0.1)
	}
	if got := p.SampleCount(); got != 5 {
		t.Errorf("window size: got %d, want 5", got)
	}
}

func TestSlippageAddTrainingSampleShape(t *testing.T) {
	p := NewSlippagePredictor(0)
	p.AddTrainingSample(domain.TrainingSample{Model: "slippage", Features: []float64{0.1, 0.01, 0.5}, Label: 0.2})
	p.AddTrainingSample(domain.TrainingSample{Model: "slippage", Features: []float64{0.1}, Label: 0.2}) // wrong arity, dropped
	if got := p.SampleCount(); got != 1 {
		t.Errorf("sample count: got %d, want 1", got)
	}
}

func TestMakerTakerHeuristic(t *testing.T) {
	p := NewMakerTakerPredictor(0)

	// Zero-size order, no spread: neutral.
	if got := p.Predict(0, 100, 0.01, 0.5, 0); got != 0.5 {
		t.Errorf("neutral heuristic: got %v, want 0.5", got)
	}
	// Huge order: clamped to 0.
	if got := p.Predict(500, 100, 0.01, 0.5, 0); got != 0 {
		t.Errorf("oversized heuristic: got %v, want 0", got)
	}
	// Wider spread raises the maker probability.
	narrow := p.Predict(10, 100, 0.01, 0.5, 0.1)
	wide := p.Predict(10, 100, 0.01, 0.5, 2.0)
	if wide <= narrow {
		t.Errorf("wider spread must raise maker probability: %v <= %v", wide, narrow)
	}
}

func TestMakerTakerFitSeparatesBySize(t *testing.T) {
	p := NewMakerTakerPredictor(0)

	// Small orders fill as maker, large ones as taker.
	for i := 0; i < 15; i++ {
		p.AddSample(0.5+0.05*float64(i%5), 10, 0.01, 0.5, 0.3, true)
	}
	for i := 0; i < 15; i++ {
		p.AddSample(8+0.2*float64(i%5), 10, 0.01, 0.5, 0.3, false)
	}

	if err := p.Fit(); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !p.Trained() {
		t.Fatal("predictor must report trained after a successful fit")
	}

	small := p.Predict(0.6, 10, 0.01, 0.5, 0.3)
	large := p.Predict(9, 10, 0.01, 0.5, 0.3)
	if small < 0 || small > 1 || large < 0 || large > 1 {
		t.Fatalf("probabilities out of range: small=%v large=%v", small, large)
	}
	if small <= large {
		t.Errorf("small orders must be likelier maker fills: small=%v large=%v", small, large)
	}
}

func TestMakerTakerFitRequiresMinSamples(t *testing.T) {
	p := NewMakerTakerPredictor(0)
	for i := 0; i < MakerTakerMinSamples-1; i++ {
		p.AddSample(1, 10, 0.01, 0.5, 0.3, i%2 == 0)
	}
	if err := p.Fit(); err == nil {
		t.Error("fit must fail below the minimum sample count")
	}
}

func TestClamp01(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.5, 1},
	}
	for _, tc := range cases {
		if got := clamp01(tc.in); got != tc.want {
			t.Errorf("clamp01(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSigmoid(t *testing.T) {
	if got := sigmoid(0); got != 0.5 {
		t.Errorf("sigmoid(0): got %v, want 0.5", got)
	}
	if got := sigmoid(100); !almostEqualF(got, 1, 1e-9) {
		t.Errorf("sigmoid(100): got %v, want ~1", got)
	}
	if got := sigmoid(-100); !almostEqualF(got, 0, 1e-9) {
		t.Errorf("sigmoid(-100): got %v, want ~0", got)
	}
	if math.IsNaN(sigmoid(math.Inf(-1))) {
		t.Error("sigmoid(-inf) must not be NaN")
	}
}
