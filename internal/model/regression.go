package model

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/quantera/tradesim/internal/domain"
)

const (
	// SlippageMinSamples is the minimum training-set size before the OLS
	// slippage model fits; below it the heuristic answers.
	SlippageMinSamples = 10

	// MakerTakerMinSamples is the minimum training-set size for the logistic
	// maker/taker model.
	MakerTakerMinSamples = 20

	// DefaultMaxSamples bounds each predictor's in-memory training window.
	// Oldest samples are evicted first.
	DefaultMaxSamples = 5000

	logitIterations = 500
	logitLearnRate  = 0.1
)

// sampleWindow is a bounded append-only-in-spirit training set; once full,
// the oldest sample is evicted per append.
type sampleWindow struct {
	features [][]float64
	labels   []float64
	max      int
}

func newSampleWindow(max int) *sampleWindow {
	if max <= 0 {
		max = DefaultMaxSamples
	}
	return &sampleWindow{max: max}
}

func (w *sampleWindow) add(features []float64, label float64) {
	w.features = append(w.features, features)
	w.labels = append(w.labels, label)
	if len(w.features) > w.max {
		w.features = w.features[1:]
		w.labels = w.labels[1:]
	}
}

func (w *sampleWindow) len() int { return len(w.features) }

// designMatrix builds the n x (d+1) design matrix with a leading intercept
// column, and the label vector.
func (w *sampleWindow) designMatrix(d int) (*mat.Dense, *mat.VecDense) {
	n := len(w.features)
	x := mat.NewDense(n, d+1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			x.Set(i, j+1, w.features[i][j])
		}
		y.SetVec(i, w.labels[i])
	}
	return x, y
}

// normalizeSize divides order size by book depth, falling back to the raw
// size when depth is unusable. Mirrors the feature used at training time.
func normalizeSize(orderSize, bookDepth float64) float64 {
	if bookDepth > 0 {
		return orderSize / bookDepth
	}
	return orderSize
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// ---------------------------------------------------------------------------
// Slippage predictor (ordinary least squares)
// ---------------------------------------------------------------------------

// SlippagePredictor estimates expected slippage percentage from
// [orderSize/bookDepth, volatility, imbalance] via OLS, with a closed-form
// heuristic until trained. Fit and predict failures are absorbed; callers
// always get a number.
type SlippagePredictor struct {
	mu      sync.Mutex
	window  *sampleWindow
	weights []float64 // [intercept, sizeNorm, volatility, imbalance]
	trained bool
	dirty   bool
}

// NewSlippagePredictor creates a predictor whose training window holds at
// most maxSamples entries (<= 0 selects DefaultMaxSamples).
func NewSlippagePredictor(maxSamples int) *SlippagePredictor {
	return &SlippagePredictor{window: newSampleWindow(maxSamples)}
}

// AddSample records one observed (order, slippagePct) outcome.
func (p *SlippagePredictor) AddSample(orderSize, bookDepth, volatility, imbalance, slippagePct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.add([]float64{normalizeSize(orderSize, bookDepth), volatility, imbalance}, slippagePct)
	p.dirty = true
}

// AddTrainingSample ingests a persisted sample with pre-built features.
func (p *SlippagePredictor) AddTrainingSample(s domain.TrainingSample) {
	if len(s.Features) != 3 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.add([]float64{s.Features[0], s.Features[1], s.Features[2]}, s.Label)
	p.dirty = true
}

// SampleCount returns the current training-window size.
func (p *SlippagePredictor) SampleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window.len()
}

// Trained reports whether a fitted model is currently in use.
func (p *SlippagePredictor) Trained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trained
}

// Fit refits the OLS coefficients. Returns an error when there are too few
// samples or the design matrix is numerically degenerate; the previous fit
// (or the heuristic) keeps answering in that case.
func (p *SlippagePredictor) Fit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fitLocked()
}

func (p *SlippagePredictor) fitLocked() error {
	if p.window.len() < SlippageMinSamples {
		return fmt.Errorf("model: slippage fit: %d/%d samples", p.window.len(), SlippageMinSamples)
	}
	x, y := p.window.designMatrix(3)

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y); err != nil {
		return fmt.Errorf("model: slippage fit: %w", err)
	}

	weights := make([]float64, 4)
	for i := range weights {
		weights[i] = beta.At(i, 0)
	}
	if hasBadNumber(weights...) {
		return fmt.Errorf("model: slippage fit: non-finite coefficients")
	}
	p.weights = weights
	p.trained = true
	p.dirty = false
	return nil
}

// Predict returns the expected slippage percentage for an order. Untrained
// (or when a pending refit fails) it answers with the heuristic
// 0.1 * (orderSize/bookDepth * 100); trained output is clamped non-negative.
func (p *SlippagePredictor) Predict(orderSize, bookDepth, volatility, imbalance float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dirty && p.window.len() >= SlippageMinSamples {
		_ = p.fitLocked()
	}

	if !p.trained {
		if bookDepth > 0 {
			return 0.1 * (orderSize / bookDepth * 100)
		}
		return 0.1
	}

	sizeNorm := normalizeSize(orderSize, bookDepth)
	pred := p.weights[0] + p.weights[1]*sizeNorm + p.weights[2]*volatility + p.weights[3]*imbalance
	if hasBadNumber(pred) {
		return 0.1
	}
	return math.Max(0, pred)
}

// ---------------------------------------------------------------------------
// Maker/taker predictor (logistic regression)
// ---------------------------------------------------------------------------

// MakerTakerPredictor estimates the probability of a maker fill from
// [orderSize/bookDepth, volatility, imbalance, spreadPct] via logistic
// regression fitted with batch gradient descent.
type MakerTakerPredictor struct {
	mu      sync.Mutex
	window  *sampleWindow
	weights *mat.VecDense // 5 entries incl. intercept
	trained bool
	dirty   bool
}

// NewMakerTakerPredictor creates a predictor whose training window holds at
// most maxSamples entries (<= 0 selects DefaultMaxSamples).
func NewMakerTakerPredictor(maxSamples int) *MakerTakerPredictor {
	return &MakerTakerPredictor{window: newSampleWindow(maxSamples)}
}

// AddSample records one observed fill: isMaker is the binary label.
func (p *MakerTakerPredictor) AddSample(orderSize, bookDepth, volatility, imbalance, spreadPct float64, isMaker bool) {
	label := 0.0
	if isMaker {
		label = 1.0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.add([]float64{normalizeSize(orderSize, bookDepth), volatility, imbalance, spreadPct}, label)
	p.dirty = true
}

// AddTrainingSample ingests a persisted sample with pre-built features.
func (p *MakerTakerPredictor) AddTrainingSample(s domain.TrainingSample) {
	if len(s.Features) != 4 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window.add([]float64{s.Features[0], s.Features[1], s.Features[2], s.Features[3]}, clamp01(s.Label))
	p.dirty = true
}

// SampleCount returns the current training-window size.
func (p *MakerTakerPredictor) SampleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window.len()
}

// Trained reports whether a fitted model is currently in use.
func (p *MakerTakerPredictor) Trained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trained
}

// Fit refits the logistic weights via gradient descent.
func (p *MakerTakerPredictor) Fit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fitLocked()
}

func (p *MakerTakerPredictor) fitLocked() error {
	n := p.window.len()
	if n < MakerTakerMinSamples {
		return fmt.Errorf("model: maker/taker fit: %d/%d samples", n, MakerTakerMinSamples)
	}
	x, y := p.window.designMatrix(4)
	_, cols := x.Dims()

	w := mat.NewVecDense(cols, nil)
	grad := mat.NewVecDense(cols, nil)
	xw := mat.NewVecDense(n, nil)

	for iter := 0; iter < logitIterations; iter++ {
		xw.MulVec(x, w)
		// grad = X^T (sigmoid(Xw) - y) / n
		for i := 0; i < n; i++ {
			xw.SetVec(i, sigmoid(xw.AtVec(i))-y.AtVec(i))
		}
		grad.MulVec(x.T(), xw)
		w.AddScaledVec(w, -logitLearnRate/float64(n), grad)
	}

	for i := 0; i < cols; i++ {
		if hasBadNumber(w.AtVec(i)) {
			return fmt.Errorf("model: maker/taker fit: non-finite weights")
		}
	}
	p.weights = w
	p.trained = true
	p.dirty = false
	return nil
}

// Predict returns the maker-fill probability in [0,1]. Untrained it answers
// the heuristic 0.5 - 0.5*(orderSize/bookDepth) + 0.1*spreadPct, clamped.
func (p *MakerTakerPredictor) Predict(orderSize, bookDepth, volatility, imbalance, spreadPct float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dirty && p.window.len() >= MakerTakerMinSamples {
		_ = p.fitLocked()
	}

	sizeNorm := normalizeSize(orderSize, bookDepth)
	if !p.trained {
		return clamp01(0.5 - 0.5*sizeNorm + 0.1*spreadPct)
	}

	z := p.weights.AtVec(0) +
		p.weights.AtVec(1)*sizeNorm +
		p.weights.AtVec(2)*volatility +
		p.weights.AtVec(3)*imbalance +
		p.weights.AtVec(4)*spreadPct
	if hasBadNumber(z) {
		return 0.5
	}
	return clamp01(sigmoid(z))
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
