// Package gp implements exact Gaussian-process regression with an isotropic
// RBF kernel. Kernel hyperparameters are fitted by maximising the log marginal
// likelihood with L-BFGS from gonum, restarting from log-uniform samples inside
// the configured length-scale bounds.
//
// A Regressor is mutated only by Fit. Predict and State are safe for
// concurrent use once Fit (or Restore) has returned.
package gp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	minJitter         = 1e-10
	maxJitterAttempts = 6
)

var (
	// ErrNotFitted is returned by Predict before Fit or Restore.
	ErrNotFitted = errors.New("gaussian process is not fitted")
	// ErrEmptyData is returned when Fit receives no samples.
	ErrEmptyData = errors.New("no training samples")
	// ErrDimension is returned for inputs whose length does not match the fitted dimension.
	ErrDimension = errors.New("input dimension mismatch")
	// ErrNotPositiveDefinite is returned when the kernel matrix cannot be factorised.
	ErrNotPositiveDefinite = errors.New("kernel matrix is not positive definite")
)

// KernelConfig holds the fixed hyperparameter configuration of the regressor.
type KernelConfig struct {
	LengthScale       float64    `yaml:"lengthScale" json:"length_scale"`
	LengthScaleBounds [2]float64 `yaml:"lengthScaleBounds" json:"length_scale_bounds"`
	Alpha             float64    `yaml:"alpha" json:"alpha"`
	Restarts          int        `yaml:"restarts" json:"restarts"`
	NormalizeY        bool       `yaml:"normalizeY" json:"normalize_y"`
	RandomState       int64      `yaml:"randomState" json:"random_state"`
}

// DefaultKernelConfig mirrors the configuration used for the main training corpus.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		LengthScale:       0.2,
		LengthScaleBounds: [2]float64{1e-4, 1e2},
		Alpha:             1e-9,
		Restarts:          5,
		NormalizeY:        true,
		RandomState:       42,
	}
}

// Validate checks that the configuration describes a usable kernel.
func (c KernelConfig) Validate() error {
	lo, hi := c.LengthScaleBounds[0], c.LengthScaleBounds[1]
	if lo <= 0 || hi <= 0 || lo > hi {
		return fmt.Errorf("length scale bounds must be positive and ordered, got [%g, %g]", lo, hi)
	}
	if c.LengthScale < lo || c.LengthScale > hi {
		return fmt.Errorf("initial length scale %g outside bounds [%g, %g]", c.LengthScale, lo, hi)
	}
	if c.Alpha < 0 {
		return fmt.Errorf("alpha must be non-negative, got %g", c.Alpha)
	}
	if c.Restarts < 0 {
		return fmt.Errorf("optimizer restarts must be non-negative, got %d", c.Restarts)
	}
	return nil
}

// Regressor is a Gaussian-process regressor over fixed-dimension inputs.
type Regressor struct {
	cfg KernelConfig

	x           [][]float64
	yNorm       []float64
	yMean       float64
	yStd        float64
	lengthScale float64
	jitter      float64
	lml         float64

	chol   mat.Cholesky
	dual   *mat.VecDense
	fitted bool
}

// New creates an unfitted regressor.
func New(cfg KernelConfig) *Regressor {
	return &Regressor{cfg: cfg, lengthScale: cfg.LengthScale}
}

// Config returns the kernel configuration the regressor was built with.
func (r *Regressor) Config() KernelConfig { return r.cfg }

// Fitted reports whether the regressor holds fitted parameters.
func (r *Regressor) Fitted() bool { return r.fitted }

// LengthScale returns the fitted (or initial) RBF length scale.
func (r *Regressor) LengthScale() float64 { return r.lengthScale }

// LogMarginalLikelihood returns the log marginal likelihood at the fitted length scale.
func (r *Regressor) LogMarginalLikelihood() float64 { return r.lml }

// NumPoints returns the number of samples in the current fit.
func (r *Regressor) NumPoints() int { return len(r.x) }

// Dim returns the input dimension of the current fit, or 0 when unfitted.
func (r *Regressor) Dim() int {
	if len(r.x) == 0 {
		return 0
	}
	return len(r.x[0])
}

// Fit replaces any previous fit with one trained on x and y. The length scale
// search always starts from the configured initial value, never from the
// result of an earlier fit.
func (r *Regressor) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 {
		return ErrEmptyData
	}
	if len(y) != n {
		return fmt.Errorf("%w: %d inputs but %d targets", ErrDimension, n, len(y))
	}
	dim := len(x[0])
	for i := range x {
		if len(x[i]) != dim {
			return fmt.Errorf("%w: row %d has length %d, expected %d", ErrDimension, i, len(x[i]), dim)
		}
	}

	xs := make([][]float64, n)
	for i := range x {
		xs[i] = append([]float64(nil), x[i]...)
	}
	yNorm, yMean, yStd := normalizeTargets(y, r.cfg.NormalizeY)
	dist := squaredDistances(xs)

	theta := r.optimize(dist, yNorm)

	r.x = xs
	r.yNorm = yNorm
	r.yMean = yMean
	r.yStd = yStd
	r.lengthScale = math.Exp(theta)
	r.fitted = false

	jitter := r.cfg.Alpha
	for attempt := 0; ; attempt++ {
		err := r.factorize(jitter)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNotPositiveDefinite) || attempt == maxJitterAttempts {
			return err
		}
		jitter = math.Max(jitter, minJitter) * 10
	}
	r.fitted = true
	return nil
}

// Predict returns the posterior mean and standard deviation at x.
func (r *Regressor) Predict(x []float64) (mean, std float64, err error) {
	if !r.fitted {
		return 0, 0, ErrNotFitted
	}
	if len(x) != r.Dim() {
		return 0, 0, fmt.Errorf("%w: got %d, expected %d", ErrDimension, len(x), r.Dim())
	}

	n := len(r.x)
	inv := 1 / (r.lengthScale * r.lengthScale)
	kstar := mat.NewVecDense(n, nil)
	for i, xi := range r.x {
		kstar.SetVec(i, math.Exp(-0.5*sqDist(x, xi)*inv))
	}

	mean = mat.Dot(kstar, r.dual)

	var w mat.VecDense
	if err := hardError(r.chol.SolveVecTo(&w, kstar)); err != nil {
		return 0, 0, fmt.Errorf("solve predictive variance: %w", err)
	}
	variance := 1 - mat.Dot(kstar, &w)
	if variance < 0 {
		variance = 0
	}

	return mean*r.yStd + r.yMean, math.Sqrt(variance) * r.yStd, nil
}

// factorize computes the Cholesky factor and dual coefficients for the
// current samples and length scale, with jitter on the diagonal.
func (r *Regressor) factorize(jitter float64) error {
	n := len(r.x)
	k := kernelMatrix(squaredDistances(r.x), r.lengthScale, jitter)
	if ok := r.chol.Factorize(k); !ok {
		return fmt.Errorf("%w (n=%d, length_scale=%g)", ErrNotPositiveDefinite, n, r.lengthScale)
	}

	y := mat.NewVecDense(n, append([]float64(nil), r.yNorm...))
	dual := mat.NewVecDense(n, nil)
	if err := hardError(r.chol.SolveVecTo(dual, y)); err != nil {
		return fmt.Errorf("solve dual coefficients: %w", err)
	}
	r.dual = dual
	r.jitter = jitter
	r.lml = -0.5*mat.Dot(y, dual) - 0.5*r.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	return nil
}

// optimize returns the log length scale maximising the log marginal
// likelihood. Every finite evaluation is tracked so a failed line search
// still yields the best point seen.
func (r *Regressor) optimize(dist *mat.SymDense, y []float64) float64 {
	lo, hi := math.Log(r.cfg.LengthScaleBounds[0]), math.Log(r.cfg.LengthScaleBounds[1])
	theta0 := math.Log(r.cfg.LengthScale)
	if lo == hi {
		return lo
	}

	bestTheta, bestF := theta0, math.Inf(1)
	toTheta := func(u float64) float64 { return lo + (hi-lo)*sigmoid(u) }

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			theta := toTheta(u[0])
			f, _ := negLogMarginal(dist, y, theta, r.cfg.Alpha)
			if f < bestF {
				bestF, bestTheta = f, theta
			}
			return f
		},
		Grad: func(grad, u []float64) {
			theta := toTheta(u[0])
			_, g := negLogMarginal(dist, y, theta, r.cfg.Alpha)
			s := sigmoid(u[0])
			grad[0] = g * (hi - lo) * s * (1 - s)
		},
	}

	starts := []float64{theta0}
	rng := rand.New(rand.NewSource(r.cfg.RandomState))
	for i := 0; i < r.cfg.Restarts; i++ {
		starts = append(starts, lo+(hi-lo)*rng.Float64())
	}

	settings := &optimize.Settings{MajorIterations: 100}
	for _, start := range starts {
		u0 := logit((start - lo) / (hi - lo))
		// Failures leave bestTheta at the best evaluation so far.
		_, _ = optimize.Minimize(problem, []float64{u0}, settings, &optimize.LBFGS{})
	}

	return bestTheta
}

// negLogMarginal returns the negative log marginal likelihood and its
// derivative with respect to the log length scale.
func negLogMarginal(dist *mat.SymDense, y []float64, theta, alpha float64) (float64, float64) {
	n := len(y)
	l := math.Exp(theta)
	k := kernelMatrix(dist, l, alpha)

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return math.Inf(1), 0
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var a mat.VecDense
	if err := hardError(chol.SolveVecTo(&a, yv)); err != nil {
		return math.Inf(1), 0
	}
	lml := -0.5*mat.Dot(yv, &a) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)

	var kinv mat.SymDense
	if err := hardError(chol.InverseTo(&kinv)); err != nil {
		return -lml, 0
	}

	inv := 1 / (l * l)
	var grad float64
	for i := 0; i < n; i++ {
		ai := a.AtVec(i)
		for j := 0; j < n; j++ {
			d := dist.At(i, j)
			dk := math.Exp(-0.5*d*inv) * d * inv
			grad += (ai*a.AtVec(j) - kinv.At(i, j)) * dk
		}
	}
	return -lml, -0.5 * grad
}

func kernelMatrix(dist *mat.SymDense, lengthScale, alpha float64) *mat.SymDense {
	n, _ := dist.Dims()
	inv := 1 / (lengthScale * lengthScale)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := math.Exp(-0.5 * dist.At(i, j) * inv)
			if i == j {
				v += alpha
			}
			k.SetSym(i, j, v)
		}
	}
	return k
}

func squaredDistances(x [][]float64) *mat.SymDense {
	n := len(x)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, sqDist(x[i], x[j]))
		}
	}
	return d
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return s
}

// normalizeTargets centres and scales y. A zero spread leaves the scale at 1.
func normalizeTargets(y []float64, enabled bool) ([]float64, float64, float64) {
	out := append([]float64(nil), y...)
	if !enabled {
		return out, 0, 1
	}

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ss float64
	for _, v := range y {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(len(y)))
	if std == 0 {
		std = 1
	}

	for i := range out {
		out[i] = (out[i] - mean) / std
	}
	return out, mean, std
}

// hardError drops mat.Condition, which gonum reports for ill-conditioned but
// still usable solves.
func hardError(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}

func sigmoid(u float64) float64 { return 1 / (1 + math.Exp(-u)) }

func logit(p float64) float64 {
	const eps = 1e-6
	p = math.Min(math.Max(p, eps), 1-eps)
	return math.Log(p / (1 - p))
}
