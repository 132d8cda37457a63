package gp

import "fmt"

// State is the serialisable form of a fitted regressor. The Cholesky factor
// and dual coefficients are rebuilt on Restore with the stored jitter, so a
// restored regressor predicts exactly what the saved one did.
type State struct {
	Kernel      KernelConfig `json:"kernel"`
	X           [][]float64  `json:"x"`
	YNorm       []float64    `json:"y_norm"`
	YMean       float64      `json:"y_mean"`
	YStd        float64      `json:"y_std"`
	LengthScale float64      `json:"length_scale"`
	Jitter      float64      `json:"jitter"`
}

// State returns a copy of the fitted parameters.
func (r *Regressor) State() (State, error) {
	if !r.fitted {
		return State{}, ErrNotFitted
	}
	x := make([][]float64, len(r.x))
	for i := range r.x {
		x[i] = append([]float64(nil), r.x[i]...)
	}
	return State{
		Kernel:      r.cfg,
		X:           x,
		YNorm:       append([]float64(nil), r.yNorm...),
		YMean:       r.yMean,
		YStd:        r.yStd,
		LengthScale: r.lengthScale,
		Jitter:      r.jitter,
	}, nil
}

// Restore rebuilds a fitted regressor from a saved State.
func Restore(s State) (*Regressor, error) {
	if len(s.X) == 0 {
		return nil, ErrEmptyData
	}
	if len(s.YNorm) != len(s.X) {
		return nil, fmt.Errorf("%w: %d inputs but %d targets", ErrDimension, len(s.X), len(s.YNorm))
	}
	dim := len(s.X[0])
	for i := range s.X {
		if len(s.X[i]) != dim {
			return nil, fmt.Errorf("%w: row %d has length %d, expected %d", ErrDimension, i, len(s.X[i]), dim)
		}
	}
	if s.LengthScale <= 0 || s.YStd <= 0 {
		return nil, fmt.Errorf("invalid state: length_scale=%g y_std=%g", s.LengthScale, s.YStd)
	}

	r := &Regressor{
		cfg:         s.Kernel,
		x:           s.X,
		yNorm:       s.YNorm,
		yMean:       s.YMean,
		yStd:        s.YStd,
		lengthScale: s.LengthScale,
	}
	if err := r.factorize(s.Jitter); err != nil {
		return nil, fmt.Errorf("restore factorisation: %w", err)
	}
	r.fitted = true
	return r, nil
}
