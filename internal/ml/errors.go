package ml

import "errors"

// Error taxonomy shared by training, inference and scoring. Callers match
// with errors.Is; returned errors wrap these with context.
var (
	// ErrConfiguration covers bad window sizes, batch settings or unsupported strategies.
	ErrConfiguration = errors.New("configuration error")
	// ErrModelNotTrained is returned by predict/forecast before any fit or load.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrModelPersistence is returned when saving or loading the model artifact fails.
	ErrModelPersistence = errors.New("model persistence error")
	// ErrInputShape is returned for window or candidate length mismatches.
	ErrInputShape = errors.New("input shape error")
	// ErrInsufficientData is returned when a training run yields no usable pairs.
	ErrInsufficientData = errors.New("insufficient training data")
)
