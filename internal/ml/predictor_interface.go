// Package ml provides the probabilistic next-pitch regressor, its batched
// training protocol, model persistence and versioning, and the autoregressive
// forecaster that rolls the regressor forward from a seed window.
//
// A Regressor is mutated only by Train and Load. Between those calls it is
// read-only and may serve Predict and Forecast from many goroutines.
package ml

// Predictor produces a predictive mean and standard deviation for a context
// window of exactly WindowSize values.
type Predictor interface {
	// Predict returns the predicted next value and its standard deviation.
	Predict(window []float64) (mean, std float64, err error)

	// WindowSize is the context length Predict expects.
	WindowSize() int
}

// MetricsInterface defines metrics methods needed by the regressor and forecaster
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLUncertaintyObserve(float64)
	MLTimeoutsInc()
	MLTrainingBatchesInc()
	MLForecastLatencyObserve(float64)
}
