package server

import (
	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/selection"
)

// SelectRequest is the body of POST /select and of each websocket message.
// Horizon 0 means the candidate length.
type SelectRequest struct {
	RequestID  string      `json:"request_id,omitempty"`
	SeedWindow []float64   `json:"seed_window"`
	Candidates [][]float64 `json:"candidates"`
	Strategy   string      `json:"strategy"`
	Horizon    int         `json:"horizon,omitempty"`
}

type SelectResponse struct {
	RequestID string                     `json:"request_id"`
	BestIndex int                        `json:"best_index"`
	Strategy  string                     `json:"strategy"`
	Scores    []selection.CandidateScore `json:"scores"`
	Forecast  ForecastView               `json:"forecast"`
	CacheHit  bool                       `json:"cache_hit"`
	LatencyMs float64                    `json:"latency_ms"`
}

// ForecastView is the forecast with its means mapped back to MIDI pitches.
type ForecastView struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
	Midi []int     `json:"midi"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type HealthResponse struct {
	Status       string  `json:"status"`
	ModelTrained bool    `json:"model_trained"`
	ModelVersion string  `json:"model_version,omitempty"`
	Uptime       float64 `json:"uptime_seconds"`
}

type ModelInfoResponse struct {
	ml.ModelInfo
	ModelVersion string             `json:"model_version,omitempty"`
	PitchRange   dataset.PitchRange `json:"pitch_range"`
}

func newSelectResponse(requestID string, result selection.Result, pitchRange dataset.PitchRange, latencyMs float64) SelectResponse {
	return SelectResponse{
		RequestID: requestID,
		BestIndex: result.BestIndex,
		Strategy:  result.Strategy,
		Scores:    result.Scores,
		Forecast: ForecastView{
			Mean: result.Forecast.Mean,
			Std:  result.Forecast.Std,
			Midi: pitchRange.Denormalize(result.Forecast.Mean),
		},
		CacheHit:  result.CacheHit,
		LatencyMs: latencyMs,
	}
}
