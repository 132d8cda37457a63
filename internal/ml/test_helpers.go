package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu              sync.Mutex
	predictions     int
	failures        int
	latencySum      float64
	timeouts        int
	trainingBatches int
	forecasts       int
	modelAge        float64
	uncertainties   []float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLUncertaintyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uncertainties = append(m.uncertainties, v)
}

func (m *MockMetrics) MLTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) MLTrainingBatchesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingBatches++
}

func (m *MockMetrics) MLForecastLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts++
}

// stubPredictor returns mean = last value of the window + step and a fixed std,
// counting calls.
type stubPredictor struct {
	mu    sync.Mutex
	w     int
	step  float64
	std   float64
	calls int
	seen  [][]float64
}

func (s *stubPredictor) Predict(window []float64) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, append([]float64(nil), window...))
	return window[len(window)-1] + s.step, s.std, nil
}

func (s *stubPredictor) WindowSize() int { return s.w }
