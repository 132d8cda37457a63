package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces the ml, selection
// and server packages depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() { w.m.MLPredictions.Inc() }

func (w *MetricsWrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(v float64)         { w.m.MLLatency.Observe(v) }
func (w *MetricsWrapper) MLModelAgeSet(v float64)            { w.m.MLModelAge.Set(v) }
func (w *MetricsWrapper) MLUncertaintyObserve(v float64)     { w.m.MLUncertainty.Observe(v) }
func (w *MetricsWrapper) MLTimeoutsInc()                     { w.m.MLTimeouts.Inc() }
func (w *MetricsWrapper) MLTrainingBatchesInc()              { w.m.TrainingBatches.Inc() }
func (w *MetricsWrapper) MLForecastLatencyObserve(v float64) { w.m.ForecastLatency.Observe(v) }

func (w *MetricsWrapper) SelectionsInc(strategy string) {
	w.m.Selections.WithLabelValues(strategy).Inc()
}

func (w *MetricsWrapper) SelectionLatencyObserve(v float64) { w.m.SelectionLatency.Observe(v) }
func (w *MetricsWrapper) ForecastCacheHitsInc()             { w.m.ForecastCacheHits.Inc() }
func (w *MetricsWrapper) ForecastCacheMissesInc()           { w.m.ForecastCacheMiss.Inc() }

// HTTPRequestInc counts one finished request. Server errors also count
// towards errors_total.
func (w *MetricsWrapper) HTTPRequestInc(route string, code int) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	if code >= 500 {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) WSSessionsAdd(delta float64) { w.m.WSSessions.Add(delta) }
