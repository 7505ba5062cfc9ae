package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow recorder interfaces of the ml,
// server and stream packages.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) ModelPredictionInc(model string) {
	w.m.PredictionsTotal.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) ModelFailureInc(model string) {
	w.m.InferenceFailures.WithLabelValues(model).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) ModelLatencyObserve(model string, seconds float64) {
	w.m.InferenceLatency.WithLabelValues(model).Observe(seconds)
}

func (w *MetricsWrapper) ModelProbabilityObserve(model string, probability float64) {
	w.m.PredictionProbability.WithLabelValues(model).Observe(probability)
}

func (w *MetricsWrapper) ModelLoadedSet(model string, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	w.m.ModelsLoaded.WithLabelValues(model).Set(v)
}

func (w *MetricsWrapper) InferenceTimeoutInc(model string) {
	w.m.InferenceTimeouts.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) EnsembleInc(degraded bool) {
	w.m.EnsembleTotal.Inc()
	if degraded {
		w.m.EnsembleDegraded.Inc()
	}
}

func (w *MetricsWrapper) AssessmentObserve(status string, score float64) {
	w.m.AssessmentsTotal.WithLabelValues(status).Inc()
	w.m.RiskScores.Observe(score)
}

func (w *MetricsWrapper) RequestObserve(route string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
	if code >= 500 {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) StreamSessionAdd(delta float64) {
	w.m.StreamSessions.Add(delta)
}

func (w *MetricsWrapper) StreamMessageInc(kind string) {
	w.m.StreamMessages.WithLabelValues(kind).Inc()
}

func (w *MetricsWrapper) ErrorsInc() {
	w.m.ErrorsTotal.Inc()
}
