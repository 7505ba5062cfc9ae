package ml

import (
	"errors"
	"sync"

	"afyaband-ml/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      map[string]int
	failures         map[string]int
	timeouts         map[string]int
	latencyObserved  int
	probabilities    []float64
	loaded           map[string]bool
	ensembles        int
	degradedEnsemble int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		predictions: make(map[string]int),
		failures:    make(map[string]int),
		timeouts:    make(map[string]int),
		loaded:      make(map[string]bool),
	}
}

func (m *MockMetrics) ModelPredictionInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[model]++
}

func (m *MockMetrics) ModelFailureInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[model]++
}

func (m *MockMetrics) ModelLatencyObserve(model string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyObserved++
}

func (m *MockMetrics) ModelProbabilityObserve(model string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probabilities = append(m.probabilities, v)
}

func (m *MockMetrics) ModelLoadedSet(model string, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded[model] = loaded
}

func (m *MockMetrics) InferenceTimeoutInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[model]++
}

func (m *MockMetrics) EnsembleInc(degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensembles++
	if degraded {
		m.degradedEnsemble++
	}
}

// StubClassifier is a configurable Classifier test double.
type StubClassifier struct {
	mu sync.Mutex

	Class        int
	Proba        []float64
	NoProba      bool
	PredictErr   error
	ProbaErr     error
	Calls        int
	LastFeatures features.Vector
}

// NewProbClassifier returns a stub reporting probability p for the positive class.
func NewProbClassifier(p float64) *StubClassifier {
	class := 0
	if p > 0.5 {
		class = 1
	}
	return &StubClassifier{Class: class, Proba: []float64{1 - p, p}}
}

func (s *StubClassifier) Predict(x features.Vector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	s.LastFeatures = x
	if s.PredictErr != nil {
		return 0, s.PredictErr
	}
	return s.Class, nil
}

func (s *StubClassifier) PredictProba(x features.Vector) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NoProba {
		return nil, ErrNoProbability
	}
	if s.ProbaErr != nil {
		return nil, s.ProbaErr
	}
	return s.Proba, nil
}

var errStubInference = errors.New("stub inference failure")
