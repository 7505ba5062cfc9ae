package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"afyaband-ml/internal/features"
)

// MetricsInterface defines metrics methods needed by the registry and pipeline
type MetricsInterface interface {
	ModelPredictionInc(model string)
	ModelFailureInc(model string)
	ModelLatencyObserve(model string, seconds float64)
	ModelProbabilityObserve(model string, probability float64)
	ModelLoadedSet(model string, loaded bool)
	InferenceTimeoutInc(model string)
	EnsembleInc(degraded bool)
}

// Model sources reported by Info.
const (
	SourceArtifact  = "artifact"
	SourceSurrogate = "surrogate"
	SourceInjected  = "injected"
)

// Outcome is the result of one classifier call.
type Outcome struct {
	Class int `json:"prediction"`
	// Probability is the positive-class probability; nil when the classifier
	// has no probability capability.
	Probability *float64 `json:"probability"`
}

// ModelInfo describes a registry entry for readiness reporting.
type ModelInfo struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Source    string    `json:"source,omitempty"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

type entry struct {
	mu       sync.Mutex // serializes calls into clf
	clf      Classifier
	source   string
	metadata *Metadata
}

// Registry is an immutable snapshot of the loaded classifiers.
type Registry struct {
	entries map[string]*entry
	metrics MetricsInterface
}

// NewRegistry builds a registry from already constructed classifiers. Unknown
// names are ignored; nil classifiers are recorded as unavailable.
func NewRegistry(classifiers map[string]Classifier, metrics MetricsInterface) *Registry {
	entries := make(map[string]*entry, len(ModelNames))
	for _, name := range ModelNames {
		e := &entry{}
		if clf := classifiers[name]; clf != nil {
			e.clf = clf
			e.source = SourceInjected
		}
		entries[name] = e
	}
	return newRegistry(entries, metrics)
}

func newRegistry(entries map[string]*entry, metrics MetricsInterface) *Registry {
	r := &Registry{entries: entries, metrics: metrics}
	if metrics != nil {
		for _, name := range ModelNames {
			metrics.ModelLoadedSet(name, r.IsAvailable(name))
		}
	}
	return r
}

// IsAvailable reports whether name is recognized and its classifier was loaded.
func (r *Registry) IsAvailable(name string) bool {
	if r == nil {
		return false
	}
	e, ok := r.entries[name]
	return ok && e.clf != nil
}

// Availability reports every recognized model, loaded or not.
func (r *Registry) Availability() map[string]bool {
	out := make(map[string]bool, len(ModelNames))
	for _, name := range ModelNames {
		out[name] = r.IsAvailable(name)
	}
	return out
}

// AnyAvailable reports whether at least one model is loaded.
func (r *Registry) AnyAvailable() bool {
	for _, name := range ModelNames {
		if r.IsAvailable(name) {
			return true
		}
	}
	return false
}

// Info returns per-model details in ModelNames order.
func (r *Registry) Info() []ModelInfo {
	out := make([]ModelInfo, 0, len(ModelNames))
	for _, name := range ModelNames {
		info := ModelInfo{Name: name, Available: r.IsAvailable(name)}
		if r != nil {
			if e, ok := r.entries[name]; ok {
				info.Source = e.source
				info.Metadata = e.metadata
			}
		}
		out = append(out, info)
	}
	return out
}

// Metadata returns the sidecar metadata loaded with name's artifact, or nil.
func (r *Registry) Metadata(name string) *Metadata {
	if r == nil {
		return nil
	}
	if e, ok := r.entries[name]; ok {
		return e.metadata
	}
	return nil
}

// Predict runs the named classifier against x.
func (r *Registry) Predict(name string, x features.Vector) (Outcome, error) {
	if !r.IsAvailable(name) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrModelUnavailable, name)
	}
	e := r.entries[name]

	start := time.Now()
	e.mu.Lock()
	out, err := predictWith(e.clf, x)
	e.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ModelLatencyObserve(name, time.Since(start).Seconds())
		if err != nil {
			r.metrics.ModelFailureInc(name)
			if errors.Is(err, ErrInferenceTimeout) {
				r.metrics.InferenceTimeoutInc(name)
			}
		} else {
			r.metrics.ModelPredictionInc(name)
			if out.Probability != nil {
				r.metrics.ModelProbabilityObserve(name, *out.Probability)
			}
		}
	}

	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func predictWith(clf Classifier, x features.Vector) (Outcome, error) {
	class, err := clf.Predict(x)
	if err != nil {
		return Outcome{}, fmt.Errorf("predict: %w", err)
	}
	if class != 0 && class != 1 {
		return Outcome{}, fmt.Errorf("unexpected class label %d", class)
	}

	proba, err := clf.PredictProba(x)
	if errors.Is(err, ErrNoProbability) {
		return Outcome{Class: class}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("predict_proba: %w", err)
	}
	if len(proba) == 0 {
		return Outcome{}, fmt.Errorf("empty probability distribution")
	}

	// positive class mass for binary output, the sole value otherwise
	p := proba[0]
	if len(proba) >= 2 {
		p = proba[1]
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Outcome{}, fmt.Errorf("invalid probability %f", p)
	}
	return Outcome{Class: class, Probability: &p}, nil
}

// ModelResult is one model's entry in an ensemble outcome: either an Outcome
// or the error that model raised.
type ModelResult struct {
	Outcome *Outcome
	Err     error
}

func (m ModelResult) MarshalJSON() ([]byte, error) {
	if m.Err != nil {
		return json.Marshal(map[string]string{"error": m.Err.Error()})
	}
	if m.Outcome == nil {
		return []byte("null"), nil
	}
	return json.Marshal(m.Outcome)
}

func (m *ModelResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Prediction  *int     `json:"prediction"`
		Probability *float64 `json:"probability"`
		Error       string   `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Error != "" {
		m.Err = errors.New(raw.Error)
		return nil
	}
	if raw.Prediction != nil {
		m.Outcome = &Outcome{Class: *raw.Prediction, Probability: raw.Probability}
	}
	return nil
}
