package ml

import (
	"fmt"

	"afyaband-ml/internal/features"
)

// Pipeline runs feature extraction and inference against a registry.
type Pipeline struct {
	registry *Registry
	defaults features.Defaults
	metrics  MetricsInterface
}

func NewPipeline(registry *Registry, defaults features.Defaults, metrics MetricsInterface) *Pipeline {
	return &Pipeline{registry: registry, defaults: defaults, metrics: metrics}
}

func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Extract builds the feature vector with the pipeline's profile defaults.
func (p *Pipeline) Extract(readings []features.VitalReading, profile *features.UserProfile) (features.Vector, error) {
	v, err := features.ExtractWithDefaults(readings, profile, p.defaults)
	if err != nil {
		return features.Vector{}, fmt.Errorf("%w: %w", ErrInput, err)
	}
	return v, nil
}

// Predict runs a single named model. It returns the feature vector alongside
// the outcome so callers can record what the model saw.
func (p *Pipeline) Predict(name string, readings []features.VitalReading, profile *features.UserProfile) (Outcome, features.Vector, error) {
	if !IsKnownModel(name) {
		return Outcome{}, features.Vector{}, fmt.Errorf("%w: unknown model %q", ErrInput, name)
	}
	if !p.registry.IsAvailable(name) {
		return Outcome{}, features.Vector{}, fmt.Errorf("%w: %s", ErrModelUnavailable, name)
	}

	v, err := p.Extract(readings, profile)
	if err != nil {
		return Outcome{}, features.Vector{}, err
	}

	out, err := p.registry.Predict(name, v)
	if err != nil {
		return Outcome{}, v, err
	}
	return out, v, nil
}
