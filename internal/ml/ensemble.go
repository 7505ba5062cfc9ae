package ml

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"afyaband-ml/internal/features"
)

// EnsembleOutcome combines every available model's result.
type EnsembleOutcome struct {
	Results map[string]ModelResult `json:"individualResults"`
	// Probability is the mean positive-class probability over models that ran
	// without error and reported one; nil when none did.
	Probability *float64        `json:"ensembleProbability"`
	Features    features.Vector `json:"-"`
}

// PredictedClass is 1 iff the ensemble probability is present and above 0.5.
func (e EnsembleOutcome) PredictedClass() int {
	if e.Probability != nil && *e.Probability > 0.5 {
		return 1
	}
	return 0
}

// Contributors counts the models whose probability entered the mean.
func (e EnsembleOutcome) Contributors() int {
	n := 0
	for _, r := range e.Results {
		if r.Err == nil && r.Outcome != nil && r.Outcome.Probability != nil {
			n++
		}
	}
	return n
}

// PredictEnsemble runs every available model over one shared feature vector.
// A failing model is recorded in its own result and never fails the call.
func (p *Pipeline) PredictEnsemble(readings []features.VitalReading, profile *features.UserProfile) (EnsembleOutcome, error) {
	if !p.registry.AnyAvailable() {
		return EnsembleOutcome{}, ErrNoModelsAvailable
	}

	v, err := p.Extract(readings, profile)
	if err != nil {
		return EnsembleOutcome{}, err
	}

	var (
		mu      sync.Mutex
		results = make(map[string]ModelResult, len(ModelNames))
		g       errgroup.Group
	)
	for _, name := range ModelNames {
		if !p.registry.IsAvailable(name) {
			continue
		}
		g.Go(func() error {
			out, err := p.registry.Predict(name, v)
			res := ModelResult{Err: err}
			if err == nil {
				res.Outcome = &out
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	outcome := EnsembleOutcome{
		Results:     results,
		Probability: meanProbability(results),
		Features:    v,
	}

	if p.metrics != nil {
		p.metrics.EnsembleInc(outcome.Contributors() < len(ModelNames))
	}

	return outcome, nil
}

// meanProbability sums in ModelNames order so the result does not depend on
// goroutine scheduling.
func meanProbability(results map[string]ModelResult) *float64 {
	var sum float64
	var n int
	for _, name := range ModelNames {
		r, ok := results[name]
		if !ok || r.Err != nil || r.Outcome == nil || r.Outcome.Probability == nil {
			continue
		}
		sum += *r.Outcome.Probability
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
