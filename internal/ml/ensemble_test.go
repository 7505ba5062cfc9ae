package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afyaband-ml/internal/features"
)

func sampleReadings() []features.VitalReading {
	return []features.VitalReading{
		{HeartRate: 70, Systolic: 120, Diastolic: 80, Timestamp: 1},
		{HeartRate: 80, Systolic: 130, Diastolic: 85, Timestamp: 2},
	}
}

func TestPipelinePredict(t *testing.T) {
	clf := NewProbClassifier(0.85)
	p := NewPipeline(NewRegistry(map[string]Classifier{RandomForest: clf}, nil), features.DefaultDefaults(), nil)

	out, v, err := p.Predict(RandomForest, sampleReadings(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Class)
	require.NotNil(t, out.Probability)
	assert.InDelta(t, 0.85, *out.Probability, 1e-12)

	want := features.Vector{125, 82.5, 75, 45, 25, 0, 42.5, 5}
	assert.Equal(t, want, v)
	assert.Equal(t, want, clf.LastFeatures)
}

func TestPipelinePredictErrors(t *testing.T) {
	p := NewPipeline(NewRegistry(map[string]Classifier{RandomForest: NewProbClassifier(0.3)}, nil), features.DefaultDefaults(), nil)

	_, _, err := p.Predict("svm", sampleReadings(), nil)
	assert.ErrorIs(t, err, ErrInput)

	_, _, err = p.Predict(XGBoost, sampleReadings(), nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, _, err = p.Predict(RandomForest, nil, nil)
	assert.ErrorIs(t, err, ErrInput)
	assert.ErrorIs(t, err, features.ErrNoReadings)

	failing := NewPipeline(NewRegistry(map[string]Classifier{XGBoost: &StubClassifier{PredictErr: errStubInference}}, nil), features.DefaultDefaults(), nil)
	_, _, err = failing.Predict(XGBoost, sampleReadings(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInput)
	assert.ErrorIs(t, err, errStubInference)
}

func TestPipelineCustomDefaults(t *testing.T) {
	clf := NewProbClassifier(0.5)
	p := NewPipeline(NewRegistry(map[string]Classifier{XGBoost: clf}, nil), features.Defaults{Age: 60, BMI: 31}, nil)

	_, v, err := p.Predict(XGBoost, sampleReadings(), &features.UserProfile{})
	require.NoError(t, err)
	assert.Equal(t, 60.0, v[features.IdxAge])
	assert.Equal(t, 31.0, v[features.IdxBMI])
}

func TestPredictEnsembleBothModels(t *testing.T) {
	metrics := NewMockMetrics()
	rf := NewProbClassifier(0.6)
	xgb := NewProbClassifier(0.8)
	p := NewPipeline(NewRegistry(map[string]Classifier{RandomForest: rf, XGBoost: xgb}, metrics), features.DefaultDefaults(), metrics)

	out, err := p.PredictEnsemble(sampleReadings(), nil)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	require.NotNil(t, out.Probability)
	assert.Equal(t, 0.7, *out.Probability)
	assert.Equal(t, 1, out.PredictedClass())
	assert.Equal(t, 2, out.Contributors())

	// both models see the same vector
	assert.Equal(t, rf.LastFeatures, xgb.LastFeatures)
	assert.Equal(t, out.Features, rf.LastFeatures)

	assert.Equal(t, 1, metrics.ensembles)
	assert.Equal(t, 0, metrics.degradedEnsemble)
}

func TestPredictEnsembleOneFailure(t *testing.T) {
	metrics := NewMockMetrics()
	reg := NewRegistry(map[string]Classifier{
		RandomForest: &StubClassifier{PredictErr: errStubInference},
		XGBoost:      NewProbClassifier(0.3),
	}, metrics)
	p := NewPipeline(reg, features.DefaultDefaults(), metrics)

	out, err := p.PredictEnsemble(sampleReadings(), nil)
	require.NoError(t, err)

	require.Contains(t, out.Results, RandomForest)
	assert.Error(t, out.Results[RandomForest].Err)
	assert.Nil(t, out.Results[RandomForest].Outcome)

	require.NotNil(t, out.Probability)
	assert.InDelta(t, 0.3, *out.Probability, 1e-12)
	assert.Equal(t, 0, out.PredictedClass())
	assert.Equal(t, 1, metrics.degradedEnsemble)
}

func TestPredictEnsembleOnlyAvailableModels(t *testing.T) {
	p := NewPipeline(NewRegistry(map[string]Classifier{XGBoost: NewProbClassifier(0.9)}, nil), features.DefaultDefaults(), nil)

	out, err := p.PredictEnsemble(sampleReadings(), nil)
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
	assert.NotContains(t, out.Results, RandomForest)
	assert.InDelta(t, 0.9, *out.Probability, 1e-12)
}

func TestPredictEnsembleNoProbability(t *testing.T) {
	reg := NewRegistry(map[string]Classifier{
		RandomForest: &StubClassifier{Class: 1, NoProba: true},
		XGBoost:      &StubClassifier{PredictErr: errStubInference},
	}, nil)
	p := NewPipeline(reg, features.DefaultDefaults(), nil)

	out, err := p.PredictEnsemble(sampleReadings(), nil)
	require.NoError(t, err)
	assert.Nil(t, out.Probability)
	assert.Equal(t, 0, out.PredictedClass())
	assert.Equal(t, 0, out.Contributors())
	require.NotNil(t, out.Results[RandomForest].Outcome)
	assert.Equal(t, 1, out.Results[RandomForest].Outcome.Class)
}

func TestPredictEnsembleBoundary(t *testing.T) {
	p := NewPipeline(NewRegistry(map[string]Classifier{
		RandomForest: NewProbClassifier(0.5),
		XGBoost:      NewProbClassifier(0.5),
	}, nil), features.DefaultDefaults(), nil)

	out, err := p.PredictEnsemble(sampleReadings(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, *out.Probability, 1e-12)
	assert.Equal(t, 0, out.PredictedClass())
}

func TestPredictEnsembleErrors(t *testing.T) {
	empty := NewPipeline(NewRegistry(nil, nil), features.DefaultDefaults(), nil)
	_, err := empty.PredictEnsemble(sampleReadings(), nil)
	assert.ErrorIs(t, err, ErrNoModelsAvailable)

	// the availability check comes before extraction
	_, err = empty.PredictEnsemble(nil, nil)
	assert.ErrorIs(t, err, ErrNoModelsAvailable)
	assert.NotErrorIs(t, err, ErrInput)

	p := NewPipeline(NewRegistry(map[string]Classifier{RandomForest: NewProbClassifier(0.4)}, nil), features.DefaultDefaults(), nil)
	_, err = p.PredictEnsemble(nil, nil)
	assert.ErrorIs(t, err, ErrInput)
}
