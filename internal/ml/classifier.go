// Package ml provides the hypertension classifiers and the prediction pipeline
// built on top of them. It includes the Classifier capability, the model
// registry populated once at startup, Python-backed pickle artifacts, built-in
// surrogate models, and single-model and ensemble prediction.
//
// Loaded classifiers are never mutated after the registry is built, so every
// prediction call may run concurrently with every other.
package ml

import (
	"errors"

	"afyaband-ml/internal/features"
)

// Recognized model names.
const (
	RandomForest = "random_forest"
	XGBoost      = "xgboost"
)

// ModelNames lists every recognized model in the order ensemble results are combined.
var ModelNames = []string{RandomForest, XGBoost}

// IsKnownModel reports whether name is a recognized model name.
func IsKnownModel(name string) bool {
	for _, n := range ModelNames {
		if n == name {
			return true
		}
	}
	return false
}

// ErrNoProbability is returned by PredictProba when the classifier has no
// probability capability.
var ErrNoProbability = errors.New("classifier exposes no probability")

// Classifier is a trained binary classifier.
type Classifier interface {
	// Predict returns the class label, 0 or 1.
	Predict(x features.Vector) (int, error)

	// PredictProba returns the class-probability distribution, or
	// ErrNoProbability when the classifier cannot produce one.
	PredictProba(x features.Vector) ([]float64, error)
}
