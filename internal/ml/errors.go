package ml

import "errors"

var (
	// ErrInput marks client faults: no readings, unknown model name.
	ErrInput = errors.New("invalid input")

	// ErrModelUnavailable is returned when a recognized model was not loaded.
	ErrModelUnavailable = errors.New("model not available")

	// ErrNoModelsAvailable is returned by the ensemble path when nothing is loaded.
	ErrNoModelsAvailable = errors.New("no models available for prediction")

	// ErrInferenceTimeout is returned when a classifier call exceeds its deadline.
	ErrInferenceTimeout = errors.New("inference timeout")
)
