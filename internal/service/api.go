package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"afyaband-ml/internal/features"
	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/risk"
)

// PredictRequest is the body of POST /predict and /predict/ensemble.
type PredictRequest struct {
	Readings    []features.VitalReading `json:"readings" validate:"min=1,dive"`
	UserProfile *features.UserProfile   `json:"userProfile,omitempty"`
	Model       string                  `json:"model,omitempty"`
	DeviceID    string                  `json:"deviceId,omitempty"`
}

// PredictionResponse is an assessment plus attribution.
type PredictionResponse struct {
	risk.Assessment
	Insights   string   `json:"insights"`
	ModelUsed  string   `json:"modelUsed"`
	Confidence *float64 `json:"confidence"`
	RequestID  string   `json:"requestId"`
}

type EnsembleResponse struct {
	PredictionResponse
	IndividualResults map[string]ml.ModelResult `json:"individualResults"`
}

type ServiceInfo struct {
	Service        string          `json:"service"`
	Status         string          `json:"status"`
	Version        string          `json:"version"`
	ModelsLoaded   map[string]bool `json:"models_loaded"`
	Models         []ml.ModelInfo  `json:"models"`
	HistoryEnabled bool            `json:"history_enabled"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a failure message under "detail".
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ValidationError reports a request field outside its accepted range.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ml.ErrInput }

type UnknownModelError struct {
	Name string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("Unknown model: %s. Use '%s' or '%s'.", e.Name, ml.RandomForest, ml.XGBoost)
}

func (e *UnknownModelError) Unwrap() error { return ml.ErrInput }

type ModelUnavailableError struct {
	Name string
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%s model not loaded. Please ensure model files are present.", e.Name)
}

func (e *ModelUnavailableError) Unwrap() error { return ml.ErrModelUnavailable }

var validate = newValidator()

// newValidator reports fields by their JSON names so errors read like the
// request body.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the request against the accepted ranges.
func (r *PredictRequest) Validate() error {
	if err := check(r); err != nil {
		return err
	}
	return nil
}

// ValidateReading requires every vital to be a positive number.
func ValidateReading(r features.VitalReading) *ValidationError {
	return check(r)
}

// ValidateProfile checks the optional demographic fields. A nil profile is valid.
func ValidateProfile(p *features.UserProfile) *ValidationError {
	if p == nil {
		return nil
	}
	return check(p)
}

// check validates v and converts the first failure to a ValidationError whose
// field is the JSON path below v, e.g. "readings[1].heartRate".
func check(v any) *ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "body", Msg: err.Error()}
	}
	fe := fieldErrs[0]
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	return &ValidationError{Field: field, Msg: fieldMessage(fe)}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		if fe.Param() == "0" {
			return "must be a positive number"
		}
		return "must be greater than " + fe.Param()
	case "min":
		if fe.Field() == "readings" {
			return "at least one reading is required"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
