// Package features turns wearable vital-sign readings into the fixed-order
// feature vector the hypertension classifiers were trained against.
//
// The order of Vector is a contract with the trained artifacts. Appending,
// removing or reordering entries silently corrupts every prediction made
// against an existing model, so FeatureNames and Vector must change together
// and only alongside retrained artifacts.
package features

import (
	"errors"
	"math"
	"strings"

	"afyaband-ml/internal/common"
)

// VectorLen is the number of features passed to a classifier.
const VectorLen = 8

// Feature positions inside Vector.
const (
	IdxAvgSystolic = iota
	IdxAvgDiastolic
	IdxAvgHeartRate
	IdxAge
	IdxBMI
	IdxGenderMale
	IdxPulsePressure
	IdxHRVariability
)

// FeatureNames lists the Vector entries in order.
var FeatureNames = [VectorLen]string{
	"avg_systolic",
	"avg_diastolic",
	"avg_heart_rate",
	"age",
	"bmi",
	"gender_male",
	"pulse_pressure",
	"hr_variability",
}

// ErrNoReadings is returned when extraction is attempted on an empty sequence.
var ErrNoReadings = errors.New("no readings provided")

// VitalReading is a single sample from the wristband.
type VitalReading struct {
	HeartRate float64 `json:"heartRate" validate:"gt=0"`
	Systolic  float64 `json:"systolic" validate:"gt=0"`
	Diastolic float64 `json:"diastolic" validate:"gt=0"`
	Timestamp int64   `json:"timestamp"`
}

// UserProfile holds optional demographics. Nil fields are absent.
type UserProfile struct {
	Age    *int     `json:"age,omitempty" validate:"omitnil,min=0,max=150"`
	Gender *string  `json:"gender,omitempty"`
	BMI    *float64 `json:"bmi,omitempty" validate:"omitnil,min=10,max=100"`
	Weight *float64 `json:"weight,omitempty" validate:"omitnil,min=20,max=500"`
	Height *float64 `json:"height,omitempty" validate:"omitnil,min=50,max=300"`
}

// Vector is the classifier input.
type Vector [VectorLen]float64

// Slice returns a copy of the vector as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, VectorLen)
	copy(out, v[:])
	return out
}

// Named returns the vector keyed by feature name.
func (v Vector) Named() map[string]float64 {
	out := make(map[string]float64, VectorLen)
	for i, name := range FeatureNames {
		out[name] = v[i]
	}
	return out
}

// Defaults are substituted for absent profile fields.
type Defaults struct {
	Age int
	BMI float64
}

// DefaultDefaults returns the values the models were trained with.
func DefaultDefaults() Defaults {
	return Defaults{Age: common.DefaultAge, BMI: common.DefaultBMI}
}

// Summary holds every statistic computed over a reading sequence.
type Summary struct {
	Count         int     `json:"count"`
	AvgHeartRate  float64 `json:"avg_heart_rate"`
	MaxHeartRate  float64 `json:"max_heart_rate"`
	MinHeartRate  float64 `json:"min_heart_rate"`
	HRVariability float64 `json:"hr_variability"`
	AvgSystolic   float64 `json:"avg_systolic"`
	MaxSystolic   float64 `json:"max_systolic"`
	AvgDiastolic  float64 `json:"avg_diastolic"`
	MaxDiastolic  float64 `json:"max_diastolic"`
	PulsePressure float64 `json:"pulse_pressure"`
}

// Summarize computes the reading statistics.
func Summarize(readings []VitalReading) (Summary, error) {
	if len(readings) == 0 {
		return Summary{}, ErrNoReadings
	}

	n := float64(len(readings))
	s := Summary{
		Count:        len(readings),
		MaxHeartRate: math.Inf(-1),
		MinHeartRate: math.Inf(1),
		MaxSystolic:  math.Inf(-1),
		MaxDiastolic: math.Inf(-1),
	}

	var hrSum, sysSum, diaSum float64
	for _, r := range readings {
		hrSum += r.HeartRate
		sysSum += r.Systolic
		diaSum += r.Diastolic
		s.MaxHeartRate = math.Max(s.MaxHeartRate, r.HeartRate)
		s.MinHeartRate = math.Min(s.MinHeartRate, r.HeartRate)
		s.MaxSystolic = math.Max(s.MaxSystolic, r.Systolic)
		s.MaxDiastolic = math.Max(s.MaxDiastolic, r.Diastolic)
	}
	s.AvgHeartRate = hrSum / n
	s.AvgSystolic = sysSum / n
	s.AvgDiastolic = diaSum / n

	// population standard deviation, two-pass
	var sq float64
	for _, r := range readings {
		d := r.HeartRate - s.AvgHeartRate
		sq += d * d
	}
	s.HRVariability = math.Sqrt(sq / n)
	s.PulsePressure = s.AvgSystolic - s.AvgDiastolic

	return s, nil
}

// Extract builds the feature vector using the training defaults.
func Extract(readings []VitalReading, profile *UserProfile) (Vector, error) {
	return ExtractWithDefaults(readings, profile, DefaultDefaults())
}

// ExtractWithDefaults builds the feature vector, substituting d for absent
// profile fields. A zero age or bmi counts as absent.
func ExtractWithDefaults(readings []VitalReading, profile *UserProfile, d Defaults) (Vector, error) {
	s, err := Summarize(readings)
	if err != nil {
		return Vector{}, err
	}

	age := float64(d.Age)
	bmi := d.BMI
	var genderMale float64
	if profile != nil {
		if profile.Age != nil && *profile.Age != 0 {
			age = float64(*profile.Age)
		}
		if profile.BMI != nil && *profile.BMI != 0 {
			bmi = *profile.BMI
		}
		if profile.Gender != nil && strings.ToLower(*profile.Gender) == "male" {
			genderMale = 1
		}
	}

	var v Vector
	v[IdxAvgSystolic] = s.AvgSystolic
	v[IdxAvgDiastolic] = s.AvgDiastolic
	v[IdxAvgHeartRate] = s.AvgHeartRate
	v[IdxAge] = age
	v[IdxBMI] = bmi
	v[IdxGenderMale] = genderMale
	v[IdxPulsePressure] = s.PulsePressure
	v[IdxHRVariability] = s.HRVariability
	return v, nil
}
