package ml

import (
	"math"

	"afyaband-ml/internal/features"
)

// Training-set statistics used to standardize surrogate inputs.
type zscore struct{ mean, std float64 }

var (
	ageScale       = zscore{54.5, 18.2}
	bmiScale       = zscore{27.5, 6.8}
	systolicScale  = zscore{135.0, 28.5}
	diastolicScale = zscore{82.0, 15.2}
	heartRateScale = zscore{72.0, 12.5}
	genderScale    = zscore{0.5, 0.5}
)

func (z zscore) apply(v float64) float64 {
	return (v - z.mean) / z.std
}

// surrogateInputs are the six inputs the surrogates use, taken from the vector.
type surrogateInputs struct {
	age, bmi, systolic, diastolic, heartRate, gender float64
}

func inputsFrom(x features.Vector) surrogateInputs {
	return surrogateInputs{
		age:       x[features.IdxAge],
		bmi:       x[features.IdxBMI],
		systolic:  x[features.IdxAvgSystolic],
		diastolic: x[features.IdxAvgDiastolic],
		heartRate: x[features.IdxAvgHeartRate],
		gender:    x[features.IdxGenderMale],
	}
}

// ForestSurrogate approximates the random forest with its feature importances
// and blood-pressure, age and BMI risk multipliers.
type ForestSurrogate struct{}

func (ForestSurrogate) probability(x features.Vector) float64 {
	in := inputsFrom(x)

	score := ageScale.apply(in.age)*0.18 +
		bmiScale.apply(in.bmi)*0.14 +
		systolicScale.apply(in.systolic)*0.28 +
		diastolicScale.apply(in.diastolic)*0.22 +
		heartRateScale.apply(in.heartRate)*0.12 +
		genderScale.apply(in.gender)*0.06

	multiplier := 1.0
	switch {
	case in.systolic >= 140 || in.diastolic >= 90:
		multiplier = 1.8
	case in.systolic >= 130 || in.diastolic >= 80:
		multiplier = 1.4
	case in.systolic >= 120:
		multiplier = 1.15
	}

	switch {
	case in.age >= 60:
		multiplier *= 1.2
	case in.age >= 45:
		multiplier *= 1.1
	}

	switch {
	case in.bmi >= 30:
		multiplier *= 1.25
	case in.bmi >= 25:
		multiplier *= 1.1
	}

	return sigmoid(score*multiplier + 0.3)
}

func (s ForestSurrogate) Predict(x features.Vector) (int, error) {
	return labelFor(s.probability(x)), nil
}

func (s ForestSurrogate) PredictProba(x features.Vector) ([]float64, error) {
	p := s.probability(x)
	return []float64{1 - p, p}, nil
}

// BoostSurrogate approximates the gradient boosted model as a logit with
// step adjustments at the learned split points.
type BoostSurrogate struct{}

func (BoostSurrogate) probability(x features.Vector) float64 {
	in := inputsFrom(x)

	logit := -0.85 +
		ageScale.apply(in.age)*0.022 +
		bmiScale.apply(in.bmi)*0.045 +
		systolicScale.apply(in.systolic)*0.058 +
		diastolicScale.apply(in.diastolic)*0.048 +
		heartRateScale.apply(in.heartRate)*0.015 +
		genderScale.apply(in.gender)*0.12

	switch {
	case in.systolic > 160:
		logit += 1.2
	case in.systolic > 140:
		logit += 0.7
	case in.systolic > 130:
		logit += 0.4
	}

	switch {
	case in.diastolic > 100:
		logit += 0.9
	case in.diastolic > 90:
		logit += 0.5
	case in.diastolic > 80:
		logit += 0.25
	}

	switch {
	case in.age > 65:
		logit += 0.5
	case in.age > 50:
		logit += 0.25
	}

	switch {
	case in.bmi > 35:
		logit += 0.6
	case in.bmi > 30:
		logit += 0.35
	case in.bmi > 27:
		logit += 0.15
	}

	switch {
	case in.heartRate > 100:
		logit += 0.3
	case in.heartRate > 90:
		logit += 0.15
	}

	return sigmoid(logit)
}

func (s BoostSurrogate) Predict(x features.Vector) (int, error) {
	return labelFor(s.probability(x)), nil
}

func (s BoostSurrogate) PredictProba(x features.Vector) ([]float64, error) {
	p := s.probability(x)
	return []float64{1 - p, p}, nil
}

// Surrogate returns the built-in surrogate for a recognized model name, or nil.
func Surrogate(name string) Classifier {
	switch name {
	case RandomForest:
		return ForestSurrogate{}
	case XGBoost:
		return BoostSurrogate{}
	}
	return nil
}

func labelFor(p float64) int {
	if p >= 0.5 {
		return 1
	}
	return 0
}

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
