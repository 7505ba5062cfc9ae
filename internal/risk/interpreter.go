// Package risk maps a classifier outcome to a user-facing assessment.
package risk

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"afyaband-ml/internal/common"
)

type Status string

const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Thresholds are risk-score cut points on the 0-100 scale. Both are inclusive
// lower bounds.
type Thresholds struct {
	Critical float64 `yaml:"critical" json:"critical"`
	Warning  float64 `yaml:"warning" json:"warning"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Critical: common.DefaultCriticalThreshold, Warning: common.DefaultWarningThreshold}
}

func (t Thresholds) Validate() error {
	if t.Warning <= 0 {
		return fmt.Errorf("warning threshold must be positive, got %v", t.Warning)
	}
	if t.Critical <= t.Warning {
		return fmt.Errorf("critical threshold (%v) must be above warning threshold (%v)", t.Critical, t.Warning)
	}
	if t.Critical > 100 {
		return fmt.Errorf("critical threshold must be at most 100, got %v", t.Critical)
	}
	return nil
}

type Assessment struct {
	Status         Status   `json:"status"`
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	RiskScore      float64  `json:"riskScore"`
	Factors        []string `json:"factors"`
}

type guidance struct {
	summary        string
	recommendation string
	factors        []string
}

var texts = map[Status]guidance{
	StatusCritical: {
		summary:        "High risk of hypertension detected. Immediate attention recommended.",
		recommendation: "Please consult a healthcare provider as soon as possible. Avoid strenuous activity and monitor your blood pressure closely.",
		factors:        []string{"Elevated blood pressure pattern", "High cardiovascular risk indicators"},
	},
	StatusWarning: {
		summary:        "Moderate risk indicators present. Lifestyle modifications recommended.",
		recommendation: "Consider reducing salt intake, increasing physical activity, and managing stress. Schedule a check-up with your doctor.",
		factors:        []string{"Borderline blood pressure", "Risk factors present"},
	},
	StatusNormal: {
		summary:        "Vital signs are within healthy ranges. Low hypertension risk.",
		recommendation: "Continue maintaining a healthy lifestyle with regular exercise and balanced diet.",
		factors:        []string{"Normal blood pressure", "Healthy heart rate patterns"},
	},
}

// Interpreter turns (class, probability) pairs into assessments. It holds no
// state beyond its thresholds and is safe for concurrent use.
type Interpreter struct {
	thresholds Thresholds
}

func NewInterpreter(t Thresholds) *Interpreter {
	return &Interpreter{thresholds: t}
}

func (i *Interpreter) Thresholds() Thresholds {
	return i.thresholds
}

// Score is probability*100 when a probability is present, otherwise
// class*100. Without a probability the score is therefore exactly 0 or 100.
func Score(class int, probability *float64) float64 {
	if probability != nil {
		return *probability * 100
	}
	return float64(class) * 100
}

// Interpret classifies the outcome. Critical scores are clamped to 100 and
// every score is floored at 0.
func (i *Interpreter) Interpret(class int, probability *float64) Assessment {
	score := Score(class, probability)
	if score < 0 {
		score = 0
	}

	status := i.Classify(score)
	if status == StatusCritical && score > 100 {
		score = 100
	}

	g := texts[status]
	factors := make([]string, len(g.factors))
	copy(factors, g.factors)

	return Assessment{
		Status:         status,
		Summary:        g.summary,
		Recommendation: g.recommendation,
		RiskScore:      score,
		Factors:        factors,
	}
}

// Classify returns the status band score falls in.
func (i *Interpreter) Classify(score float64) Status {
	switch {
	case score >= i.thresholds.Critical:
		return StatusCritical
	case score >= i.thresholds.Warning:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// ModelInsights names the model behind a single-model assessment.
func ModelInsights(model string) string {
	// a Caser is stateful, so one per call
	name := cases.Title(language.English).String(strings.ReplaceAll(model, "_", " "))
	return fmt.Sprintf("Prediction made using %s model trained on hypertension dataset.", name)
}

// EnsembleInsights describes an ensemble assessment.
func EnsembleInsights() string {
	return "Ensemble prediction combining Random Forest and XGBoost models for improved accuracy."
}

// Confidence is the probability as a percentage, or nil without one.
func Confidence(probability *float64) *float64 {
	if probability == nil {
		return nil
	}
	c := *probability * 100
	return &c
}
