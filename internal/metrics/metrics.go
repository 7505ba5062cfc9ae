// Package metrics provides Prometheus metrics collection for the AfyaBand
// prediction service. It covers model inference, ensemble degradation, risk
// assessments, the live stream and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Model metrics, labelled by model name
	PredictionsTotal      *prometheus.CounterVec   // Successful classifier calls
	InferenceFailures     *prometheus.CounterVec   // Classifier calls that returned an error
	InferenceTimeouts     *prometheus.CounterVec   // Classifier calls cut off by the inference timeout
	InferenceLatency      *prometheus.HistogramVec // Classifier call latency in seconds
	PredictionProbability *prometheus.HistogramVec // Positive-class probability distribution
	ModelsLoaded          *prometheus.GaugeVec     // 1 when the model is available

	// Ensemble metrics
	EnsembleTotal    prometheus.Counter // Ensemble predictions served
	EnsembleDegraded prometheus.Counter // Ensembles where some model did not contribute

	// Assessment metrics
	AssessmentsTotal *prometheus.CounterVec // Assessments by status
	RiskScores       prometheus.Histogram   // Risk score distribution

	// Stream metrics
	StreamSessions prometheus.Gauge       // Open device stream connections
	StreamMessages *prometheus.CounterVec // Stream messages by type

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration *prometheus.HistogramVec // Request duration by route

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afyaband_predictions_total",
			Help: "Total number of successful model predictions",
		}, []string{"model"}),
		InferenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afyaband_inference_failures_total",
			Help: "Total number of model inference failures",
		}, []string{"model"}),
		InferenceTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afyaband_inference_timeouts_total",
			Help: "Total number of model inference timeouts",
		}, []string{"model"}),
		InferenceLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afyaband_inference_latency_seconds",
			Help:    "Model inference latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"model"}),
		PredictionProbability: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afyaband_prediction_probability",
			Help:    "Distribution of positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"model"}),
		ModelsLoaded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "afyaband_model_loaded",
			Help: "Whether the model is loaded (1) or unavailable (0)",
		}, []string{"model"}),
		EnsembleTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "afyaband_ensemble_predictions_total",
			Help: "Total number of ensemble predictions",
		}),
		EnsembleDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "afyaband_ensemble_degraded_total",
			Help: "Ensemble predictions where at least one model did not contribute a probability",
		}),
		AssessmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afyaband_assessments_total",
			Help: "Total number of risk assessments by status",
		}, []string{"status"}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "afyaband_risk_score",
			Help:    "Distribution of risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		StreamSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "afyaband_stream_sessions",
			Help: "Number of open device stream connections",
		}),
		StreamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afyaband_stream_messages_total",
			Help: "Total number of device stream messages by type",
		}, []string{"type"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afyaband_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afyaband_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"route"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "afyaband_errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
