// Package service runs readings through the prediction pipeline and the risk
// interpreter and records the outcome. The HTTP server and the device stream
// are thin transports over it.
package service

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"afyaband-ml/internal/common"
	"afyaband-ml/internal/features"
	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/risk"
	"afyaband-ml/internal/storage"
)

const (
	// EnsembleModel is the modelUsed value of ensemble assessments.
	EnsembleModel = "ensemble"

	SourceHTTP   = "http"
	SourceStream = "stream"

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// ErrHistoryDisabled is returned by history queries when no store is configured.
var ErrHistoryDisabled = errors.New("assessment history is not enabled")

// Recorder receives assessment metrics.
type Recorder interface {
	AssessmentObserve(status string, score float64)
}

// HistoryStore persists assessments. *storage.Store implements it.
type HistoryStore interface {
	StoreAssessment(rec storage.AssessmentRecord) (storage.AssessmentRecord, error)
	StoreFeatures(rec storage.FeatureRecord) error
	RecentAssessments(deviceID string, limit int) ([]storage.AssessmentRecord, error)
	GetAssessments(deviceID string, start, end time.Time) ([]storage.AssessmentRecord, error)
}

type Service struct {
	pipeline    *ml.Pipeline
	interpreter *risk.Interpreter
	recorder    Recorder

	mu    sync.RWMutex
	store HistoryStore
}

func New(pipeline *ml.Pipeline, interpreter *risk.Interpreter, recorder Recorder) *Service {
	return &Service{pipeline: pipeline, interpreter: interpreter, recorder: recorder}
}

// SetStorage enables assessment history.
func (s *Service) SetStorage(store HistoryStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

func (s *Service) historyStore() HistoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// NormalizeModel lower-cases name and applies the random_forest default.
func NormalizeModel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ml.RandomForest
	}
	return name
}

// CheckModel reports whether name is recognized and loaded.
func (s *Service) CheckModel(name string) error {
	if !ml.IsKnownModel(name) {
		return &UnknownModelError{Name: name}
	}
	if !s.pipeline.Registry().IsAvailable(name) {
		return &ModelUnavailableError{Name: name}
	}
	return nil
}

func (s *Service) Info() ServiceInfo {
	reg := s.pipeline.Registry()
	return ServiceInfo{
		Service:        common.ServiceName,
		Status:         "running",
		Version:        common.ServiceVersion,
		ModelsLoaded:   reg.Availability(),
		Models:         reg.Info(),
		HistoryEnabled: s.historyStore() != nil,
	}
}

// Predict assesses req with the single model it names.
func (s *Service) Predict(req PredictRequest) (PredictionResponse, error) {
	return s.predict(req, SourceHTTP)
}

// PredictFrom is Predict with an explicit history source.
func (s *Service) PredictFrom(source string, req PredictRequest) (PredictionResponse, error) {
	return s.predict(req, source)
}

func (s *Service) predict(req PredictRequest, source string) (PredictionResponse, error) {
	if err := req.Validate(); err != nil {
		return PredictionResponse{}, err
	}
	name := NormalizeModel(req.Model)
	if err := s.CheckModel(name); err != nil {
		return PredictionResponse{}, err
	}

	out, v, err := s.pipeline.Predict(name, req.Readings, req.UserProfile)
	if err != nil {
		return PredictionResponse{}, err
	}

	resp := PredictionResponse{
		Assessment: s.interpreter.Interpret(out.Class, out.Probability),
		Insights:   risk.ModelInsights(name),
		ModelUsed:  name,
		Confidence: risk.Confidence(out.Probability),
		RequestID:  uuid.New().String(),
	}

	s.record(req, source, resp, out.Class, out.Probability, v)
	return resp, nil
}

// PredictEnsemble assesses req with every available model.
func (s *Service) PredictEnsemble(req PredictRequest) (EnsembleResponse, error) {
	return s.predictEnsemble(req, SourceHTTP)
}

// PredictEnsembleFrom is PredictEnsemble with an explicit history source.
func (s *Service) PredictEnsembleFrom(source string, req PredictRequest) (EnsembleResponse, error) {
	return s.predictEnsemble(req, source)
}

func (s *Service) predictEnsemble(req PredictRequest, source string) (EnsembleResponse, error) {
	if err := req.Validate(); err != nil {
		return EnsembleResponse{}, err
	}

	out, err := s.pipeline.PredictEnsemble(req.Readings, req.UserProfile)
	if err != nil {
		return EnsembleResponse{}, err
	}

	for name, res := range out.Results {
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("model", name).Msg("Model failed during ensemble prediction")
		}
	}

	class := out.PredictedClass()
	resp := EnsembleResponse{
		PredictionResponse: PredictionResponse{
			Assessment: s.interpreter.Interpret(class, out.Probability),
			Insights:   risk.EnsembleInsights(),
			ModelUsed:  EnsembleModel,
			Confidence: risk.Confidence(out.Probability),
			RequestID:  uuid.New().String(),
		},
		IndividualResults: out.Results,
	}

	s.record(req, source, resp.PredictionResponse, class, out.Probability, out.Features)
	return resp, nil
}

// History returns a device's most recent assessments, newest first.
func (s *Service) History(deviceID string, limit int) ([]storage.AssessmentRecord, error) {
	store := s.historyStore()
	if store == nil {
		return nil, ErrHistoryDisabled
	}
	if deviceID == "" {
		deviceID = common.DefaultDeviceID
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return store.RecentAssessments(deviceID, limit)
}

// HistoryRange returns a device's assessments between from and to inclusive,
// oldest first. A zero from means the beginning, a zero to means now. A
// non-positive limit returns up to MaxHistoryLimit records.
func (s *Service) HistoryRange(deviceID string, from, to time.Time, limit int) ([]storage.AssessmentRecord, error) {
	store := s.historyStore()
	if store == nil {
		return nil, ErrHistoryDisabled
	}
	if deviceID == "" {
		deviceID = common.DefaultDeviceID
	}
	if from.IsZero() {
		from = time.Unix(0, 0)
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.After(to) {
		return nil, &ValidationError{Field: "from", Msg: "must not be after to"}
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	records, err := store.GetAssessments(deviceID, from, to)
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// record reports metrics and, when history is enabled, stores the
// assessment and the features behind it. Storage failures are logged only.
func (s *Service) record(req PredictRequest, source string, resp PredictionResponse, class int, probability *float64, v features.Vector) {
	if s.recorder != nil {
		s.recorder.AssessmentObserve(string(resp.Status), resp.RiskScore)
	}

	log.Info().
		Str("request_id", resp.RequestID).
		Str("model", resp.ModelUsed).
		Str("status", string(resp.Status)).
		Float64("risk_score", resp.RiskScore).
		Int("readings", len(req.Readings)).
		Str("source", source).
		Msg("Assessment completed")

	store := s.historyStore()
	if store == nil {
		return
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = common.DefaultDeviceID
	}

	rec, err := store.StoreAssessment(storage.AssessmentRecord{
		ID:           resp.RequestID,
		DeviceID:     deviceID,
		Model:        resp.ModelUsed,
		Source:       source,
		Status:       string(resp.Status),
		RiskScore:    resp.RiskScore,
		Probability:  probability,
		ReadingCount: len(req.Readings),
		Features:     v.Named(),
	})
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("failed to store assessment")
		return
	}

	featureRec := storage.NewFeatureRecord(deviceID, resp.ModelUsed, v, class, probability)
	featureRec.Timestamp = rec.Timestamp
	if err := store.StoreFeatures(featureRec); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("failed to store feature record")
	}
}
