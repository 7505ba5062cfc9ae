package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afyaband-ml/internal/features"
	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/risk"
	"afyaband-ml/internal/service"
	"afyaband-ml/internal/storage"
)

type fakeRecorder struct {
	mu       sync.Mutex
	requests map[string]int
}

func (f *fakeRecorder) RequestObserve(route string, code int, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = make(map[string]int)
	}
	f.requests[fmt.Sprintf("%s %d", route, code)]++
}

func newTestServer(t *testing.T, classifiers map[string]ml.Classifier, origins ...string) (*Server, *service.Service, *fakeRecorder) {
	t.Helper()
	reg := ml.NewRegistry(classifiers, nil)
	svc := service.New(ml.NewPipeline(reg, features.DefaultDefaults(), nil), risk.NewInterpreter(risk.DefaultThresholds()), nil)
	rec := &fakeRecorder{}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	srv := New(Config{Addr: ":0", CORSOrigins: origins}, svc, nil, http.NotFoundHandler(), rec)
	return srv, svc, rec
}

const validBody = `{"readings":[{"heartRate":72,"systolic":128,"diastolic":84,"timestamp":1700000000},{"heartRate":78,"systolic":132,"diastolic":86,"timestamp":1700000060}]}`

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func detail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e service.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	return e.Detail
}

func TestRootAndHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]ml.Classifier{ml.XGBoost: ml.NewProbClassifier(0.5)})

	rr := do(t, srv.Handler(), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var info service.ServiceInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, "AfyaBand ML Prediction Service", info.Service)
	assert.Equal(t, map[string]bool{"random_forest": false, "xgboost": true}, info.ModelsLoaded)

	rr = do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())

	rr = do(t, srv.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPredictEndpoint(t *testing.T) {
	srv, _, rec := newTestServer(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.85)})

	rr := do(t, srv.Handler(), http.MethodPost, "/predict", validBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "critical", body["status"])
	assert.InDelta(t, 85.0, body["riskScore"], 1e-9)
	assert.InDelta(t, 85.0, body["confidence"], 1e-9)
	assert.Equal(t, "random_forest", body["modelUsed"])
	assert.Equal(t, "High risk of hypertension detected. Immediate attention recommended.", body["summary"])
	assert.Len(t, body["factors"], 2)
	assert.NotEmpty(t, body["requestId"])

	assert.Equal(t, 1, rec.requests["POST /predict 200"])
}

func TestPredictErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]ml.Classifier{
		ml.XGBoost: &ml.StubClassifier{PredictErr: errors.New("model exploded")},
	})

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantDetail string
	}{
		{
			name:       "unknown model",
			body:       `{"model":"svm","readings":[{"heartRate":70,"systolic":120,"diastolic":80,"timestamp":1}]}`,
			wantCode:   http.StatusBadRequest,
			wantDetail: "Unknown model: svm. Use 'random_forest' or 'xgboost'.",
		},
		{
			name:       "model not loaded",
			body:       validBody,
			wantCode:   http.StatusServiceUnavailable,
			wantDetail: "random_forest model not loaded. Please ensure model files are present.",
		},
		{
			name:       "inference failure",
			body:       `{"model":"XGBOOST","readings":[{"heartRate":70,"systolic":120,"diastolic":80,"timestamp":1}]}`,
			wantCode:   http.StatusInternalServerError,
			wantDetail: "Prediction error: xgboost: predict: model exploded",
		},
		{
			name:       "empty readings",
			body:       `{"readings":[]}`,
			wantCode:   http.StatusBadRequest,
			wantDetail: "readings: at least one reading is required",
		},
		{
			name:       "malformed json",
			body:       `{"readings":`,
			wantCode:   http.StatusBadRequest,
		},
		{
			name:       "profile out of range",
			body:       `{"readings":[{"heartRate":70,"systolic":120,"diastolic":80,"timestamp":1}],"userProfile":{"bmi":5}}`,
			wantCode:   http.StatusBadRequest,
			wantDetail: "userProfile.bmi: must be at least 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv.Handler(), http.MethodPost, "/predict", tt.body)
			assert.Equal(t, tt.wantCode, rr.Code)
			d := detail(t, rr)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, d)
			} else {
				assert.NotEmpty(t, d)
			}
		})
	}
}

func TestPredictMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rr := do(t, srv.Handler(), http.MethodGet, "/predict", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPredictEnsembleEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]ml.Classifier{
		ml.RandomForest: &ml.StubClassifier{PredictErr: errors.New("boom")},
		ml.XGBoost:      ml.NewProbClassifier(0.9),
	})

	rr := do(t, srv.Handler(), http.MethodPost, "/predict/ensemble", validBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Status            string                     `json:"status"`
		RiskScore         float64                    `json:"riskScore"`
		ModelUsed         string                     `json:"modelUsed"`
		Insights          string                     `json:"insights"`
		IndividualResults map[string]json.RawMessage `json:"individualResults"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "critical", body.Status)
	assert.InDelta(t, 90.0, body.RiskScore, 1e-9)
	assert.Equal(t, "ensemble", body.ModelUsed)
	assert.Equal(t, "Ensemble prediction combining Random Forest and XGBoost models for improved accuracy.", body.Insights)
	assert.JSONEq(t, `{"error":"random_forest: predict: boom"}`, string(body.IndividualResults["random_forest"]))
	assert.JSONEq(t, `{"prediction":1,"probability":0.9}`, string(body.IndividualResults["xgboost"]))
}

func TestPredictEnsembleNoModels(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rr := do(t, srv.Handler(), http.MethodPost, "/predict/ensemble", validBody)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "No models available for prediction", detail(t, rr))
}

func TestHistoryEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.2)})

	rr := do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	svc.SetStorage(store)

	rr = do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	body := strings.Replace(validBody, `{"readings"`, `{"deviceId":"band-01","readings"`, 1)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodPost, "/predict", body).Code)
	}

	rr = do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01&limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var records []storage.AssessmentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Len(t, records, 2)
	assert.Equal(t, "normal", records[0].Status)

	rr = do(t, srv.Handler(), http.MethodGet, "/history?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryRangeEndpoint(t *testing.T) {
	srv, svc, _ := newTestServer(t, nil)
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	svc.SetStorage(store)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := store.StoreAssessment(storage.AssessmentRecord{
			DeviceID:  "band-01",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Status:    "normal",
		})
		require.NoError(t, err)
	}

	rr := do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01&from=2026-03-01T09:00:00Z&to=2026-03-01T10:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var records []storage.AssessmentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.True(t, records[0].Timestamp.Equal(base.Add(time.Hour)))
	assert.True(t, records[1].Timestamp.Equal(base.Add(2*time.Hour)))

	rr = do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01&from=2026-03-01T09:00:00Z&limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.True(t, records[0].Timestamp.Equal(base.Add(time.Hour)))

	rr = do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01&from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "from must be an RFC 3339 timestamp", detail(t, rr))

	rr = do(t, srv.Handler(), http.MethodGet, "/history?deviceId=band-01&from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "from: must not be after to", detail(t, rr))
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, "https://app.afyaband.io/")

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://app.afyaband.io")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.afyaband.io", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")), "content-type")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.afyaband.io")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://app.afyaband.io", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, "*")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSNoOrigins(t *testing.T) {
	_, svc, _ := newTestServer(t, nil)
	srv := New(Config{}, svc, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.afyaband.io")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://app.afyaband.io/"})

	req := httptest.NewRequest(http.MethodGet, "/ws/stream", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.afyaband.io")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, OriginChecker([]string{"*"})(req))
	assert.False(t, OriginChecker(nil)(req))
}

func TestStatusFor(t *testing.T) {
	code, msg := statusFor(fmt.Errorf("wrapped: %w", ml.ErrNoModelsAvailable))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "No models available for prediction", msg)

	code, _ = statusFor(service.ErrHistoryDisabled)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, msg = statusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Prediction error: disk on fire", msg)
}

func TestLargeBodyRejected(t *testing.T) {
	srv, _, _ := newTestServer(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.5)})

	var buf bytes.Buffer
	buf.WriteString(`{"readings":[`)
	for buf.Len() < maxBodyBytes+1024 {
		buf.WriteString(`{"heartRate":70,"systolic":120,"diastolic":80,"timestamp":1},`)
	}
	buf.WriteString(`{"heartRate":70,"systolic":120,"diastolic":80,"timestamp":1}]}`)

	rr := do(t, srv.Handler(), http.MethodPost, "/predict", buf.String())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
