package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afyaband-ml/internal/features"
	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/risk"
	"afyaband-ml/internal/server"
	"afyaband-ml/internal/service"
	"afyaband-ml/internal/storage"
)

func newTestClient(t *testing.T, classifiers map[string]ml.Classifier, withHistory bool) *Client {
	t.Helper()
	reg := ml.NewRegistry(classifiers, nil)
	svc := service.New(ml.NewPipeline(reg, features.DefaultDefaults(), nil), risk.NewInterpreter(risk.DefaultThresholds()), nil)
	if withHistory {
		store, err := storage.New(filepath.Join(t.TempDir(), "data"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		svc.SetStorage(store)
	}

	srv := server.New(server.Config{CORSOrigins: []string{"*"}}, svc, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL+"/", 2*time.Second)
}

func request() service.PredictRequest {
	return service.PredictRequest{
		Readings: []features.VitalReading{
			{HeartRate: 72, Systolic: 140, Diastolic: 90},
			{HeartRate: 76, Systolic: 144, Diastolic: 92},
		},
		DeviceID: "band-7",
	}
}

func TestInfoAndHealth(t *testing.T) {
	c := newTestClient(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.8)}, false)

	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, "running", info.Status)
	assert.True(t, info.ModelsLoaded[ml.RandomForest])
	assert.False(t, info.ModelsLoaded[ml.XGBoost])
	assert.False(t, info.HistoryEnabled)

	h, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
}

func TestPredict(t *testing.T) {
	c := newTestClient(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.8)}, false)

	resp, err := c.Predict(request())
	require.NoError(t, err)
	assert.Equal(t, risk.StatusCritical, resp.Status)
	assert.InDelta(t, 80.0, resp.RiskScore, 1e-9)
	assert.Equal(t, ml.RandomForest, resp.ModelUsed)
	require.NotNil(t, resp.Confidence)
}

func TestPredictEnsemble(t *testing.T) {
	c := newTestClient(t, map[string]ml.Classifier{
		ml.RandomForest: ml.NewProbClassifier(0.2),
		ml.XGBoost:      ml.NewProbClassifier(0.4),
	}, false)

	resp, err := c.PredictEnsemble(request())
	require.NoError(t, err)
	assert.Equal(t, service.EnsembleModel, resp.ModelUsed)
	assert.Equal(t, risk.StatusNormal, resp.Status)
	assert.Len(t, resp.IndividualResults, 2)
}

func TestAPIErrors(t *testing.T) {
	c := newTestClient(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.8)}, false)

	req := request()
	req.Model = "svm"
	_, err := c.Predict(req)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Unknown model: svm. Use 'random_forest' or 'xgboost'.", apiErr.Detail)

	req.Model = ml.XGBoost
	_, err = c.Predict(req)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	_, err = c.History("band-7", 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "503")
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.8)}, true)

	records, err := c.History("band-7", 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	for i := 0; i < 3; i++ {
		_, err := c.Predict(request())
		require.NoError(t, err)
	}

	records, err = c.History("band-7", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "band-7", records[0].DeviceID)
	assert.Equal(t, ml.RandomForest, records[0].Model)
	assert.False(t, records[0].Timestamp.Before(records[1].Timestamp))
}

func TestHistoryRange(t *testing.T) {
	c := newTestClient(t, map[string]ml.Classifier{ml.RandomForest: ml.NewProbClassifier(0.8)}, true)

	start := time.Now().Add(-time.Minute)
	for i := 0; i < 2; i++ {
		_, err := c.Predict(request())
		require.NoError(t, err)
	}

	records, err := c.HistoryRange("band-7", start, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[1].Timestamp.Before(records[0].Timestamp))

	records, err = c.HistoryRange("band-7", time.Time{}, start, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Health()
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "afyaband: status 502", (&APIError{StatusCode: 502}).Error())
	assert.Equal(t, "afyaband: 400 bad", (&APIError{StatusCode: 400, Detail: "bad"}).Error())
}
