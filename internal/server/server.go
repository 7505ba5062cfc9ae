// Package server exposes the prediction service over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/service"
	"afyaband-ml/internal/storage"
)

const maxBodyBytes = 1 << 20

// Recorder receives per-request metrics.
type Recorder interface {
	RequestObserve(route string, code int, seconds float64)
}

type Config struct {
	Addr        string
	CORSOrigins []string
}

// Server provides the HTTP API for predictions
type Server struct {
	svc      *service.Service
	recorder Recorder
	cors     *cors.Cors
	handler  http.Handler
	server   *http.Server
}

// New wires the routes. stream and metrics may be nil, in which case their
// routes are not registered.
func New(cfg Config, svc *service.Service, stream http.Handler, metrics http.Handler, recorder Recorder) *Server {
	s := &Server{
		svc:      svc,
		recorder: recorder,
		cors:     newCORS(cfg.CORSOrigins),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST /predict/ensemble", s.handlePredictEnsemble)
	mux.HandleFunc("GET /history", s.handleHistory)
	if stream != nil {
		mux.Handle("GET /ws/stream", stream)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.handler = s.instrument(s.withCORS(mux))
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting prediction server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Info())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.HealthResponse{Status: "healthy"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.svc.Predict(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredictEnsemble(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.svc.PredictEnsemble(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHistory serves the most recent assessments, or with from/to
// (RFC 3339) the assessments in that range, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	from, ok := parseTimeParam(w, q.Get("from"), "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, q.Get("to"), "to")
	if !ok {
		return
	}

	var (
		records []storage.AssessmentRecord
		err     error
	)
	if from.IsZero() && to.IsZero() {
		records, err = s.svc.History(q.Get("deviceId"), limit)
	} else {
		records, err = s.svc.HistoryRange(q.Get("deviceId"), from, to, limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []storage.AssessmentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func parseTimeParam(w http.ResponseWriter, v, name string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (service.PredictRequest, bool) {
	var req service.PredictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	return req, true
}

// statusFor maps a service error to its HTTP status and detail message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ml.ErrInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ml.ErrNoModelsAvailable):
		return http.StatusServiceUnavailable, "No models available for prediction"
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, service.ErrHistoryDisabled):
		return http.StatusServiceUnavailable, "Assessment history is not enabled. Set DATA_PATH to enable it."
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Prediction error: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, detail := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeDetail(w, code, detail)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, service.ErrorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// statusWriter captures the response code. It forwards Hijack so websocket
// upgrades pass through the middleware.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.code == 0 {
		sw.code = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.code == 0 {
		sw.code = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if sw.code == 0 {
		sw.code = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(sw.ResponseWriter).Hijack()
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		code := sw.code
		if code == 0 {
			code = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		if s.recorder != nil {
			s.recorder.RequestObserve(route, code, elapsed.Seconds())
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", code).
			Dur("duration", elapsed).
			Msg("request served")
	})
}
