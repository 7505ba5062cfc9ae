// Package stream serves the live device feed: a wristband pushes readings
// over a websocket and receives a fresh assessment computed over its most
// recent window of readings.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"afyaband-ml/internal/common"
	"afyaband-ml/internal/features"
	"afyaband-ml/internal/ml"
	"afyaband-ml/internal/service"
)

// Inbound message types
const (
	MsgReading = "reading"
	MsgProfile = "profile"
	MsgReset   = "reset"
)

// Outbound frame types
const (
	FrameAssessment = "assessment"
	FrameBuffering  = "buffering"
	FrameAck        = "ack"
	FrameError      = "error"
)

// Message is what a device sends.
type Message struct {
	Type    string                 `json:"type"`
	Reading *features.VitalReading `json:"reading,omitempty"`
	Profile *features.UserProfile  `json:"profile,omitempty"`
}

// Frame is what the device receives in reply to each message.
type Frame struct {
	Type       string                      `json:"type"`
	Buffered   int                         `json:"buffered"`
	Required   int                         `json:"required,omitempty"`
	Prediction *service.PredictionResponse `json:"prediction,omitempty"`
	Ensemble   *service.EnsembleResponse   `json:"ensemble,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// Recorder receives stream metrics.
type Recorder interface {
	StreamSessionAdd(delta float64)
	StreamMessageInc(kind string)
}

type Config struct {
	Window       int
	MinReadings  int
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	CheckOrigin  func(r *http.Request) bool
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = common.DefaultStreamWindow
	}
	if c.MinReadings <= 0 {
		c.MinReadings = common.DefaultStreamMinReadings
	}
	if c.MinReadings > c.Window {
		c.MinReadings = c.Window
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 * 1024
	}
	return c
}

type Handler struct {
	svc      *service.Service
	cfg      Config
	recorder Recorder
	upgrader websocket.Upgrader
}

func NewHandler(svc *service.Service, cfg Config, recorder Recorder) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		svc:      svc,
		cfg:      cfg,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// ServeHTTP upgrades the connection. The optional "model" query parameter
// selects a single model; without it every reading window is assessed by the
// ensemble. "deviceId" tags stored history.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model != "" {
		model = service.NormalizeModel(model)
		if err := h.svc.CheckModel(model); err != nil {
			code := http.StatusServiceUnavailable
			if errors.Is(err, ml.ErrInput) {
				code = http.StatusBadRequest
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(service.ErrorResponse{Detail: err.Error()})
			return
		}
	}

	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		deviceID = common.DefaultDeviceID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	if h.recorder != nil {
		h.recorder.StreamSessionAdd(1)
		defer h.recorder.StreamSessionAdd(-1)
	}

	s := &session{
		h:        h,
		conn:     conn,
		deviceID: deviceID,
		model:    model,
		window:   features.NewWindow(h.cfg.Window),
	}
	log.Info().Str("device_id", deviceID).Str("model", model).Msg("Device stream opened")
	s.run()
	log.Info().Str("device_id", deviceID).Msg("Device stream closed")
}

type session struct {
	h        *Handler
	conn     *websocket.Conn
	deviceID string
	model    string // empty for ensemble
	window   *features.Window
	profile  *features.UserProfile
}

func (s *session) run() {
	cfg := s.h.cfg
	pongWait := 2 * cfg.PingInterval

	s.conn.SetReadLimit(cfg.ReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("device_id", s.deviceID).Msg("Device stream read failed")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		frame := s.handle(data)

		s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
		if err := s.conn.WriteJSON(frame); err != nil {
			log.Warn().Err(err).Str("device_id", s.deviceID).Msg("Device stream write failed")
			return
		}
	}
}

// keepAlive pings until done is closed. WriteControl may run concurrently
// with the read loop's writes.
func (s *session) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(s.h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.h.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				log.Debug().Err(err).Str("device_id", s.deviceID).Msg("Ping failed")
				return
			}
		}
	}
}

func (s *session) count(kind string) {
	if s.h.recorder != nil {
		s.h.recorder.StreamMessageInc(kind)
	}
}

func (s *session) errorFrame(format string, args ...any) Frame {
	s.count("invalid")
	return Frame{Type: FrameError, Buffered: s.window.Len(), Error: fmt.Sprintf(format, args...)}
}

// handle processes one message. Bad messages yield an error frame and the
// connection stays open.
func (s *session) handle(data []byte) Frame {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return s.errorFrame("invalid message: %v", err)
	}
	if msg.Type == "" && msg.Reading != nil {
		msg.Type = MsgReading
	}

	switch msg.Type {
	case MsgReading:
		if msg.Reading == nil {
			return s.errorFrame("reading message without reading")
		}
		if verr := service.ValidateReading(*msg.Reading); verr != nil {
			return s.errorFrame("invalid reading: %v", verr)
		}
		s.count(MsgReading)
		s.window.Add(*msg.Reading)
		return s.assess()

	case MsgProfile:
		if verr := service.ValidateProfile(msg.Profile); verr != nil {
			return s.errorFrame("invalid profile: %v", verr)
		}
		s.count(MsgProfile)
		s.profile = msg.Profile
		return Frame{Type: FrameAck, Buffered: s.window.Len()}

	case MsgReset:
		s.count(MsgReset)
		s.window.Reset()
		return Frame{Type: FrameAck, Buffered: 0}

	default:
		return s.errorFrame("unknown message type %q", msg.Type)
	}
}

func (s *session) assess() Frame {
	buffered := s.window.Len()
	if buffered < s.h.cfg.MinReadings {
		return Frame{Type: FrameBuffering, Buffered: buffered, Required: s.h.cfg.MinReadings}
	}

	req := service.PredictRequest{
		Readings:    s.window.Snapshot(),
		UserProfile: s.profile,
		Model:       s.model,
		DeviceID:    s.deviceID,
	}

	if s.model == "" {
		resp, err := s.h.svc.PredictEnsembleFrom(service.SourceStream, req)
		if err != nil {
			return Frame{Type: FrameError, Buffered: buffered, Error: err.Error()}
		}
		return Frame{Type: FrameAssessment, Buffered: buffered, Ensemble: &resp}
	}

	resp, err := s.h.svc.PredictFrom(service.SourceStream, req)
	if err != nil {
		return Frame{Type: FrameError, Buffered: buffered, Error: err.Error()}
	}
	return Frame{Type: FrameAssessment, Buffered: buffered, Prediction: &resp}
}
