// Package server exposes the option selector over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"bayesian-melody-predictor/internal/dataset"
	"bayesian-melody-predictor/internal/ml"
	"bayesian-melody-predictor/internal/selection"
	"bayesian-melody-predictor/internal/storage"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxRequestBytes = 4 << 20

// Selector is satisfied by *selection.Selector.
type Selector interface {
	SelectBest(ctx context.Context, req selection.Request) (selection.Result, error)
}

// ModelInfoProvider is satisfied by *ml.Regressor.
type ModelInfoProvider interface {
	Info() ml.ModelInfo
}

// AuditStore is satisfied by *storage.Store.
type AuditStore interface {
	StoreSelection(record storage.SelectionRecord) error
}

// MetricsInterface defines the transport metrics.
type MetricsInterface interface {
	HTTPRequestInc(route string, code int)
	WSSessionsAdd(delta float64)
}

type Config struct {
	Port           int
	RequestTimeout time.Duration
	PitchRange     dataset.PitchRange
	ModelVersion   string
}

// Server serves selection requests. audit and metrics are optional.
type Server struct {
	cfg      Config
	selector Selector
	model    ModelInfoProvider
	audit    AuditStore
	metrics  MetricsInterface
	upgrader websocket.Upgrader
	started  time.Time
	version  atomic.Value
	server   *http.Server
}

func New(cfg Config, selector Selector, model ModelInfoProvider, audit AuditStore, metrics MetricsInterface) *Server {
	s := &Server{
		cfg:      cfg,
		selector: selector,
		model:    model,
		audit:    audit,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		started: time.Now(),
	}
	s.version.Store(cfg.ModelVersion)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/select", s.handleSelect)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/model/info", s.handleModelInfo)
	mux.HandleFunc("/ws/select", s.handleWebsocket)
	return mux
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting selection server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	const route = "/select"
	if r.Method != http.MethodPost {
		s.writeError(w, route, http.StatusMethodNotAllowed, "", errors.New("method not allowed"))
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, route, http.StatusBadRequest, req.RequestID, fmt.Errorf("invalid request: %w", err))
		return
	}

	resp, err := s.process(r.Context(), &req)
	if err != nil {
		s.writeError(w, route, statusFor(err), req.RequestID, err)
		return
	}
	s.writeJSON(w, route, http.StatusOK, resp)
}

// process runs one selection under the configured deadline and records it in
// the audit store.
func (s *Server) process(ctx context.Context, req *SelectRequest) (SelectResponse, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	result, err := s.selector.SelectBest(ctx, selection.Request{
		SeedWindow: req.SeedWindow,
		Candidates: req.Candidates,
		Horizon:    req.Horizon,
		Strategy:   req.Strategy,
	})
	if err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("selection failed")
		return SelectResponse{}, err
	}

	latency := float64(time.Since(start).Microseconds()) / 1000.0
	resp := newSelectResponse(req.RequestID, result, s.cfg.PitchRange, latency)
	s.record(req, result, latency)
	return resp, nil
}

func (s *Server) record(req *SelectRequest, result selection.Result, latency float64) {
	if s.audit == nil {
		return
	}
	scores := make([]float64, len(result.Scores))
	for i, cs := range result.Scores {
		scores[i] = cs.Score
	}
	rec := storage.SelectionRecord{
		RequestID:    req.RequestID,
		Timestamp:    time.Now(),
		Strategy:     result.Strategy,
		Horizon:      result.Forecast.Len(),
		Candidates:   len(result.Scores),
		BestIndex:    result.BestIndex,
		Scores:       scores,
		ModelVersion: s.modelVersion(),
		LatencyMs:    latency,
	}
	if err := s.audit.StoreSelection(rec); err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to store selection record")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.model.Info()
	health := HealthResponse{
		Status:       "ok",
		ModelTrained: info.Trained,
		ModelVersion: s.modelVersion(),
		Uptime:       time.Since(s.started).Seconds(),
	}

	status := http.StatusOK
	if !info.Trained {
		health.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, "/health", status, health)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "/model/info", http.StatusOK, ModelInfoResponse{
		ModelInfo:    s.model.Info(),
		ModelVersion: s.modelVersion(),
		PitchRange:   s.cfg.PitchRange,
	})
}

// SetModelVersion changes the version reported by /health, /model/info and
// the audit records, after the model has been reloaded.
func (s *Server) SetModelVersion(version string) {
	s.version.Store(version)
}

func (s *Server) modelVersion() string {
	return s.version.Load().(string)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ml.ErrInputShape), errors.Is(err, ml.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrModelNotTrained):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("route", route).Msg("failed to encode response")
	}
	if s.metrics != nil {
		s.metrics.HTTPRequestInc(route, status)
	}
}

func (s *Server) writeError(w http.ResponseWriter, route string, status int, requestID string, err error) {
	s.writeJSON(w, route, status, ErrorResponse{Error: err.Error(), RequestID: requestID})
}
