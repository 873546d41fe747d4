// Package ipc exposes a running panel over HTTP and WebSocket so that a
// browser or test harness can present it and act on it.
package ipc

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/odvcencio/panel/pkg/engine"
	apperrors "github.com/odvcencio/panel/pkg/errors"
	"github.com/odvcencio/panel/pkg/logging"
	"github.com/odvcencio/panel/pkg/panel"
	"github.com/odvcencio/panel/pkg/telemetry"
)

const (
	EventPanelSnapshot = "panel.snapshot"
	EventServerPong    = "server.pong"
	EventServerError   = "server.error"
)

var (
	errForbiddenOrigin = stdliberrors.New("origin not allowed")
	errRateLimited     = stdliberrors.New("too many activations")
	errTooManyClients  = stdliberrors.New("too many connections")
)

// PanelEngine is the subset of the engine the server drives.
type PanelEngine interface {
	Display(ctx context.Context, payload []byte) error
	Request(ctx context.Context, payload []byte) error
	Activate(ctx context.Context, componentID, boundInput string) (engine.OutboundEvent, error)
	Input(ctx context.Context, componentID, value string) error
	Snapshot(ctx context.Context) (panel.Snapshot, error)
	InstanceID() string
}

// Config controls the IPC server behavior.
type Config struct {
	BindAddress    string
	AllowedOrigins []string
	// ActivationRate is the sustained activations and inputs accepted per
	// second. Zero disables limiting.
	ActivationRate  float64
	ActivationBurst int
	Version         string
}

// Server hosts a JSON/HTTP + WebSocket API for external UIs.
type Server struct {
	cfg        Config
	origins    originPolicy
	engine     PanelEngine
	telemetry  *telemetry.Hub
	hub        *Hub
	limiter    *rate.Limiter
	conns      *connLimiter
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer constructs a server in front of eng. telemetryHub may be nil,
// in which case clients only see snapshots they ask for.
func NewServer(cfg Config, eng PanelEngine, telemetryHub *telemetry.Hub, logger *logging.Logger) *Server {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1:4490"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	limit := rate.Inf
	if cfg.ActivationRate > 0 {
		limit = rate.Limit(cfg.ActivationRate)
	}
	burst := cfg.ActivationBurst
	if burst <= 0 {
		burst = 1
	}

	return &Server{
		cfg:       cfg,
		origins:   newOriginPolicy(cfg.AllowedOrigins),
		engine:    eng,
		telemetry: telemetryHub,
		hub:       NewHub(),
		limiter:   rate.NewLimiter(limit, burst),
		conns:     newConnLimiter(maxEventStreamClients),
		logger:    logger.Component("ipc"),
	}
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.corsMiddleware)
	router.Use(s.securityHeadersMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws", s.handleWebSocket)

	router.Route("/api", func(r chi.Router) {
		r.Get("/panel", s.handlePanel)
		r.Group(func(r chi.Router) {
			r.Use(s.originGuard)
			r.Post("/activate/{componentID}", s.handleActivate)
			r.Post("/input/{componentID}", s.handleInput)
			r.Post("/display", s.handleDisplay)
			r.Post("/request", s.handleRequest)
		})
	})
	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.BindAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	s.forwardTelemetry(ctx)

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving panel", "bind", s.cfg.BindAddress, "panel_id", s.engine.InstanceID())
		if err := s.httpServer.ListenAndServe(); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "ipc listen").
			WithContext("bind", s.cfg.BindAddress)
	}
}

// forwardTelemetry relays hub events to websocket clients until ctx ends.
// Every state-changing event is followed by a fresh snapshot.
func (s *Server) forwardTelemetry(ctx context.Context) {
	if s.telemetry == nil {
		return
	}
	ch, cancel := s.telemetry.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				s.broadcastTelemetry(event)
				if changesState(event.Type) {
					s.broadcastSnapshot(ctx)
				}
			}
		}
	}()
}

func changesState(t telemetry.EventType) bool {
	switch t {
	case telemetry.EventCommandApplied, telemetry.EventActivated,
		telemetry.EventInputChanged, telemetry.EventLayoutReloaded:
		return true
	default:
		return false
	}
}

func (s *Server) broadcastTelemetry(event telemetry.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.hub.Broadcast(Event{
		Type:      fmt.Sprintf("telemetry.%s", event.Type),
		PanelID:   event.PanelID,
		Payload:   event,
		Timestamp: event.Timestamp,
	})
}

func (s *Server) broadcastSnapshot(ctx context.Context) {
	if s.hub.ClientCount() == 0 {
		return
	}
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("snapshot for broadcast failed", "error", err)
		return
	}
	s.hub.Broadcast(s.snapshotEvent(snap))
}

func (s *Server) snapshotEvent(snap panel.Snapshot) Event {
	return Event{
		Type:      EventPanelSnapshot,
		PanelID:   s.engine.InstanceID(),
		Payload:   snap,
		Timestamp: time.Now(),
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":  "ok",
		"panelId": s.engine.InstanceID(),
		"version": s.cfg.Version,
		"clients": s.hub.ClientCount(),
		"evicted": s.hub.Evicted(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context())
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]any{
		"panelId":  s.engine.InstanceID(),
		"snapshot": snap,
	})
}

type activateRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, errRateLimited)
		return
	}
	var req activateRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, true); err != nil {
		respondError(w, status, err)
		return
	}
	componentID := strings.TrimSpace(chi.URLParam(r, "componentID"))
	event, err := s.engine.Activate(r.Context(), componentID, strings.TrimSpace(req.Input))
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, event)
}

type inputRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, errRateLimited)
		return
	}
	var req inputRequest
	if status, err := decodeJSONBody(w, r, &req, maxBodyBytesTiny, false); err != nil {
		respondError(w, status, err)
		return
	}
	componentID := strings.TrimSpace(chi.URLParam(r, "componentID"))
	if err := s.engine.Input(r.Context(), componentID, req.Value); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	s.handleInbound(w, r, s.engine.Display)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.handleInbound(w, r, s.engine.Request)
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request, apply func(context.Context, []byte) error) {
	payload, status, err := readRawBody(w, r, maxBodyBytesSmall)
	if err != nil {
		respondError(w, status, err)
		return
	}
	if err := apply(r.Context(), payload); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "applied"})
}
