// Package preview serves a headless viewer over HTTP: what each surface
// shows, the session status, and control endpoints that stand in for the
// browser's buttons, keys and mouse.
package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/deckcast/go/internal/viewer/render"
	"github.com/mcdev12/deckcast/go/internal/viewer/screen"
	"github.com/mcdev12/deckcast/go/internal/viewer/session"
)

// Controller is the part of a session the control endpoints drive.
type Controller interface {
	Step(delta int) error
	Goto(page int) error
	ToggleLock(force bool) error
	TimerStart() error
	TimerStop() error
	TimerReset() error
	Key(key string) error
	Resized(ctx context.Context)
	PointerMove(x, y float64, held bool) error
	PointerRelease() error
	PointerLeave() error
	PointerBlur() error
	Status() session.Status
}

// Config holds configuration for the preview server
type Config struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// DefaultConfig returns default preview server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8090",
		AllowedOrigins: []string{"*"},
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
	}
}

// Server is the preview HTTP server.
type Server struct {
	ctl    Controller
	screen *screen.Screen
	http   *http.Server
}

// NewServer creates a preview server for one session and its screen.
func NewServer(cfg Config, ctl Controller, sc *screen.Screen) *Server {
	s := &Server{ctl: ctl, screen: sc}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler(cfg.AllowedOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("preview server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handler(origins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("GET /surfaces/{file}", s.handleSurface)

	mux.HandleFunc("POST /control/step", s.handleStep)
	mux.HandleFunc("POST /control/goto", s.handleGoto)
	mux.HandleFunc("POST /control/lock", s.handleLock)
	mux.HandleFunc("POST /control/timer/{action}", s.handleTimer)
	mux.HandleFunc("POST /control/resize", s.handleResize)
	mux.HandleFunc("POST /control/pointer", s.handlePointer)
	mux.HandleFunc("POST /control/key", s.handleKey)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	Service string         `json:"service"`
	Session session.Status `json:"session"`
	Screen  screen.Info    `json:"screen"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Service: "deckcast-viewer",
		Session: s.ctl.Status(),
		Screen:  s.screen.Info(),
	})
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	surf := s.screen.Surface(render.SurfaceID(id))
	if surf == nil {
		http.Error(w, "unknown surface", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := surf.WritePNG(&buf); err != nil {
		if errors.Is(err, screen.ErrNoFrame) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("surface", id).Msg("failed to encode surface image")
		http.Error(w, "failed to encode surface image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := buf.WriteTo(w); err != nil {
		log.Error().Err(err).Str("surface", id).Msg("failed to write surface image")
	}
}

type stepRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	req := stepRequest{Delta: 1}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.ctl.Step(req.Delta))
}

type gotoRequest struct {
	Page int `json:"page"`
}

func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Page < 1 {
		http.Error(w, "page must be positive", http.StatusBadRequest)
		return
	}
	s.respond(w, s.ctl.Goto(req.Page))
}

type lockRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.ctl.ToggleLock(req.Force))
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	var err error
	switch r.PathValue("action") {
	case "start":
		err = s.ctl.TimerStart()
	case "stop":
		err = s.ctl.TimerStop()
	case "reset":
		err = s.ctl.TimerReset()
	default:
		http.NotFound(w, r)
		return
	}
	s.respond(w, err)
}

type resizeRequest struct {
	Surface render.SurfaceID `json:"surface"`
	Width   float64          `json:"width"`
	Height  float64          `json:"height"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		http.Error(w, "width and height must be positive", http.StatusBadRequest)
		return
	}

	surfaces := s.screen.Surfaces()
	if req.Surface != "" {
		surf := s.screen.Surface(req.Surface)
		if surf == nil {
			http.Error(w, "unknown surface", http.StatusNotFound)
			return
		}
		surfaces = []*screen.Surface{surf}
	}
	for _, surf := range surfaces {
		surf.Resize(req.Width, req.Height)
	}

	// The debounced render outlives this request.
	s.ctl.Resized(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}

type pointerRequest struct {
	Action string  `json:"action"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Held   bool    `json:"held"`
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decode(w, r, &req) {
		return
	}

	var err error
	switch req.Action {
	case "move", "":
		err = s.ctl.PointerMove(req.X, req.Y, req.Held)
	case "release":
		err = s.ctl.PointerRelease()
	case "leave":
		err = s.ctl.PointerLeave()
	case "blur":
		err = s.ctl.PointerBlur()
	default:
		http.Error(w, "unknown pointer action", http.StatusBadRequest)
		return
	}
	s.respond(w, err)
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.ctl.Key(req.Key))
}

// respond maps a control error onto a status code.
func (s *Server) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrReadOnly):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, session.ErrNotConnected):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg("control request failed")
		http.Error(w, "control request failed", http.StatusInternalServerError)
	}
}

// decode reads an optional JSON body into v. An empty body, chunked or not,
// keeps v as is.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	http.Error(w, "invalid request body", http.StatusBadRequest)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
