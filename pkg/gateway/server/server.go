// Package server wires the gateway mux and middleware chain.
package server

import (
	"log/slog"
	"net/http"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/providers/openai"
	"github.com/voxrelay/voxrelay/pkg/core/voice/tts"
	"github.com/voxrelay/voxrelay/pkg/gateway/config"
	"github.com/voxrelay/voxrelay/pkg/gateway/handlers"
	"github.com/voxrelay/voxrelay/pkg/gateway/mw"
	"github.com/voxrelay/voxrelay/pkg/gateway/socket"
	"github.com/voxrelay/voxrelay/pkg/tools"
)

// Deps are the external collaborators, constructed in main.
type Deps struct {
	Provider      *openai.Provider
	ToolProviders []tools.Provider
	TTS           tts.Provider
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	deps    Deps
	hub     *socket.Hub
	limiter *mw.ClientLimiter
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
		deps:    deps,
		hub:     socket.NewHub(logger, cfg.WSWriteTimeout),
		limiter: mw.NewClientLimiter(cfg.LimitRPS, cfg.LimitBurst),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	threads := handlers.ThreadsHandler{Provider: s.deps.Provider, Logger: s.logger}

	s.mux.HandleFunc("GET /healthz", handlers.Health)
	s.mux.Handle("GET /v1/socket", s.hub)
	s.mux.Handle("POST /v1/chat", handlers.ChatHandler{
		Config:        s.cfg,
		Provider:      s.deps.Provider,
		ToolProviders: s.deps.ToolProviders,
		TTS:           s.deps.TTS,
		Hub:           s.hub,
		Logger:        s.logger,
	})
	s.mux.HandleFunc("POST /v1/threads", threads.Create)
	s.mux.HandleFunc("GET /v1/threads/{id}/messages", threads.Messages)
	s.mux.HandleFunc("POST /v1/threads/{id}/runs/{runID}/cancel", threads.CancelRun)

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		mw.WriteJSONError(w, http.StatusNotFound, &core.Error{
			Type:      core.ErrNotFound,
			Message:   "unknown route",
			RequestID: reqID,
		})
	})
}

// Hub exposes the socket hub so main can disconnect clients on shutdown.
func (s *Server) Hub() *socket.Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
