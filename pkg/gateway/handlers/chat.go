package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/runloop"
	"github.com/voxrelay/voxrelay/pkg/core/types"
	"github.com/voxrelay/voxrelay/pkg/core/voice/tts"
	"github.com/voxrelay/voxrelay/pkg/gateway/config"
	"github.com/voxrelay/voxrelay/pkg/gateway/socket"
	"github.com/voxrelay/voxrelay/pkg/tools"
)

// ChatProvider is the slice of the model provider the chat endpoint needs.
type ChatProvider interface {
	core.RunProvider
	CreateMessage(ctx context.Context, threadID, role, text string) error
}

type chatRequest struct {
	ThreadID     string `json:"thread_id"`
	Message      string `json:"message"`
	Instructions string `json:"instructions,omitempty"`
	// SocketID addresses the websocket that receives the run's events.
	// Without it the run still executes; only the terminal outcome is
	// returned.
	SocketID string `json:"socket_id,omitempty"`
	// Audio opts this request into speech synthesis.
	Audio *audioRequest `json:"audio,omitempty"`
}

type audioRequest struct {
	Voice string `json:"voice,omitempty"`
	Model string `json:"model,omitempty"`
}

// ChatHandler drives one generation run per request: it appends the user
// message, offers the current tool catalog to the model, and streams run
// events to the addressed socket until the run reaches a terminal state.
type ChatHandler struct {
	Config        config.Config
	Provider      ChatProvider
	ToolProviders []tools.Provider
	TTS           tts.Provider
	Hub           *socket.Hub
	Logger        *slog.Logger
}

func (h ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.NewInvalidRequestError("invalid request body: "+err.Error()))
		return
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.Message = strings.TrimSpace(req.Message)
	if req.ThreadID == "" {
		writeError(w, r, core.NewInvalidRequestError("thread_id is required"))
		return
	}
	if req.Message == "" {
		writeError(w, r, core.NewInvalidRequestError("message is required"))
		return
	}

	var sock *socket.Socket
	if req.SocketID != "" {
		var ok bool
		sock, ok = h.Hub.Get(req.SocketID)
		if !ok {
			writeError(w, r, core.NewInvalidRequestError("unknown socket_id"))
			return
		}
	}
	if req.Audio != nil && h.TTS == nil {
		writeError(w, r, core.NewInvalidRequestError("audio requested but speech synthesis is not configured"))
		return
	}

	ctx := r.Context()
	if err := h.Provider.CreateMessage(ctx, req.ThreadID, "user", req.Message); err != nil {
		writeError(w, r, err)
		return
	}

	registry, err := tools.BuildRegistry(ctx, h.ToolProviders...)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session := &runloop.Session{
		Provider:      h.Provider,
		Registry:      registry,
		Logger:        h.Logger,
		CancelTimeout: h.Config.RunCancelTimeout,
	}
	if sock != nil {
		session.Emit = sock.Emit
		release := sock.Bind(session.Stop, session.StopAudio)
		defer release()
	}
	if req.Audio != nil {
		session.TTS = h.TTS
		session.AudioEnabled = true
		session.MinGroupLen = h.Config.MinSentenceLen
		session.TTSOpts = tts.SynthesizeOptions{
			Voice: req.Audio.Voice,
			Model: req.Audio.Model,
		}
		if session.TTSOpts.Voice == "" {
			session.TTSOpts.Voice = h.Config.TTSVoice
		}
		if session.TTSOpts.Model == "" {
			session.TTSOpts.Model = h.Config.TTSModel
		}
	}

	outcome, err := session.Run(ctx, &types.RunParams{
		ThreadID:     req.ThreadID,
		AssistantID:  h.Config.AssistantID,
		Instructions: req.Instructions,
		Tools:        registry.Defs(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
