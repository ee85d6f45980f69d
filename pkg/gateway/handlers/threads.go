package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/providers/openai"
)

const defaultMessageLimit = 20

// ThreadProvider is the slice of the model provider the thread endpoints
// need.
type ThreadProvider interface {
	CreateThread(ctx context.Context) (string, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]openai.ThreadMessage, error)
	CancelRun(ctx context.Context, threadID, runID string) error
}

// ThreadsHandler exposes thread management passthrough endpoints.
type ThreadsHandler struct {
	Provider ThreadProvider
	Logger   *slog.Logger
}

// Create handles POST /v1/threads.
func (h ThreadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := h.Provider.CreateThread(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Messages handles GET /v1/threads/{id}/messages.
func (h ThreadsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if threadID == "" {
		writeError(w, r, core.NewInvalidRequestError("thread id is required"))
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, core.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	msgs, err := h.Provider.ListMessages(r.Context(), threadID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// CancelRun handles POST /v1/threads/{id}/runs/{runID}/cancel. Out-of-band
// cancel for clients that lost their socket.
func (h ThreadsHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	threadID, runID := r.PathValue("id"), r.PathValue("runID")
	if threadID == "" || runID == "" {
		writeError(w, r, core.NewInvalidRequestError("thread id and run id are required"))
		return
	}
	if err := h.Provider.CancelRun(r.Context(), threadID, runID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
