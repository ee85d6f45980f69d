// Package handlers holds the gateway HTTP endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/gateway/mw"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := core.AsError(err)
	if ce.RequestID == "" {
		ce.RequestID, _ = mw.RequestIDFrom(r.Context())
	}
	mw.WriteJSONError(w, statusForError(ce), ce)
}

func statusForError(err *core.Error) int {
	switch err.Type {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrProvider, core.ErrProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
