package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/session"
)

// SessionsHandler exposes the live session registry to operators.
type SessionsHandler struct {
	tracker *session.Tracker
}

// NewSessionsHandler creates a sessions handler around the given tracker.
func NewSessionsHandler(tracker *session.Tracker) *SessionsHandler {
	return &SessionsHandler{tracker: tracker}
}

// SessionsResponse is the payload of the session listing endpoint.
type SessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

// List handles GET /api/v1/sessions - snapshot of all connected clients.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.tracker.Sessions()
	writeJSON(w, http.StatusOK, okResponse(SessionsResponse{
		Count:    len(infos),
		Sessions: infos,
	}))
}

// DisconnectResponse reports how many connections a disconnect closed.
type DisconnectResponse struct {
	User   string `json:"user"`
	Closed int    `json:"closed"`
}

// Disconnect handles POST /api/v1/sessions/{user}/disconnect.
//
// Every live connection of the named user is closed. Disconnecting a user
// with no sessions is not an error; Closed is simply zero.
func (h *SessionsHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	if user == "" {
		BadRequest(w, "missing user")
		return
	}

	closed := h.tracker.ForceDisconnect(user)
	logger.Info("operator disconnect", "user", user, "closed", closed)

	writeJSON(w, http.StatusOK, okResponse(DisconnectResponse{
		User:   user,
		Closed: closed,
	}))
}
