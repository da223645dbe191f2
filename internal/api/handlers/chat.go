package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/service"
)

// AnswererFactory builds a fresh conversational answerer scoped to the
// caller's department and clearance.
type AnswererFactory func(p middleware.Principal) *service.Answerer

// ChatHandler serves the conversational ask endpoint. One answerer per
// (user, session) pair, held in the session cache.
type ChatHandler struct {
	sessions *service.SessionCache
	build    AnswererFactory
}

func NewChatHandler(sessions *service.SessionCache, build AnswererFactory) *ChatHandler {
	return &ChatHandler{sessions: sessions, build: build}
}

type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type AskResponse struct {
	Kind    string   `json:"kind"`
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		api.Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	key := service.SessionKey{UserID: principal.UserID, SessionID: req.SessionID}
	answerer := h.sessions.GetOrCreate(key, func() *service.Answerer {
		return h.build(principal)
	})

	answer, err := answerer.Ask(r.Context(), req.Question)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AskResponse{
		Kind:    string(answer.Kind),
		Answer:  answer.Text,
		Sources: answer.Sources,
	})
}

type ClearHistoryRequest struct {
	SessionID string `json:"session_id"`
}

// ClearHistory drops the caller's session. Clearing an unknown session is a
// no-op.
func (h *ChatHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ClearHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		api.Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.sessions.Delete(service.SessionKey{UserID: principal.UserID, SessionID: req.SessionID})
	api.Success(w, http.StatusOK, map[string]string{"status": "cleared"})
}
