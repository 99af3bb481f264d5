package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/destekhq/runtime/internal/agentqueue"
)

func (r *router) handleAgentQueue(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": r.deps.Queue.ListPending(),
		"active":  r.deps.Queue.ListActive(),
	})
}

type claimRequest struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
}

func (r *router) handleAgentClaim(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload claimRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" || strings.TrimSpace(payload.AgentID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId and agentId are required"})
		return
	}

	entry, err := r.deps.Queue.Claim(payload.SessionID, payload.AgentID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, agentqueue.ErrNotQueued):
			status = http.StatusNotFound
		case errors.Is(err, agentqueue.ErrAlreadyClaimed):
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

type releaseRequest struct {
	SessionID string `json:"sessionId"`
}

func (r *router) handleAgentRelease(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload releaseRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := r.deps.Queue.Release(payload.SessionID); err != nil {
		if errors.Is(err, agentqueue.ErrNotQueued) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
