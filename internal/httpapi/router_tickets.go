package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/destekhq/runtime/internal/store"
)

func (r *router) handleTickets(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	tickets, err := r.deps.Store.ListRecentTickets(req.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (r *router) handleTicketGet(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id := strings.TrimSpace(req.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	ticket, err := r.deps.Store.GetTicket(req.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	events, err := r.deps.Store.ListTicketEvents(req.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket, "events": events})
}

func (r *router) handleTicketSummary(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	summary, err := r.deps.Store.GetAdminSummary(req.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type handoffResultRequest struct {
	TicketID   string         `json:"ticketId"`
	ResultCode string         `json:"resultCode"`
	Detail     string         `json:"detail"`
	Meta       map[string]any `json:"meta"`
}

// handleHandoffResult records the outcome reported by the external
// handoff system and fans it out to the notification job.
func (r *router) handleHandoffResult(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload handoffResultRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.TicketID) == "" || strings.TrimSpace(payload.ResultCode) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticketId and resultCode are required"})
		return
	}

	ticket, err := r.deps.Store.UpdateTicketHandoffResult(req.Context(), payload.TicketID, payload.ResultCode, payload.Detail, payload.Meta)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownHandoffResult):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, store.ErrTicketNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	if r.deps.Jobs != nil {
		if _, err := r.deps.Jobs.EnqueueJob(req.Context(), "handoff_result", map[string]any{
			"ticket_id":   ticket.ID,
			"status":      string(ticket.Status),
			"result_code": payload.ResultCode,
		}, r.deps.Config.JobMaxAttempts); err != nil {
			r.deps.Logger.Warn("handoff result job enqueue failed", "error", err, "ticket", ticket.ID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket})
}

type csatRequest struct {
	TicketID string `json:"ticketId"`
	Rating   int    `json:"rating"`
}

func (r *router) handleCSAT(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload csatRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.TicketID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticketId is required"})
		return
	}

	if err := r.deps.Store.SetCSATRating(req.Context(), payload.TicketID, payload.Rating); err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if r.deps.Jobs != nil {
		if _, err := r.deps.Jobs.EnqueueJob(req.Context(), "csat_rating", map[string]any{
			"ticket_id": payload.TicketID,
			"rating":    payload.Rating,
		}, r.deps.Config.JobMaxAttempts); err != nil {
			r.deps.Logger.Warn("csat job enqueue failed", "error", err, "ticket", payload.TicketID)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (r *router) handleContentGaps(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	gaps, err := r.deps.Store.ListContentGaps(req.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gaps": gaps})
}
