// Package httpapi exposes the public chat endpoints, the channel
// webhooks, and the admin surface for tickets and the agent queue.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/destekhq/runtime/internal/agentqueue"
	"github.com/destekhq/runtime/internal/config"
	"github.com/destekhq/runtime/internal/pipeline"
	"github.com/destekhq/runtime/internal/store"
)

// Bot is the pipeline surface the API relays turns into.
type Bot interface {
	Handle(ctx context.Context, turn pipeline.Turn) (pipeline.Response, error)
}

type JobQueue interface {
	EnqueueJob(ctx context.Context, name string, payload any, maxAttempts int) (store.Job, error)
}

type Dependencies struct {
	Config config.Config
	Store  *store.Store
	Bot    Bot
	Jobs   JobQueue
	Queue  *agentqueue.Queue
	Hub    *agentqueue.Hub
	Logger *slog.Logger

	// Channel webhooks; nil handlers leave the route unmounted.
	WhatsAppWebhook http.Handler
	SunshineWebhook http.Handler
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/chat", rt.handleChat)
	mux.HandleFunc("/api/v1/chat/ws", rt.handleChatWS)
	mux.HandleFunc("/api/v1/tickets", rt.handleTickets)
	mux.HandleFunc("/api/v1/tickets/get", rt.handleTicketGet)
	mux.HandleFunc("/api/v1/tickets/summary", rt.handleTicketSummary)
	mux.HandleFunc("/api/v1/tickets/handoff-result", rt.handleHandoffResult)
	mux.HandleFunc("/api/v1/tickets/csat", rt.handleCSAT)
	mux.HandleFunc("/api/v1/agents/queue", rt.handleAgentQueue)
	mux.HandleFunc("/api/v1/agents/claim", rt.handleAgentClaim)
	mux.HandleFunc("/api/v1/agents/release", rt.handleAgentRelease)
	mux.HandleFunc("/api/v1/knowledge/gaps", rt.handleContentGaps)
	if deps.Hub != nil {
		mux.Handle("/api/v1/agents/ws", deps.Hub)
	}
	if deps.WhatsAppWebhook != nil {
		mux.Handle("/webhooks/whatsapp", deps.WhatsAppWebhook)
	}
	if deps.SunshineWebhook != nil {
		mux.Handle("/webhooks/sunshine", deps.SunshineWebhook)
	}
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "destek-runtime",
		"environment": r.deps.Config.Environment,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
