// Package agentqueue holds the sessions waiting for or talking to a human
// agent. The pipeline only asks whether a session is agent-controlled; the
// agent console works the queue over the websocket hub.
package agentqueue

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotQueued      = errors.New("session is not in the queue")
	ErrAlreadyClaimed = errors.New("session is already claimed")
)

type Entry struct {
	SessionID  string    `json:"sessionId"`
	TicketID   string    `json:"ticketId,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	AgentID    string    `json:"agentId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	ClaimedAt  time.Time `json:"claimedAt,omitempty"`
}

type event struct {
	Type  string `json:"type"`
	Entry Entry  `json:"entry"`
}

type Queue struct {
	mu      sync.Mutex
	pending map[string]Entry
	active  map[string]Entry
	hub     *Hub
	logger  *slog.Logger
	now     func() time.Time
}

func New(hub *Hub, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		pending: map[string]Entry{},
		active:  map[string]Entry{},
		hub:     hub,
		logger:  logger.With("component", "agent-queue"),
		now:     time.Now,
	}
}

// Enqueue adds a session to the pending queue. Re-enqueueing an already
// pending session refreshes its metadata but keeps its place in line; a
// session already claimed by an agent is left alone.
func (q *Queue) Enqueue(entry Entry) {
	q.mu.Lock()
	if _, claimed := q.active[entry.SessionID]; claimed {
		q.mu.Unlock()
		return
	}
	if existing, ok := q.pending[entry.SessionID]; ok {
		entry.EnqueuedAt = existing.EnqueuedAt
	} else {
		entry.EnqueuedAt = q.now().UTC()
	}
	q.pending[entry.SessionID] = entry
	q.mu.Unlock()

	q.logger.Info("session queued for agent", "session", entry.SessionID, "reason", entry.Reason)
	q.broadcast("enqueued", entry)
}

func (q *Queue) Claim(sessionID, agentID string) (Entry, error) {
	q.mu.Lock()
	if _, claimed := q.active[sessionID]; claimed {
		q.mu.Unlock()
		return Entry{}, ErrAlreadyClaimed
	}
	entry, ok := q.pending[sessionID]
	if !ok {
		q.mu.Unlock()
		return Entry{}, ErrNotQueued
	}
	delete(q.pending, sessionID)
	entry.AgentID = agentID
	entry.ClaimedAt = q.now().UTC()
	q.active[sessionID] = entry
	q.mu.Unlock()

	q.logger.Info("session claimed", "session", sessionID, "agent", agentID)
	q.broadcast("claimed", entry)
	return entry, nil
}

// Release returns a claimed session to the bot.
func (q *Queue) Release(sessionID string) error {
	q.mu.Lock()
	entry, ok := q.active[sessionID]
	if !ok {
		q.mu.Unlock()
		return ErrNotQueued
	}
	delete(q.active, sessionID)
	q.mu.Unlock()

	q.logger.Info("session released", "session", sessionID, "agent", entry.AgentID)
	q.broadcast("released", entry)
	return nil
}

// ListPending returns waiting sessions in arrival order.
func (q *Queue) ListPending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := make([]Entry, 0, len(q.pending))
	for _, entry := range q.pending {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].EnqueuedAt.Before(entries[b].EnqueuedAt)
	})
	return entries
}

func (q *Queue) ListActive() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := make([]Entry, 0, len(q.active))
	for _, entry := range q.active {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].ClaimedAt.Before(entries[b].ClaimedAt)
	})
	return entries
}

// Controlled reports whether an agent currently owns the session, which
// silences the bot for it.
func (q *Queue) Controlled(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[sessionID]
	return ok
}

func (q *Queue) broadcast(eventType string, entry Entry) {
	if q.hub == nil {
		return
	}
	q.hub.Broadcast(event{Type: eventType, Entry: entry})
}
