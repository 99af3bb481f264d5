// Package connectors holds the channel adapters that feed inbound customer
// messages into the conversation pipeline and carry replies back out.
// Telegram long-polls; WhatsApp and Sunshine are inbound webhooks mounted
// on the HTTP API.
package connectors

import (
	"context"
	"sync"

	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/pipeline"
)

// Connector is a channel adapter with its own inbound loop.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
}

// Bot is the pipeline surface connectors talk to.
type Bot interface {
	Handle(ctx context.Context, turn pipeline.Turn) (pipeline.Response, error)
}

const defaultHistoryLimit = 40

// History keeps the rolling per-conversation transcript that channel
// adapters replay into each turn. Webhook channels do not hand us the
// conversation back, so the adapter has to remember it.
type History struct {
	mu    sync.Mutex
	limit int
	byID  map[string][]chat.Message
}

func NewHistory(limit int) *History {
	if limit < 2 {
		limit = defaultHistoryLimit
	}
	return &History{limit: limit, byID: map[string][]chat.Message{}}
}

// Append records a message and returns a copy of the full transcript
// including it, oldest first.
func (h *History) Append(conversationID string, message chat.Message) []chat.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	transcript := append(h.byID[conversationID], message)
	if len(transcript) > h.limit {
		transcript = transcript[len(transcript)-h.limit:]
	}
	h.byID[conversationID] = transcript

	out := make([]chat.Message, len(transcript))
	copy(out, transcript)
	return out
}

func (h *History) Forget(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byID, conversationID)
}
