package pipeline

import (
	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/convstate"
	"github.com/destekhq/runtime/internal/knowledge"
)

// Reply sources, one per pipeline branch. Every turn is tagged with
// exactly one of these in its response and its analytics event.
const (
	SourceRuleEngine      = "rule-engine"
	SourceMemoryTemplate  = "memory-template"
	SourceGibberish       = "gibberish"
	SourceLLM             = "llm"
	SourceEscalation      = "escalation"
	SourceStatusFollowup  = "status-followup"
	SourceFarewell        = "farewell"
	SourceAgentControlled = "agent-controlled"
)

// Turn is the transport-neutral inbound contract: the active message
// window, newest last, plus the session id and channel tag.
type Turn struct {
	SessionID string         `json:"sessionId"`
	Channel   string         `json:"channel,omitempty"`
	Messages  []chat.Message `json:"messages"`
}

// Response is the single structured result of one turn.
type Response struct {
	Reply               string            `json:"reply"`
	Source              string            `json:"source"`
	Memory              chat.Memory       `json:"memory"`
	ConversationContext convstate.State   `json:"conversationContext"`
	TicketID            string            `json:"ticketId,omitempty"`
	TicketStatus        string            `json:"ticketStatus,omitempty"`
	TicketCreated       bool              `json:"ticketCreated,omitempty"`
	HandoffReady        bool              `json:"handoffReady"`
	HandoffReason       string            `json:"handoffReason,omitempty"`
	QuickReplies        []string          `json:"quickReplies,omitempty"`
	Sources             []knowledge.Match `json:"sources,omitempty"`
	Warning             string            `json:"warning,omitempty"`
}
