// Package pipeline is the per-turn orchestrator: it runs the early checks,
// steps the conversation state machine, and routes each inbound message to
// a deterministic reply, a ticket creation, an escalation, or a
// knowledge-grounded model reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/destekhq/runtime/internal/analytics"
	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/convstate"
	"github.com/destekhq/runtime/internal/convutil"
	"github.com/destekhq/runtime/internal/knowledge"
	"github.com/destekhq/runtime/internal/llm"
	"github.com/destekhq/runtime/internal/normalize"
	"github.com/destekhq/runtime/internal/prompts"
	"github.com/destekhq/runtime/internal/session"
	"github.com/destekhq/runtime/internal/store"
)

var (
	ErrMissingSession = errors.New("turn is missing a session id")
	ErrEmptyTurn      = errors.New("turn carries no user message")
)

const ReasonMaxClarificationRetries = "max-clarification-retries"
const reasonModelUnavailable = "model-unavailable"

type TicketStore interface {
	CreateOrReuseTicket(ctx context.Context, input store.TicketInput) (store.Ticket, bool, error)
	GetTicket(ctx context.Context, id string) (store.Ticket, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) []knowledge.Match
}

type JobQueue interface {
	EnqueueJob(ctx context.Context, name string, payload any, maxAttempts int) (store.Job, error)
}

// AgentGate reports whether a human agent currently controls a session,
// in which case the bot stays silent.
type AgentGate interface {
	Controlled(sessionID string) bool
}

type Config struct {
	TopK               int
	ClarificationLimit int
	MaxReplyTokens     int
	CredentialTools    []string
	JobMaxAttempts     int
}

func (c Config) withDefaults() Config {
	if c.TopK < 1 {
		c.TopK = 3
	}
	if c.ClarificationLimit < 1 {
		c.ClarificationLimit = 3
	}
	if c.MaxReplyTokens < 1 {
		c.MaxReplyTokens = 400
	}
	if c.JobMaxAttempts < 1 {
		c.JobMaxAttempts = 5
	}
	if c.CredentialTools == nil {
		c.CredentialTools = []string{"anydesk", "teamviewer", "alpemix"}
	}
	return c
}

type Pipeline struct {
	cfg        Config
	sessions   *session.Store
	tickets    TicketStore
	retriever  Retriever
	responder  llm.Responder
	summarizer *convutil.Summarizer
	registry   prompts.Registry
	jobs       JobQueue
	agents     AgentGate
	recorder   *analytics.Recorder
	logger     *slog.Logger

	// supportOpen and now are swapped out in tests.
	supportOpen func(time.Time) bool
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Deps struct {
	Sessions   *session.Store
	Tickets    TicketStore
	Retriever  Retriever
	Responder  llm.Responder
	Summarizer *convutil.Summarizer
	Registry   prompts.Registry
	Jobs       JobQueue
	Agents     AgentGate
	Recorder   *analytics.Recorder
	Logger     *slog.Logger
	// SupportOpen overrides the default weekday 09:00-18:00 window.
	SupportOpen func(time.Time) bool
}

func New(cfg Config, deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	supportOpen := deps.SupportOpen
	if supportOpen == nil {
		supportOpen = defaultSupportOpen
	}
	return &Pipeline{
		cfg:         cfg.withDefaults(),
		sessions:    deps.Sessions,
		tickets:     deps.Tickets,
		retriever:   deps.Retriever,
		responder:   deps.Responder,
		summarizer:  deps.Summarizer,
		registry:    deps.Registry,
		jobs:        deps.Jobs,
		agents:      deps.Agents,
		recorder:    deps.Recorder,
		logger:      logger.With("component", "pipeline"),
		supportOpen: supportOpen,
		now:         time.Now,
		locks:       map[string]*sync.Mutex{},
	}
}

// defaultSupportOpen is the weekday 09:00-18:00 support window.
func defaultSupportOpen(now time.Time) bool {
	if now.Weekday() == time.Sunday {
		return false
	}
	return now.Hour() >= 9 && now.Hour() < 18
}

// Handle processes one inbound turn to completion. Turns of the same
// session serialize on a per-session mutex; different sessions proceed
// concurrently.
func (p *Pipeline) Handle(ctx context.Context, turn Turn) (Response, error) {
	if strings.TrimSpace(turn.SessionID) == "" {
		return Response{}, ErrMissingSession
	}
	raw := strings.TrimSpace(chat.LastUserMessage(turn.Messages))
	if raw == "" {
		return Response{}, ErrEmptyTurn
	}
	if turn.Channel == "" {
		turn.Channel = chat.ChannelWeb
	}

	lock := p.sessionLock(turn.SessionID)
	lock.Lock()
	defer lock.Unlock()

	sess := p.sessions.GetOrCreate(turn.SessionID, turn.Channel)

	if p.agents != nil && p.agents.Controlled(turn.SessionID) {
		return p.respond(ctx, sess, turn, Response{
			Source:       SourceAgentControlled,
			HandoffReady: true,
		}), nil
	}

	now := p.now().UTC()
	text := normalize.Normalize(raw)
	memory := BuildMemory(turn.Messages)

	if response, done := p.earlyChecks(ctx, sess, turn, text, memory, now); done {
		return response, nil
	}

	leakTool, leaked := normalize.DetectCredentialLeak(text, p.cfg.CredentialTools)
	escalationRequested := normalize.IsEscalationRequest(text) || leaked

	topicID, topicConfidence := p.classifyTopic(ctx, sess.State.Current, text, raw)

	// "Topic engaged" means a topic carried over from before this turn;
	// a field-bearing first message still goes straight to a ticket.
	priorTopic := sess.State.CurrentTopic

	sess.State = convstate.Step(sess.State, convstate.Event{
		HasMessage:          true,
		HasTopic:            topicID != "",
		TopicID:             topicID,
		TopicConfidence:     topicConfidence,
		IsGreeting:          normalize.IsGreeting(text),
		EscalationRequested: escalationRequested,
		NeedsInfoCollection: topicID != "" && !memory.HasRequiredFields(),
		InfoComplete:        memory.HasRequiredFields(),
		Now:                 now,
	})

	// A credential leak escalates from any phase.
	if leaked && !sess.EscalationAnnounced {
		return p.escalate(ctx, sess, turn, memory, leakTool+"_credentials", now)
	}

	// Ticket creation: required fields present and no topic engaged.
	if memory.HasRequiredFields() && priorTopic == "" {
		return p.createTicket(ctx, sess, turn, memory, now)
	}

	// Escalation flagged by the state machine (or a credential leak).
	if sess.State.EscalationTriggered && !sess.EscalationAnnounced {
		return p.escalate(ctx, sess, turn, memory, sess.State.EscalationReason, now)
	}

	// Deterministic missing-field prompts while no topic is engaged.
	if !memory.HasRequiredFields() && deterministicPhase(sess.State.Current) {
		return p.deterministicReply(ctx, sess, turn, text, memory, now)
	}

	return p.modelReply(ctx, sess, turn, memory, raw, now)
}

func deterministicPhase(phase convstate.Phase) bool {
	switch phase {
	case convstate.PhaseWelcome, convstate.PhaseTopicDetection, convstate.PhaseFallbackTicket, convstate.PhaseInfoCollection:
		return true
	}
	return false
}

// earlyChecks short-circuits the turn before the state machine runs:
// gibberish, farewell handling, closed-ticket status followups and the
// post-escalation holding reply.
func (p *Pipeline) earlyChecks(ctx context.Context, sess *session.Session, turn Turn, text normalize.Text, memory chat.Memory, now time.Time) (Response, bool) {
	if normalize.IsGibberish(text) {
		return p.respond(ctx, sess, turn, Response{
			Reply:  replyGibberish,
			Source: SourceGibberish,
			Memory: memory,
		}), true
	}

	// Free text after the farewell was offered.
	if sess.State.Current == convstate.PhaseFarewell && !normalize.IsFarewell(text) {
		sess.State = convstate.Step(sess.State, convstate.Event{HasMessage: true, Now: now})
		return p.respond(ctx, sess, turn, Response{
			Reply:  replyAnythingElse,
			Source: SourceRuleEngine,
			Memory: memory,
		}), true
	}

	if normalize.IsFarewell(text) {
		sess.State = convstate.Step(sess.State, convstate.Event{HasMessage: true, IsFarewell: true, Now: now})
		sess.FarewellSeen = true
		if memory.HasRequiredFields() || sess.LastTicketID != "" {
			response := Response{
				Reply:        replyClosing,
				Source:       SourceFarewell,
				Memory:       memory,
				QuickReplies: []string{"1", "3", "5"},
				TicketID:     sess.LastTicketID,
				TicketStatus: sess.LastTicketStatus,
			}
			return p.respond(ctx, sess, turn, response), true
		}
		return p.respond(ctx, sess, turn, Response{
			Reply:  replyAnythingElse,
			Source: SourceFarewell,
			Memory: memory,
		}), true
	}

	if response, done := p.closedTicketFollowup(ctx, sess, turn, text, memory); done {
		return response, true
	}

	// Holding reply while an announced escalation is still queued. A turn
	// that itself carries the required fields is a fresh issue and falls
	// through to the dedupe-aware ticket path instead.
	if sess.EscalationAnnounced && !memory.HasRequiredFields() && !normalize.HasNewTicketIntent(text) {
		return p.respond(ctx, sess, turn, Response{
			Reply:         replyStillQueued,
			Source:        SourceStatusFollowup,
			Memory:        memory,
			TicketID:      sess.LastTicketID,
			TicketStatus:  sess.LastTicketStatus,
			HandoffReady:  true,
			HandoffReason: sess.State.EscalationReason,
		}), true
	}

	return Response{}, false
}

// closedTicketFollowup keeps serving status replies while the user is
// still talking about a finished ticket. The boundary is conservative:
// only an explicit new-ticket phrase or a substantive message that does
// not repeat the old branch code re-engages the pipeline.
func (p *Pipeline) closedTicketFollowup(ctx context.Context, sess *session.Session, turn Turn, text normalize.Text, memory chat.Memory) (Response, bool) {
	if sess.LastTicketID == "" || normalize.HasNewTicketIntent(text) {
		return Response{}, false
	}

	pinned := normalize.IsStatusQuery(text) || !normalize.IsSubstantive(text)
	if !pinned && memory.BranchCode != "" {
		pinned = strings.Contains(strings.ToLower(text.String()), strings.ToLower(memory.BranchCode)) &&
			memory.IssueSummary == ""
	}
	if !pinned {
		return Response{}, false
	}

	// Handoff results land out-of-band, so the stored status is fetched
	// fresh rather than trusted from the session.
	ticket, err := p.tickets.GetTicket(ctx, sess.LastTicketID)
	if err != nil {
		p.logger.Error("closed-ticket lookup failed", "ticket", sess.LastTicketID, "error", err)
		return Response{}, false
	}
	sess.LastTicketStatus = string(ticket.Status)
	return p.respond(ctx, sess, turn, Response{
		Reply:        statusFollowupReply(ticket),
		Source:       SourceStatusFollowup,
		Memory:       memory,
		TicketID:     ticket.ID,
		TicketStatus: string(ticket.Status),
	}), true
}

func (p *Pipeline) createTicket(ctx context.Context, sess *session.Session, turn Turn, memory chat.Memory, now time.Time) (Response, error) {
	supportOpen := p.supportOpen(now)
	ticket, created, err := p.tickets.CreateOrReuseTicket(ctx, store.TicketInput{
		BranchCode:   memory.BranchCode,
		IssueSummary: memory.IssueSummary,
		CompanyName:  memory.CompanyName,
		FullName:     memory.FullName,
		Phone:        memory.Phone,
		SupportOpen:  supportOpen,
		Source:       SourceMemoryTemplate,
		Sentiment:    convutil.SentimentScore(turn.Messages),
		QualityScore: convutil.QualityScore(turn.Messages),
		History:      turn.Messages,
	})
	if err != nil {
		return Response{}, fmt.Errorf("create ticket: %w", err)
	}

	// The conversation now waits on the handoff; drop any topic picked up
	// this turn so a repeated report dedupes instead of re-engaging.
	sess.State.Current = convstate.PhaseEscalationHandoff
	sess.State.TurnsInState = 0
	sess.State.CurrentTopic = ""
	sess.State.TopicConfidence = 0

	sess.LastTicketID = ticket.ID
	sess.LastTicketStatus = string(ticket.Status)
	if created {
		p.enqueue(ctx, "ticket_created", map[string]any{
			"ticket_id": ticket.ID,
			"session":   turn.SessionID,
			"status":    string(ticket.Status),
		})
	}

	return p.respond(ctx, sess, turn, Response{
		Reply:         ticketCreatedReply(ticket),
		Source:        SourceMemoryTemplate,
		Memory:        memory,
		TicketID:      ticket.ID,
		TicketStatus:  string(ticket.Status),
		TicketCreated: created,
		HandoffReady:  supportOpen,
	}), nil
}

func (p *Pipeline) escalate(ctx context.Context, sess *session.Session, turn Turn, memory chat.Memory, reason string, now time.Time) (Response, error) {
	summary := convutil.FallbackSummary(turn.Messages)
	if p.summarizer != nil {
		summary = p.summarizer.EscalationSummary(ctx, turn.Messages, reason)
	}

	branch := memory.BranchCode
	if branch == "" {
		branch = "GENEL"
	}
	issue := memory.IssueSummary
	if issue == "" {
		issue = summary
	}

	supportOpen := p.supportOpen(now)
	ticket, created, err := p.tickets.CreateOrReuseTicket(ctx, store.TicketInput{
		BranchCode:   branch,
		IssueSummary: issue,
		CompanyName:  memory.CompanyName,
		FullName:     memory.FullName,
		Phone:        memory.Phone,
		SupportOpen:  supportOpen,
		Source:       SourceEscalation,
		Sentiment:    convutil.SentimentScore(turn.Messages),
		QualityScore: convutil.QualityScore(turn.Messages),
		History:      turn.Messages,
	})
	if err != nil {
		return Response{}, fmt.Errorf("create escalation ticket: %w", err)
	}

	sess.State.EscalationTriggered = true
	sess.State.EscalationReason = reason
	sess.State.Current = convstate.PhaseEscalationHandoff
	sess.EscalationAnnounced = true
	sess.LastTicketID = ticket.ID
	sess.LastTicketStatus = string(ticket.Status)

	p.enqueue(ctx, "escalation", map[string]any{
		"ticket_id": ticket.ID,
		"session":   turn.SessionID,
		"reason":    reason,
		"summary":   summary,
	})

	return p.respond(ctx, sess, turn, Response{
		Reply:         replyEscalation,
		Source:        SourceEscalation,
		Memory:        memory,
		TicketID:      ticket.ID,
		TicketStatus:  string(ticket.Status),
		TicketCreated: created,
		HandoffReady:  supportOpen,
		HandoffReason: reason,
	}), nil
}

func (p *Pipeline) deterministicReply(ctx context.Context, sess *session.Session, turn Turn, text normalize.Text, memory chat.Memory, now time.Time) (Response, error) {
	if normalize.IsClarificationQuestion(text) {
		return p.respond(ctx, sess, turn, Response{
			Reply:  replyFieldHelp,
			Source: SourceRuleEngine,
			Memory: memory,
		}), nil
	}

	if normalize.IsGreeting(text) {
		return p.respond(ctx, sess, turn, Response{
			Reply:  replyWelcome,
			Source: SourceRuleEngine,
			Memory: memory,
		}), nil
	}

	sess.ClarificationAttempts++
	if sess.ClarificationAttempts > p.cfg.ClarificationLimit {
		return p.escalate(ctx, sess, turn, memory, ReasonMaxClarificationRetries, now)
	}

	reply := replyAskBranch
	if memory.BranchCode != "" {
		reply = replyAskIssue
	}
	return p.respond(ctx, sess, turn, Response{
		Reply:  reply,
		Source: SourceRuleEngine,
		Memory: memory,
	}), nil
}

func (p *Pipeline) modelReply(ctx context.Context, sess *session.Session, turn Turn, memory chat.Memory, raw string, now time.Time) (Response, error) {
	var matches []knowledge.Match
	if p.retriever != nil {
		matches = p.retriever.Retrieve(ctx, raw, p.cfg.TopK)
	}

	if p.responder == nil {
		return p.escalate(ctx, sess, turn, memory, reasonModelUnavailable, now)
	}

	request := llm.Request{
		System:    p.assembleSystemPrompt(sess.State.CurrentTopic, matches),
		Messages:  convutil.CompressHistory(turn.Messages, 20),
		MaxTokens: p.cfg.MaxReplyTokens,
	}
	res, err := p.responder.Complete(ctx, request)
	if err != nil {
		p.logger.Error("model reply failed, forcing escalation", "error", err)
		response, escErr := p.escalate(ctx, sess, turn, memory, reasonModelUnavailable, now)
		if escErr != nil {
			return Response{}, escErr
		}
		response.Reply = replyModelTrouble
		return response, nil
	}

	// A truncated short reply gets one more attempt with a doubled budget.
	if res.Truncated && len([]rune(res.Content)) < shortReplyRunes {
		request.MaxTokens = p.cfg.MaxReplyTokens * 2
		if retried, retryErr := p.responder.Complete(ctx, request); retryErr == nil {
			res = retried
		}
	}

	cleaned, quickReplies := parseQuickReplies(res.Content)
	if !validateReply(cleaned) {
		p.logger.Warn("model reply failed validation, deterministic fallback", "session", turn.SessionID)
		reply := replyFieldHelp
		if memory.BranchCode == "" {
			reply = replyAskBranch
		}
		return p.respond(ctx, sess, turn, Response{
			Reply:  reply,
			Source: SourceRuleEngine,
			Memory: memory,
		}), nil
	}

	response := Response{
		Reply:        cleaned,
		Source:       SourceLLM,
		Memory:       memory,
		QuickReplies: quickReplies,
		Sources:      matches,
	}

	if announcesEscalation(cleaned) && !sess.EscalationAnnounced {
		escalated, escErr := p.escalate(ctx, sess, turn, memory, convstate.ReasonExplicitRequest, now)
		if escErr != nil {
			p.logger.Error("model-announced escalation failed", "error", escErr)
		} else {
			// The turn's event was recorded by escalate; the response
			// carries the same source so the two agree.
			response.Source = escalated.Source
			response.TicketID = escalated.TicketID
			response.TicketStatus = escalated.TicketStatus
			response.TicketCreated = escalated.TicketCreated
			response.HandoffReady = escalated.HandoffReady
			response.HandoffReason = escalated.HandoffReason
			response.ConversationContext = escalated.ConversationContext
			return response, nil
		}
	}

	return p.respond(ctx, sess, turn, response), nil
}

func (p *Pipeline) assembleSystemPrompt(topicID string, matches []knowledge.Match) string {
	snapshot := p.registry.Snapshot()
	parts := []string{snapshot.Persona, snapshot.Policy}
	if fragment, ok := snapshot.Topics[topicID]; ok {
		parts = append(parts, fragment)
	}
	if block := knowledgeBlock(matches); block != "" {
		parts = append(parts, block)
	}
	return strings.Join(parts, "\n\n")
}

// respond stamps the conversation context and records the turn's single
// analytics event.
func (p *Pipeline) respond(ctx context.Context, sess *session.Session, turn Turn, response Response) Response {
	response.ConversationContext = sess.State
	if p.recorder != nil {
		p.recorder.Record(ctx, turn.SessionID, response.Source, turn.Channel, map[string]any{
			"phase":          string(sess.State.Current),
			"ticket_id":      response.TicketID,
			"ticket_created": response.TicketCreated,
		})
	}
	return response
}

func (p *Pipeline) enqueue(ctx context.Context, name string, payload map[string]any) {
	if p.jobs == nil {
		return
	}
	if _, err := p.jobs.EnqueueJob(ctx, name, payload, p.cfg.JobMaxAttempts); err != nil {
		p.logger.Error("side-effect job dropped", "job", name, "error", err)
	}
}

func (p *Pipeline) sessionLock(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[sessionID] = lock
	}
	return lock
}

// PruneIdle evicts sessions idle longer than maxIdle and sweeps turn locks
// whose session is gone, so the lock map cannot outgrow the session store.
// A lock held by an in-flight turn is left for the next sweep.
func (p *Pipeline) PruneIdle(maxIdle time.Duration) int {
	pruned := p.sessions.PruneIdle(maxIdle)

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, lock := range p.locks {
		if _, ok := p.sessions.Get(id); ok {
			continue
		}
		if lock.TryLock() {
			lock.Unlock()
			delete(p.locks, id)
		}
	}
	return pruned
}
