// Package convstate implements the conversation state machine as a pure
// transition function. It performs no I/O; the pipeline feeds it one Event
// per turn and persists the returned State in the session store.
package convstate

import "time"

type Phase string

const (
	PhaseWelcome            Phase = "welcome"
	PhaseTopicDetection     Phase = "topic_detection"
	PhaseTopicGuidedSupport Phase = "topic_guided_support"
	PhaseInfoCollection     Phase = "info_collection"
	PhaseEscalationHandoff  Phase = "escalation_handoff"
	PhaseFarewell           Phase = "farewell"
	PhaseFallbackTicket     Phase = "fallback_ticket_collect"
	PhaseClosedFollowup     Phase = "closed_followup"
)

const (
	// Extra turns welcome tolerates for plain greetings before advancing.
	maxWelcomeGreetingTurns = 1
	// Turns topic_detection waits for a topic before falling through.
	maxTopicDetectionTurns = 2
	// Turns info_collection waits for completion before escalating.
	maxInfoCollectionTurns = 5
	// Turns in one phase after which the conversation counts as looping.
	loopThreshold = 4
)

const (
	ReasonLoopDetected    = "loop_detected"
	ReasonInfoCollected   = "info_collected"
	ReasonMaxInfoTurns    = "max_info_turns_exceeded"
	ReasonExplicitRequest = "user_requested"
)

type TopicVisit struct {
	TopicID    string    `json:"topic_id"`
	TurnsSpent int       `json:"turns_spent"`
	Timestamp  time.Time `json:"timestamp"`
}

// State is the transient per-session conversation state. It is created on
// the first message of a session and discarded when the session is pruned.
type State struct {
	Current             Phase        `json:"current"`
	TurnCount           int          `json:"turn_count"`
	TurnsInState        int          `json:"turns_in_state"`
	CurrentTopic        string       `json:"current_topic,omitempty"`
	TopicConfidence     float64      `json:"topic_confidence"`
	TopicHistory        []TopicVisit `json:"topic_history,omitempty"`
	EscalationTriggered bool         `json:"escalation_triggered"`
	EscalationReason    string       `json:"escalation_reason,omitempty"`
	FarewellOffered     bool         `json:"farewell_offered"`
	HandedOff           bool         `json:"handed_off"`
	LoopDetected        bool         `json:"loop_detected"`
}

func NewState() State {
	return State{Current: PhaseWelcome}
}

// Event carries the per-turn signals the transition function consumes.
// All fields are plain booleans and ids so transitions stay testable
// without any heuristics in this package.
type Event struct {
	HasMessage          bool
	HasTopic            bool
	TopicID             string
	TopicConfidence     float64
	IsGreeting          bool
	IsFarewell          bool
	EscalationRequested bool
	NeedsInfoCollection bool
	InfoComplete        bool
	HandoffComplete     bool
	Now                 time.Time
}

// Step applies one event and returns the successor state. The input state
// is not mutated.
func Step(state State, event Event) State {
	next := state
	next.TurnCount++
	next.TurnsInState++

	// A phase held too long means the conversation is going in circles,
	// unless this very turn is a legitimate exit. Computed before the
	// transition so the current turn can escalate on it.
	next.LoopDetected = next.TurnsInState >= loopThreshold &&
		!event.IsFarewell && !event.EscalationRequested

	previous := next.Current
	switch next.Current {
	case PhaseWelcome:
		next = stepWelcome(next, event)
	case PhaseTopicDetection:
		next = stepTopicDetection(next, event)
	case PhaseTopicGuidedSupport:
		next = stepTopicGuidedSupport(next, event)
	case PhaseInfoCollection:
		next = stepInfoCollection(next, event)
	case PhaseEscalationHandoff:
		if event.HandoffComplete {
			next.HandedOff = true
			next.Current = PhaseFarewell
		}
	case PhaseFarewell:
		next.FarewellOffered = true
		if event.HasMessage {
			next.Current = PhaseClosedFollowup
		}
	case PhaseClosedFollowup:
		if event.HasTopic {
			next = enterTopic(next, event)
			next.Current = PhaseTopicDetection
		}
	case PhaseFallbackTicket:
		if event.InfoComplete || event.EscalationRequested {
			next = triggerEscalation(next, escalationReason(event))
		}
	}

	if next.Current != previous {
		next.TurnsInState = 0
	}
	return next
}

func stepWelcome(state State, event Event) State {
	if event.IsGreeting && state.TurnsInState <= maxWelcomeGreetingTurns {
		return state
	}
	state.Current = PhaseTopicDetection
	if event.HasTopic {
		state = enterTopic(state, event)
		state.Current = PhaseTopicGuidedSupport
	}
	return state
}

func stepTopicDetection(state State, event Event) State {
	if event.HasTopic {
		state = enterTopic(state, event)
		state.Current = PhaseTopicGuidedSupport
		return state
	}
	if state.TurnsInState >= maxTopicDetectionTurns {
		state.Current = PhaseFallbackTicket
	}
	return state
}

func stepTopicGuidedSupport(state State, event Event) State {
	switch {
	case event.IsFarewell:
		state.Current = PhaseFarewell
		state.FarewellOffered = true
	case event.EscalationRequested:
		state = triggerEscalation(state, ReasonExplicitRequest)
	case state.LoopDetected:
		state = triggerEscalation(state, ReasonLoopDetected)
	case event.HasTopic && event.TopicID != "" && event.TopicID != state.CurrentTopic:
		state.TopicHistory = append(state.TopicHistory, TopicVisit{
			TopicID:    state.CurrentTopic,
			TurnsSpent: state.TurnsInState,
			Timestamp:  event.Now,
		})
		state.CurrentTopic = ""
		state.TopicConfidence = 0
		state.Current = PhaseTopicDetection
	case event.NeedsInfoCollection:
		state.Current = PhaseInfoCollection
	}
	return state
}

func stepInfoCollection(state State, event Event) State {
	switch {
	case event.InfoComplete:
		state = triggerEscalation(state, ReasonInfoCollected)
	case state.TurnsInState >= maxInfoCollectionTurns:
		state = triggerEscalation(state, ReasonMaxInfoTurns)
	}
	return state
}

func enterTopic(state State, event Event) State {
	state.CurrentTopic = event.TopicID
	state.TopicConfidence = event.TopicConfidence
	return state
}

func triggerEscalation(state State, reason string) State {
	state.EscalationTriggered = true
	state.EscalationReason = reason
	state.Current = PhaseEscalationHandoff
	return state
}

func escalationReason(event Event) string {
	if event.InfoComplete {
		return ReasonInfoCollected
	}
	return ReasonExplicitRequest
}
