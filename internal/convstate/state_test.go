package convstate

import (
	"testing"
	"time"
)

func TestWelcomeToleratesOneGreetingTurn(t *testing.T) {
	state := NewState()

	state = Step(state, Event{HasMessage: true, IsGreeting: true})
	if state.Current != PhaseWelcome {
		t.Fatalf("first greeting should stay in welcome, got %q", state.Current)
	}

	state = Step(state, Event{HasMessage: true, IsGreeting: true})
	if state.Current != PhaseTopicDetection {
		t.Fatalf("second greeting should advance to topic_detection, got %q", state.Current)
	}
}

func TestWelcomeAdvancesOnContent(t *testing.T) {
	state := Step(NewState(), Event{HasMessage: true})
	if state.Current != PhaseTopicDetection {
		t.Fatalf("non-greeting should advance immediately, got %q", state.Current)
	}
}

func TestWelcomeJumpsToTopicSupportOnTopic(t *testing.T) {
	state := Step(NewState(), Event{HasMessage: true, HasTopic: true, TopicID: "pos", TopicConfidence: 0.9})
	if state.Current != PhaseTopicGuidedSupport {
		t.Fatalf("expected topic_guided_support, got %q", state.Current)
	}
	if state.CurrentTopic != "pos" || state.TopicConfidence != 0.9 {
		t.Fatalf("topic not recorded: %q %v", state.CurrentTopic, state.TopicConfidence)
	}
}

func TestTopicDetectionFallsThroughAfterTwoTurns(t *testing.T) {
	state := State{Current: PhaseTopicDetection}
	state = Step(state, Event{HasMessage: true})
	if state.Current != PhaseTopicDetection {
		t.Fatalf("one turn without topic should stay, got %q", state.Current)
	}
	state = Step(state, Event{HasMessage: true})
	if state.Current != PhaseFallbackTicket {
		t.Fatalf("two turns without topic should fall through, got %q", state.Current)
	}
}

func TestTopicDriftPushesHistory(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	state := State{Current: PhaseTopicGuidedSupport, CurrentTopic: "pos", TopicConfidence: 0.8, TurnsInState: 2}

	state = Step(state, Event{HasMessage: true, HasTopic: true, TopicID: "fatura", TopicConfidence: 0.7, Now: now})
	if state.Current != PhaseTopicDetection {
		t.Fatalf("topic drift should return to topic_detection, got %q", state.Current)
	}
	if len(state.TopicHistory) != 1 || state.TopicHistory[0].TopicID != "pos" {
		t.Fatalf("old topic should be pushed to history, got %+v", state.TopicHistory)
	}
	if state.TopicHistory[0].TurnsSpent != 3 {
		t.Fatalf("turns spent should include the drifting turn, got %d", state.TopicHistory[0].TurnsSpent)
	}
}

func TestFarewellFromTopicSupport(t *testing.T) {
	state := State{Current: PhaseTopicGuidedSupport, CurrentTopic: "pos"}
	state = Step(state, Event{HasMessage: true, IsFarewell: true})
	if state.Current != PhaseFarewell || !state.FarewellOffered {
		t.Fatalf("farewell should move to farewell phase, got %+v", state)
	}
}

func TestExplicitEscalationRequest(t *testing.T) {
	state := State{Current: PhaseTopicGuidedSupport, CurrentTopic: "pos"}
	state = Step(state, Event{HasMessage: true, EscalationRequested: true})
	if state.Current != PhaseEscalationHandoff || !state.EscalationTriggered {
		t.Fatalf("expected escalation, got %+v", state)
	}
	if state.EscalationReason != ReasonExplicitRequest {
		t.Fatalf("unexpected reason %q", state.EscalationReason)
	}
}

func TestLoopDetectionEscalates(t *testing.T) {
	state := State{Current: PhaseTopicGuidedSupport, CurrentTopic: "pos", TurnsInState: 3}
	state = Step(state, Event{HasMessage: true})
	if !state.LoopDetected {
		t.Fatal("fourth turn in phase should set loop detection")
	}
	if state.Current != PhaseEscalationHandoff || state.EscalationReason != ReasonLoopDetected {
		t.Fatalf("loop should escalate with loop_detected, got %+v", state)
	}
}

func TestLoopDetectionSuppressedByFarewell(t *testing.T) {
	state := State{Current: PhaseTopicGuidedSupport, CurrentTopic: "pos", TurnsInState: 7}
	state = Step(state, Event{HasMessage: true, IsFarewell: true})
	if state.LoopDetected {
		t.Fatal("farewell exit must not count as a loop")
	}
	state = State{Current: PhaseTopicGuidedSupport, CurrentTopic: "pos", TurnsInState: 7}
	state = Step(state, Event{HasMessage: true, EscalationRequested: true})
	if state.LoopDetected {
		t.Fatal("escalation exit must not count as a loop")
	}
}

func TestInfoCollectionCompletion(t *testing.T) {
	state := State{Current: PhaseInfoCollection}
	state = Step(state, Event{HasMessage: true, InfoComplete: true})
	if state.Current != PhaseEscalationHandoff || state.EscalationReason != ReasonInfoCollected {
		t.Fatalf("info completion should escalate with info_collected, got %+v", state)
	}
}

func TestInfoCollectionTurnBudget(t *testing.T) {
	state := State{Current: PhaseInfoCollection}
	for turn := 0; turn < 4; turn++ {
		state = Step(state, Event{HasMessage: true})
		if state.Current != PhaseInfoCollection {
			t.Fatalf("turn %d should stay in info_collection, got %q", turn, state.Current)
		}
	}
	state = Step(state, Event{HasMessage: true})
	if state.Current != PhaseEscalationHandoff || state.EscalationReason != ReasonMaxInfoTurns {
		t.Fatalf("fifth turn should escalate with max_info_turns_exceeded, got %+v", state)
	}
}

func TestHandoffCompleteMovesToFarewell(t *testing.T) {
	state := State{Current: PhaseEscalationHandoff, EscalationTriggered: true}
	state = Step(state, Event{HasMessage: true, HandoffComplete: true})
	if state.Current != PhaseFarewell || !state.HandedOff {
		t.Fatalf("handoff completion should reach farewell, got %+v", state)
	}
}

func TestFarewellThenClosedFollowupThenNewTopic(t *testing.T) {
	state := State{Current: PhaseFarewell}
	state = Step(state, Event{HasMessage: true})
	if state.Current != PhaseClosedFollowup {
		t.Fatalf("message after farewell should reach closed_followup, got %q", state.Current)
	}
	state = Step(state, Event{HasMessage: true, HasTopic: true, TopicID: "fatura", TopicConfidence: 0.6})
	if state.Current != PhaseTopicDetection {
		t.Fatalf("new topic should reopen topic_detection, got %q", state.Current)
	}
	if state.CurrentTopic != "fatura" {
		t.Fatalf("topic should be recorded, got %q", state.CurrentTopic)
	}
}

func TestFallbackTicketEscalates(t *testing.T) {
	state := State{Current: PhaseFallbackTicket}
	state = Step(state, Event{HasMessage: true, InfoComplete: true})
	if state.Current != PhaseEscalationHandoff || state.EscalationReason != ReasonInfoCollected {
		t.Fatalf("fallback completion should escalate, got %+v", state)
	}
}

func TestTurnsInStateResetOnTransition(t *testing.T) {
	state := Step(NewState(), Event{HasMessage: true})
	if state.TurnsInState != 0 {
		t.Fatalf("turns in state should reset after transition, got %d", state.TurnsInState)
	}
	if state.TurnCount != 1 {
		t.Fatalf("turn count should accumulate, got %d", state.TurnCount)
	}
}
