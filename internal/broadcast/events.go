package broadcast

import (
	"github.com/KirkDiggler/session-api/internal/entities"
)

// EventType names a broadcast event
type EventType string

// Event types pushed to subscribers
const (
	EventEncounterStarted  EventType = "encounter.started"
	EventEncounterUpdated  EventType = "encounter.updated"
	EventTurnAdvanced      EventType = "turn.advanced"
	EventCombatantDefeated EventType = "combatant.defeated"
	EventEncounterEnded    EventType = "encounter.ended"
	EventChoicesPresented  EventType = "choices.presented"
	EventChoiceSubmitted   EventType = "choice.submitted"
)

// Scope determines which connections of a session receive an event
type Scope string

// Delivery scopes
const (
	ScopeAll      Scope = "all"
	ScopeOperator Scope = "operator"
	ScopeViewers  Scope = "viewers"
)

// GroupKey derives the deterministic recipient group name for a session
// and scope, e.g. "sess_123:viewers". Join/leave and publish logic share
// this derivation so no secondary lookup table is needed.
func GroupKey(sessionID string, scope Scope) string {
	return sessionID + ":" + string(scope)
}

// Event is a single broadcast to the subscribers of one session.
// The payload is the single source of truth at delivery time: it carries
// either a full encounter snapshot or a fully-specified delta, and
// subscribers apply it directly without re-reading the store.
type Event struct {
	Type      EventType
	SessionID string
	Scope     Scope
	Payload   any
}

// Envelope is the wire format written to each connection
type Envelope struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload,omitempty"`
}

// EncounterPayload carries a full encounter snapshot
type EncounterPayload struct {
	Encounter *entities.Encounter `json:"encounter"`
}

// TurnAdvancedPayload carries the delta for a turn change
type TurnAdvancedPayload struct {
	EncounterID         string `json:"encounter_id"`
	Round               int    `json:"round"`
	TurnIndex           int    `json:"turn_index"`
	ActiveCombatantID   string `json:"active_combatant_id"`
	ActiveCombatantName string `json:"active_combatant_name"`
}

// EncounterEndedPayload identifies the encounter that just ended
type EncounterEndedPayload struct {
	EncounterID string `json:"encounter_id"`
}

// ChoicesPresentedPayload carries a set of options offered to viewers
type ChoicesPresentedPayload struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// ChoiceSubmittedPayload carries a viewer's answer back to the operator
type ChoiceSubmittedPayload struct {
	ParticipantID string `json:"participant_id"`
	Choice        string `json:"choice"`
}
