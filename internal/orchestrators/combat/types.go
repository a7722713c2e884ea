package combat

import (
	"github.com/KirkDiggler/session-api/internal/entities"
)

// Initiative bounds. Caller-supplied values outside this range are
// clamped and the clamp is reported in the operation output.
const (
	MinInitiative = 1
	MaxInitiative = 30
)

// CombatantSpec describes a combatant to add to an encounter.
// Initiative and CurrentHealth are optional: a missing initiative is
// rolled (1d20) and a missing current health defaults to MaxHealth.
type CombatantSpec struct {
	Name          string
	Kind          entities.CombatantKind
	Initiative    *int
	MaxHealth     int
	CurrentHealth *int
	Surprised     bool
}

// StartEncounterInput defines the input for starting an encounter
type StartEncounterInput struct {
	SessionID  string
	Combatants []CombatantSpec
}

// StartEncounterOutput defines the output for starting an encounter
type StartEncounterOutput struct {
	Encounter *entities.Encounter
	// ClampedInitiatives lists the names whose initiative was clamped
	// into [MinInitiative, MaxInitiative]
	ClampedInitiatives []string
	// RolledInitiatives maps combatant names to initiative values that
	// were rolled because the spec omitted them
	RolledInitiatives map[string]int
}

// AddCombatantInput defines the input for a mid-encounter insertion
type AddCombatantInput struct {
	SessionID string
	Spec      CombatantSpec
}

// AddCombatantOutput defines the output for a mid-encounter insertion
type AddCombatantOutput struct {
	Encounter *entities.Encounter
	Combatant *entities.Combatant
	// Position is the index the combatant was spliced into in the turn order
	Position int
}

// RemoveCombatantInput defines the input for removing a combatant from
// the turn order. Ref may be a combatant ID or display name.
type RemoveCombatantInput struct {
	SessionID string
	Ref       string
	Reason    string
}

// RemoveCombatantOutput defines the output for removing a combatant
type RemoveCombatantOutput struct {
	Encounter *entities.Encounter
	Combatant *entities.Combatant
	// RoundAdvanced reports that the removal wrapped the turn pointer
	// back to the top of the order
	RoundAdvanced bool
	// EncounterEnded reports auto-victory triggered by the removal
	EncounterEnded bool
}

// AdvanceTurnInput defines the input for advancing the turn
type AdvanceTurnInput struct {
	SessionID string
}

// AdvanceTurnOutput defines the output for advancing the turn
type AdvanceTurnOutput struct {
	Encounter       *entities.Encounter
	Round           int
	TurnIndex       int
	ActiveCombatant *entities.Combatant
	// NewRound reports that the advance wrapped into a new round
	NewRound bool
}

// ApplyHealthChangeInput defines the input for a health change.
// Ref may be a combatant ID or display name.
type ApplyHealthChangeInput struct {
	SessionID string
	Ref       string
	NewHealth int
}

// ApplyHealthChangeOutput defines the output for a health change
type ApplyHealthChangeOutput struct {
	Encounter      *entities.Encounter
	Combatant      *entities.Combatant
	PreviousHealth int
	// Defeated reports that this change caused the defeat transition
	Defeated bool
	// EncounterEnded reports auto-victory triggered by the defeat
	EncounterEnded bool
}

// EndEncounterInput defines the input for ending an encounter
type EndEncounterInput struct {
	SessionID string
}

// EndEncounterOutput defines the output for ending an encounter
type EndEncounterOutput struct {
	Encounter *entities.Encounter
}

// GetEncounterInput defines the input for reading the active encounter
type GetEncounterInput struct {
	SessionID string
}

// GetEncounterOutput defines the output for reading the active encounter
type GetEncounterOutput struct {
	Encounter *entities.Encounter
}
