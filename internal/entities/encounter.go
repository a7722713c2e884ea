// Package entities provides core data structures for session-api.
package entities

import (
	"strings"
)

// CombatantKind classifies who controls a combatant
type CombatantKind string

// Combatant kinds
const (
	CombatantKindPlayer  CombatantKind = "player"
	CombatantKindAlly    CombatantKind = "ally"
	CombatantKindHostile CombatantKind = "hostile"
)

// Combatant represents one entity participating in an encounter.
// NOTE: This is a data-only struct. State transitions (defeat, turn
// order repair) are done by the combat orchestrator, not here.
type Combatant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          CombatantKind `json:"kind"`
	Initiative    int           `json:"initiative"`
	CurrentHealth int           `json:"current_health"`
	MaxHealth     int           `json:"max_health"`
	IsDefeated    bool          `json:"is_defeated"`
}

// Encounter represents one active (or just-ended) combat within a session.
// TurnOrder holds only non-defeated combatant IDs; Combatants keeps every
// participant for historical lookup, defeated included.
type Encounter struct {
	ID          string                `json:"id"`
	SessionID   string                `json:"session_id"`
	IsActive    bool                  `json:"is_active"`
	Round       int                   `json:"round"`
	TurnOrder   []string              `json:"turn_order"`
	CurrentTurn int                   `json:"current_turn"`
	Combatants  map[string]*Combatant `json:"combatants"`
	Surprised   []string              `json:"surprised,omitempty"`
	StartedAt   int64                 `json:"started_at"`
	EndedAt     int64                 `json:"ended_at,omitempty"`
}

// NormalizeName lowercases a display name and treats underscores and
// hyphens as spaces, so "goblin_a", "Goblin-A", and "Goblin A" all
// resolve to the same combatant.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Resolve finds a combatant by exact ID match first, then by
// normalized case-insensitive name. Returns nil if nothing matches.
func (e *Encounter) Resolve(ref string) *Combatant {
	if c, ok := e.Combatants[ref]; ok {
		return c
	}

	want := NormalizeName(ref)
	if want == "" {
		return nil
	}
	for _, id := range e.TurnOrder {
		if c, ok := e.Combatants[id]; ok && NormalizeName(c.Name) == want {
			return c
		}
	}
	// Fall back to defeated combatants so health history stays addressable.
	for _, c := range e.Combatants {
		if NormalizeName(c.Name) == want {
			return c
		}
	}
	return nil
}

// CurrentCombatant returns the combatant whose turn it is, or nil when
// the turn order is empty.
func (e *Encounter) CurrentCombatant() *Combatant {
	if len(e.TurnOrder) == 0 || e.CurrentTurn < 0 || e.CurrentTurn >= len(e.TurnOrder) {
		return nil
	}
	return e.Combatants[e.TurnOrder[e.CurrentTurn]]
}

// TurnIndexOf returns the position of a combatant in the turn order,
// or -1 if the combatant is not in it.
func (e *Encounter) TurnIndexOf(combatantID string) int {
	for i, id := range e.TurnOrder {
		if id == combatantID {
			return i
		}
	}
	return -1
}

// HostileRemains reports whether any hostile combatant is still in the
// turn order. Used for the auto-victory check.
func (e *Encounter) HostileRemains() bool {
	for _, id := range e.TurnOrder {
		if c, ok := e.Combatants[id]; ok && c.Kind == CombatantKindHostile {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the encounter
func (e *Encounter) Clone() *Encounter {
	if e == nil {
		return nil
	}

	clone := *e
	clone.TurnOrder = append([]string(nil), e.TurnOrder...)
	clone.Surprised = append([]string(nil), e.Surprised...)
	clone.Combatants = make(map[string]*Combatant, len(e.Combatants))
	for id, c := range e.Combatants {
		cc := *c
		clone.Combatants[id] = &cc
	}
	return &clone
}
