// Package combat implements the combat orchestrator for managing live encounters
package combat

//go:generate mockgen -destination=mock/mock_service.go -package=combatmock github.com/KirkDiggler/session-api/internal/orchestrators/combat Service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/KirkDiggler/rpg-toolkit/dice"

	"github.com/KirkDiggler/session-api/internal/broadcast"
	"github.com/KirkDiggler/session-api/internal/entities"
	"github.com/KirkDiggler/session-api/internal/errors"
	"github.com/KirkDiggler/session-api/internal/pkg/clock"
	"github.com/KirkDiggler/session-api/internal/pkg/idgen"
	encounterrepo "github.com/KirkDiggler/session-api/internal/repositories/encounter"
)

// Service defines the interface for combat operations.
// All operations are serialized per session: each one loads the
// session's encounter, applies a single transition, commits it, and
// then publishes the resulting event. The encounter is never mutated
// outside these operations.
type Service interface {
	// StartEncounter creates the session's active encounter
	// Returns errors.AlreadyExists if one is already active
	// Returns errors.InvalidArgument for malformed combatant specs
	StartEncounter(ctx context.Context, input *StartEncounterInput) (*StartEncounterOutput, error)

	// AddCombatant splices a combatant into the running turn order
	// Returns errors.FailedPrecondition if no encounter is active
	AddCombatant(ctx context.Context, input *AddCombatantInput) (*AddCombatantOutput, error)

	// RemoveCombatant takes a combatant out of the turn order, keeping
	// its participant record for historical lookup
	// Returns errors.FailedPrecondition if no encounter is active
	// Returns errors.NotFound if the ref doesn't resolve
	RemoveCombatant(ctx context.Context, input *RemoveCombatantInput) (*RemoveCombatantOutput, error)

	// AdvanceTurn moves to the next combatant, wrapping into a new round
	// Returns errors.FailedPrecondition if no encounter is active or
	// the turn order is empty
	AdvanceTurn(ctx context.Context, input *AdvanceTurnInput) (*AdvanceTurnOutput, error)

	// ApplyHealthChange writes a combatant's health, handling defeat
	// and auto-victory
	// Returns errors.FailedPrecondition if no encounter is active
	// Returns errors.NotFound if the ref doesn't resolve
	ApplyHealthChange(ctx context.Context, input *ApplyHealthChangeInput) (*ApplyHealthChangeOutput, error)

	// EndEncounter deactivates the session's encounter
	// Returns errors.FailedPrecondition if no encounter is active
	EndEncounter(ctx context.Context, input *EndEncounterInput) (*EndEncounterOutput, error)

	// GetEncounter reads the session's active encounter
	// Returns errors.NotFound if no encounter is active
	GetEncounter(ctx context.Context, input *GetEncounterInput) (*GetEncounterOutput, error)
}

// Config holds the dependencies for the combat orchestrator
type Config struct {
	EncounterRepo encounterrepo.Repository
	Publisher     broadcast.Publisher
	IDGenerator   idgen.Generator
	Clock         clock.Clock
}

// Validate ensures all required dependencies are provided
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.EncounterRepo == nil {
		vb.RequiredField("EncounterRepo")
	}
	if c.Publisher == nil {
		vb.RequiredField("Publisher")
	}
	if c.IDGenerator == nil {
		vb.RequiredField("IDGenerator")
	}

	return vb.Build()
}

type orchestrator struct {
	repo      encounterrepo.Repository
	publisher broadcast.Publisher
	idGen     idgen.Generator
	clock     clock.Clock

	// Per-session locks serialize read-modify-write sequences so
	// interleaved commands can never corrupt the turn order.
	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewOrchestrator creates a new combat orchestrator with the provided dependencies
func NewOrchestrator(cfg *Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}

	return &orchestrator{
		repo:      cfg.EncounterRepo,
		publisher: cfg.Publisher,
		idGen:     cfg.IDGenerator,
		clock:     c,
		sessions:  make(map[string]*sync.Mutex),
	}, nil
}

// lockSession acquires the per-session mutex, creating it on first use
func (o *orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	m, ok := o.sessions[sessionID]
	if !ok {
		m = &sync.Mutex{}
		o.sessions[sessionID] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// publish delivers an event after a committed mutation. The context is
// detached from the caller: once committed, the broadcast happens even
// if the original requester disconnected.
func (o *orchestrator) publish(ctx context.Context, event broadcast.Event) {
	pubCtx := context.WithoutCancel(ctx)
	if err := o.publisher.Publish(pubCtx, event); err != nil {
		slog.ErrorContext(pubCtx, "failed to publish event",
			"event_type", event.Type,
			"session_id", event.SessionID,
			"error", err)
	}
}

func (o *orchestrator) snapshot(enc *entities.Encounter) broadcast.EncounterPayload {
	return broadcast.EncounterPayload{Encounter: enc.Clone()}
}

func clampInitiative(v int) (int, bool) {
	if v < MinInitiative {
		return MinInitiative, true
	}
	if v > MaxInitiative {
		return MaxInitiative, true
	}
	return v, false
}

func clampHealth(v, maxHealth int) int {
	if v < 0 {
		return 0
	}
	if v > maxHealth {
		return maxHealth
	}
	return v
}

func rollInitiative() (int, error) {
	roll, err := dice.NewRoll(1, 20)
	if err != nil {
		return 0, errors.Wrap(err, "failed to roll initiative")
	}
	return roll.GetValue(), nil
}

func validateSpec(spec *CombatantSpec) error {
	vb := errors.NewValidationBuilder()

	if spec.Name == "" {
		vb.RequiredField("Name")
	}
	switch spec.Kind {
	case entities.CombatantKindPlayer, entities.CombatantKindAlly, entities.CombatantKindHostile:
	default:
		vb.Fieldf("Kind", "must be one of: player, ally, hostile (got %q)", spec.Kind)
	}
	if spec.MaxHealth <= 0 {
		vb.Field("MaxHealth", "must be positive")
	}

	return vb.Build()
}

// buildCombatant materializes a spec, rolling or clamping initiative as
// needed. Starting health is clamped to [1, MaxHealth] so a combatant
// can never enter the encounter already defeated.
func (o *orchestrator) buildCombatant(spec *CombatantSpec) (*entities.Combatant, bool, bool, error) {
	if err := validateSpec(spec); err != nil {
		return nil, false, false, err
	}

	initiative := 0
	rolled := false
	clamped := false
	if spec.Initiative == nil {
		v, err := rollInitiative()
		if err != nil {
			return nil, false, false, err
		}
		initiative = v
		rolled = true
	} else {
		initiative, clamped = clampInitiative(*spec.Initiative)
	}

	health := spec.MaxHealth
	if spec.CurrentHealth != nil {
		health = clampHealth(*spec.CurrentHealth, spec.MaxHealth)
		if health == 0 {
			health = 1
		}
	}

	return &entities.Combatant{
		ID:            o.idGen.Generate(),
		Name:          spec.Name,
		Kind:          spec.Kind,
		Initiative:    initiative,
		CurrentHealth: health,
		MaxHealth:     spec.MaxHealth,
	}, rolled, clamped, nil
}

// getActive loads the session's active encounter, translating a missing
// encounter into the precondition failure every mutating op shares.
func (o *orchestrator) getActive(ctx context.Context, sessionID string) (*entities.Encounter, error) {
	output, err := o.repo.GetActive(ctx, encounterrepo.GetActiveInput{SessionID: sessionID})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.FailedPreconditionf("no active encounter for session %s", sessionID)
		}
		return nil, err
	}
	return output.Encounter, nil
}

// commit persists the encounter; the commit always precedes the publish
func (o *orchestrator) commit(ctx context.Context, enc *entities.Encounter) error {
	if err := ctx.Err(); err != nil {
		return errors.Canceled("command canceled before commit")
	}
	_, err := o.repo.Save(ctx, encounterrepo.SaveInput{Encounter: enc})
	return err
}

// StartEncounter creates the session's active encounter
func (o *orchestrator) StartEncounter(ctx context.Context, input *StartEncounterInput) (*StartEncounterOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}
	if len(input.Combatants) == 0 {
		return nil, errors.InvalidArgument("at least one combatant is required")
	}

	unlock := o.lockSession(input.SessionID)
	defer unlock()

	_, err := o.repo.GetActive(ctx, encounterrepo.GetActiveInput{SessionID: input.SessionID})
	if err == nil {
		return nil, errors.AlreadyExistsf("an encounter is already active for session %s", input.SessionID)
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	clampedNames := make([]string, 0)
	rolledValues := make(map[string]int)
	combatants := make([]*entities.Combatant, 0, len(input.Combatants))
	surprised := make([]string, 0)
	for i := range input.Combatants {
		spec := &input.Combatants[i]
		c, rolled, clamped, err := o.buildCombatant(spec)
		if err != nil {
			return nil, err
		}
		if rolled {
			rolledValues[c.Name] = c.Initiative
		}
		if clamped {
			clampedNames = append(clampedNames, c.Name)
		}
		if spec.Surprised {
			surprised = append(surprised, c.ID)
		}
		combatants = append(combatants, c)
	}

	// Descending initiative; ties keep input order (first listed wins).
	sort.SliceStable(combatants, func(i, j int) bool {
		return combatants[i].Initiative > combatants[j].Initiative
	})

	enc := &entities.Encounter{
		ID:          o.idGen.Generate(),
		SessionID:   input.SessionID,
		IsActive:    true,
		Round:       1,
		CurrentTurn: 0,
		TurnOrder:   make([]string, 0, len(combatants)),
		Combatants:  make(map[string]*entities.Combatant, len(combatants)),
		Surprised:   surprised,
		StartedAt:   o.clock.Now().Unix(),
	}
	for _, c := range combatants {
		enc.TurnOrder = append(enc.TurnOrder, c.ID)
		enc.Combatants[c.ID] = c
	}

	if err := o.commit(ctx, enc); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "encounter started",
		"session_id", input.SessionID,
		"encounter_id", enc.ID,
		"combatant_count", len(combatants))

	o.publish(ctx, broadcast.Event{
		Type:      broadcast.EventEncounterStarted,
		SessionID: input.SessionID,
		Scope:     broadcast.ScopeAll,
		Payload:   o.snapshot(enc),
	})

	return &StartEncounterOutput{
		Encounter:          enc,
		ClampedInitiatives: clampedNames,
		RolledInitiatives:  rolledValues,
	}, nil
}

// AddCombatant splices a combatant into the running turn order
func (o *orchestrator) AddCombatant(ctx context.Context, input *AddCombatantInput) (*AddCombatantOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}

	unlock := o.lockSession(input.SessionID)
	defer unlock()

	enc, err := o.getActive(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	c, _, _, err := o.buildCombatant(&input.Spec)
	if err != nil {
		return nil, err
	}

	// Splice in at the first slot with a lower initiative; an equal
	// initiative goes after the combatants already holding it.
	pos := len(enc.TurnOrder)
	for i, id := range enc.TurnOrder {
		if existing, ok := enc.Combatants[id]; ok && existing.Initiative < c.Initiative {
			pos = i
			break
		}
	}

	hadOrder := len(enc.TurnOrder) > 0
	enc.TurnOrder = append(enc.TurnOrder, "")
	copy(enc.TurnOrder[pos+1:], enc.TurnOrder[pos:])
	enc.TurnOrder[pos] = c.ID
	enc.Combatants[c.ID] = c

	// Keep the pointer on the same logical combatant.
	if hadOrder && pos <= enc.CurrentTurn {
		enc.CurrentTurn++
	}
	if input.Spec.Surprised {
		enc.Surprised = append(enc.Surprised, c.ID)
	}

	if err := o.commit(ctx, enc); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "combatant added",
		"session_id", input.SessionID,
		"encounter_id", enc.ID,
		"combatant_id", c.ID,
		"position", pos)

	o.publish(ctx, broadcast.Event{
		Type:      broadcast.EventEncounterUpdated,
		SessionID: input.SessionID,
		Scope:     broadcast.ScopeAll,
		Payload:   o.snapshot(enc),
	})

	return &AddCombatantOutput{
		Encounter: enc,
		Combatant: c,
		Position:  pos,
	}, nil
}

// removeFromOrder drops the entry at idx and repairs the turn pointer.
// Returns true when the pointer wrapped and the round advanced.
func removeFromOrder(enc *entities.Encounter, idx int) bool {
	enc.TurnOrder = append(enc.TurnOrder[:idx], enc.TurnOrder[idx+1:]...)

	switch {
	case len(enc.TurnOrder) == 0:
		enc.CurrentTurn = 0
		return false
	case idx < enc.CurrentTurn:
		enc.CurrentTurn--
		return false
	case idx == enc.CurrentTurn && enc.CurrentTurn >= len(enc.TurnOrder):
		enc.CurrentTurn = 0
		enc.Round++
		return true
	default:
		return false
	}
}

// endLocked deactivates an encounter that is already loaded and locked
func (o *orchestrator) endLocked(enc *entities.Encounter) {
	enc.IsActive = false
	enc.EndedAt = o.clock.Now().Unix()
}

// RemoveCombatant takes a combatant out of the turn order
func (o *orchestrator) RemoveCombatant(ctx context.Context, input *RemoveCombatantInput) (*RemoveCombatantOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}
	if input.Ref == "" {
		return nil, errors.InvalidArgument("combatant ref is required")
	}

	unlock := o.lockSession(input.SessionID)
	defer unlock()

	enc, err := o.getActive(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	c := enc.Resolve(input.Ref)
	if c == nil {
		return nil, errors.NotFoundf("combatant %q not found", input.Ref)
	}
	idx := enc.TurnIndexOf(c.ID)
	if idx < 0 {
		return nil, errors.FailedPreconditionf("%s is not in the turn order", c.Name)
	}

	roundAdvanced := removeFromOrder(enc, idx)

	// Removing the last hostile ends the fight the same way defeating
	// it would.
	ended := false
	if !enc.HostileRemains() {
		o.endLocked(enc)
		ended = true
	}

	if err := o.commit(ctx, enc); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "combatant removed",
		"session_id", input.SessionID,
		"encounter_id", enc.ID,
		"combatant_id", c.ID,
		"reason", input.Reason,
		"encounter_ended", ended)

	o.publish(ctx, broadcast.Event{
		Type:      broadcast.EventEncounterUpdated,
		SessionID: input.SessionID,
		Scope:     broadcast.ScopeAll,
		Payload:   o.snapshot(enc),
	})
	if ended {
		o.publish(ctx, broadcast.Event{
			Type:      broadcast.EventEncounterEnded,
			SessionID: input.SessionID,
			Scope:     broadcast.ScopeAll,
			Payload:   broadcast.EncounterEndedPayload{EncounterID: enc.ID},
		})
	}

	return &RemoveCombatantOutput{
		Encounter:      enc,
		Combatant:      c,
		RoundAdvanced:  roundAdvanced,
		EncounterEnded: ended,
	}, nil
}

// AdvanceTurn moves to the next combatant in the order
func (o *orchestrator) AdvanceTurn(ctx context.Context, input *AdvanceTurnInput) (*AdvanceTurnOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}

	unlock := o.lockSession(input.SessionID)
	defer unlock()

	enc, err := o.getActive(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if len(enc.TurnOrder) == 0 {
		return nil, errors.FailedPrecondition("turn order is empty")
	}

	newRound := false
	enc.CurrentTurn++
	if enc.CurrentTurn >= len(enc.TurnOrder) {
		enc.CurrentTurn = 0
		enc.Round++
		newRound = true
		// Surprise only lasts the opening round.
		enc.Surprised = nil
	}

	if err := o.commit(ctx, enc); err != nil {
		return nil, err
	}

	active := enc.CurrentCombatant()

	slog.InfoContext(ctx, "turn advanced",
		"session_id", input.SessionID,
		"encounter_id", enc.ID,
		"turn_index", enc.CurrentTurn,
		"round", enc.Round)

	payload := broadcast.TurnAdvancedPayload{
		EncounterID: enc.ID,
		Round:       enc.Round,
		TurnIndex:   enc.CurrentTurn,
	}
	if active != nil {
		payload.ActiveCombatantID = active.ID
		payload.ActiveCombatantName = active.Name
	}
	o.publish(ctx, broadcast.Event{
		Type:      broadcast.EventTurnAdvanced,
		SessionID: input.SessionID,
		Scope:     broadcast.ScopeAll,
		Payload:   payload,
	})

	return &AdvanceTurnOutput{
		Encounter:       enc,
		Round:           enc.Round,
		TurnIndex:       enc.CurrentTurn,
		ActiveCombatant: active,
		NewRound:        newRound,
	}, nil
}

// ApplyHealthChange writes a combatant's health, handling defeat and auto-victory
func (o *orchestrator) ApplyHealthChange(ctx context.Context, input *ApplyHealthChangeInput) (*ApplyHealthChangeOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}
	if input.Ref == "" {
		return nil, errors.InvalidArgument("combatant ref is required")
	}

	unlock := o.lockSession(input.SessionID)
	defer unlock()

	enc, err := o.getActive(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	c := enc.Resolve(input.Ref)
	if c == nil {
		return nil, errors.NotFoundf("combatant %q not found", input.Ref)
	}

	prev := c.CurrentHealth
	c.CurrentHealth = clampHealth(input.NewHealth, c.MaxHealth)

	// Defeat fires exactly once, on the transition into zero health.
	defeated := false
	ended := false
	if !c.IsDefeated && c.CurrentHealth <= 0 && prev > 0 {
		defeated = true
		c.IsDefeated = true
		if idx := enc.TurnIndexOf(c.ID); idx >= 0 {
			removeFromOrder(enc, idx)
		}
		if !enc.HostileRemains() {
			o.endLocked(enc)
			ended = true
		}
	}

	if err := o.commit(ctx, enc); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "health changed",
		"session_id", input.SessionID,
		"encounter_id", enc.ID,
		"combatant_id", c.ID,
		"previous_health", prev,
		"current_health", c.CurrentHealth,
		"defeated", defeated,
		"encounter_ended", ended)

	eventType := broadcast.EventEncounterUpdated
	if defeated {
		eventType = broadcast.EventCombatantDefeated
	}
	o.publish(ctx, broadcast.Event{
		Type:      eventType,
		SessionID: input.SessionID,
		Scope:     broadcast.ScopeAll,
		Payload:   o.snapshot(enc),
	})
	if ended {
		o.publish(ctx, broadcast.Event{
			Type:      broadcast.EventEncounterEnded,
			SessionID: input.SessionID,
			Scope:     broadcast.ScopeAll,
			Payload:   broadcast.EncounterEndedPayload{EncounterID: enc.ID},
		})
	}

	return &ApplyHealthChangeOutput{
		Encounter:      enc,
		Combatant:      c,
		PreviousHealth: prev,
		Defeated:       defeated,
		EncounterEnded: ended,
	}, nil
}

// EndEncounter deactivates the session's encounter
func (o *orchestrator) EndEncounter(ctx context.Context, input *EndEncounterInput) (*EndEncounterOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}

	unlock := o.lockSession(input.SessionID)
	defer unlock()

	enc, err := o.getActive(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	o.endLocked(enc)

	if err := o.commit(ctx, enc); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "encounter ended",
		"session_id", input.SessionID,
		"encounter_id", enc.ID,
		"rounds", enc.Round)

	o.publish(ctx, broadcast.Event{
		Type:      broadcast.EventEncounterEnded,
		SessionID: input.SessionID,
		Scope:     broadcast.ScopeAll,
		Payload:   broadcast.EncounterEndedPayload{EncounterID: enc.ID},
	})

	return &EndEncounterOutput{Encounter: enc}, nil
}

// GetEncounter reads the session's active encounter
func (o *orchestrator) GetEncounter(ctx context.Context, input *GetEncounterInput) (*GetEncounterOutput, error) {
	if input == nil {
		return nil, errors.InvalidArgument("input is required")
	}
	if input.SessionID == "" {
		return nil, errors.InvalidArgument("session ID is required")
	}

	output, err := o.repo.GetActive(ctx, encounterrepo.GetActiveInput{SessionID: input.SessionID})
	if err != nil {
		return nil, err
	}

	return &GetEncounterOutput{Encounter: output.Encounter}, nil
}
