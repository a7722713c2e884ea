// Package commands translates loosely-typed command invocations from the
// agent layer into validated combat engine calls. The agent speaks natural
// language, so arguments arrive forgivingly typed: numbers may be strings,
// combatant references may be display names, kind values may be synonyms.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/KirkDiggler/session-api/internal/broadcast"
	"github.com/KirkDiggler/session-api/internal/entities"
	"github.com/KirkDiggler/session-api/internal/errors"
	"github.com/KirkDiggler/session-api/internal/orchestrators/combat"
	"github.com/KirkDiggler/session-api/internal/repositories/narrative"
)

// Result is what every command returns to the caller. Engine failures
// surface here as OK=false with a human-readable message; Execute never
// returns a Go error or lets a panic escape.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Command names accepted by the router
const (
	CmdStartEncounter  = "start_encounter"
	CmdEndEncounter    = "end_encounter"
	CmdAdvanceTurn     = "advance_turn"
	CmdAddCombatant    = "add_combatant"
	CmdRemoveCombatant = "remove_combatant"
	CmdUpdateHealth    = "update_health"
	CmdPresentChoices  = "present_choices"
	CmdSubmitChoice    = "submit_choice"
)

// Config holds the dependencies for the command router
type Config struct {
	Engine    combat.Service
	Narrative narrative.Repository
	Publisher broadcast.Publisher
}

// Validate ensures all required dependencies are provided
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Engine == nil {
		vb.RequiredField("Engine")
	}
	if c.Narrative == nil {
		vb.RequiredField("Narrative")
	}
	if c.Publisher == nil {
		vb.RequiredField("Publisher")
	}

	return vb.Build()
}

// Router dispatches named commands to the combat engine
type Router struct {
	engine    combat.Service
	narrative narrative.Repository
	publisher broadcast.Publisher
}

// NewRouter creates a new command router with the provided dependencies
func NewRouter(cfg *Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &Router{
		engine:    cfg.Engine,
		narrative: cfg.Narrative,
		publisher: cfg.Publisher,
	}, nil
}

// Execute runs a single command against a session. The returned Result
// is the command's complete outcome; failures are in-band, never errors.
func (r *Router) Execute(ctx context.Context, sessionID, name string, args map[string]any) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "command panicked",
				"session_id", sessionID,
				"command", name,
				"panic", rec)
			result = Result{OK: false, Message: "internal error while executing command"}
		}
	}()

	if sessionID == "" {
		return Result{OK: false, Message: "session id is required"}
	}

	var err error
	switch name {
	case CmdStartEncounter:
		result, err = r.startEncounter(ctx, sessionID, args)
	case CmdEndEncounter:
		result, err = r.endEncounter(ctx, sessionID)
	case CmdAdvanceTurn:
		result, err = r.advanceTurn(ctx, sessionID)
	case CmdAddCombatant:
		result, err = r.addCombatant(ctx, sessionID, args)
	case CmdRemoveCombatant:
		result, err = r.removeCombatant(ctx, sessionID, args)
	case CmdUpdateHealth:
		result, err = r.updateHealth(ctx, sessionID, args)
	case CmdPresentChoices:
		result, err = r.presentChoices(ctx, sessionID, args)
	case CmdSubmitChoice:
		result, err = r.submitChoice(ctx, sessionID, args)
	default:
		return Result{OK: false, Message: fmt.Sprintf("unknown command %q", name)}
	}

	if err != nil {
		slog.InfoContext(ctx, "command failed",
			"session_id", sessionID,
			"command", name,
			"code", errors.GetCode(err),
			"error", err)
		return Result{OK: false, Message: errors.GetMessage(err)}
	}
	return result
}

// record appends a narrative line after a successful mutation. Narrative
// is best-effort: a failed append is logged, never surfaced to the caller.
func (r *Router) record(ctx context.Context, sessionID, text string) {
	_, err := r.narrative.Append(ctx, narrative.AppendInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to append narrative",
			"session_id", sessionID,
			"error", err)
	}
}

func (r *Router) startEncounter(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	specs, err := parseCombatantList(args, "combatants")
	if err != nil {
		return Result{}, err
	}

	output, err := r.engine.StartEncounter(ctx, &combat.StartEncounterInput{
		SessionID:  sessionID,
		Combatants: specs,
	})
	if err != nil {
		return Result{}, err
	}

	enc := output.Encounter
	first := enc.CurrentCombatant()
	msg := fmt.Sprintf("Encounter started with %d combatants. Round 1, %s acts first.",
		len(enc.Combatants), first.Name)
	for name, value := range output.RolledInitiatives {
		msg += fmt.Sprintf(" %s rolled %d for initiative.", name, value)
	}

	r.record(ctx, sessionID, msg)
	return Result{OK: true, Message: msg}, nil
}

func (r *Router) endEncounter(ctx context.Context, sessionID string) (Result, error) {
	output, err := r.engine.EndEncounter(ctx, &combat.EndEncounterInput{SessionID: sessionID})
	if err != nil {
		return Result{}, err
	}

	msg := fmt.Sprintf("Encounter ended after %d round(s).", output.Encounter.Round)
	r.record(ctx, sessionID, msg)
	return Result{OK: true, Message: msg}, nil
}

func (r *Router) advanceTurn(ctx context.Context, sessionID string) (Result, error) {
	output, err := r.engine.AdvanceTurn(ctx, &combat.AdvanceTurnInput{SessionID: sessionID})
	if err != nil {
		return Result{}, err
	}

	var msg string
	if output.ActiveCombatant != nil {
		msg = fmt.Sprintf("It is now %s's turn (round %d).", output.ActiveCombatant.Name, output.Round)
	} else {
		msg = fmt.Sprintf("Turn advanced (round %d).", output.Round)
	}
	if output.NewRound {
		msg = fmt.Sprintf("Round %d begins. ", output.Round) + msg
	}

	r.record(ctx, sessionID, msg)
	return Result{OK: true, Message: msg}, nil
}

func (r *Router) addCombatant(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	spec, err := parseCombatantSpec(args)
	if err != nil {
		return Result{}, err
	}

	output, err := r.engine.AddCombatant(ctx, &combat.AddCombatantInput{
		SessionID: sessionID,
		Spec:      spec,
	})
	if err != nil {
		return Result{}, err
	}

	msg := fmt.Sprintf("%s joins the fight at position %d (initiative %d).",
		output.Combatant.Name, output.Position+1, output.Combatant.Initiative)
	r.record(ctx, sessionID, msg)
	return Result{OK: true, Message: msg}, nil
}

func (r *Router) removeCombatant(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	ref, err := requireString(args, "identifier", "name", "id")
	if err != nil {
		return Result{}, err
	}
	reason, _ := optionalString(args, "reason")

	output, err := r.engine.RemoveCombatant(ctx, &combat.RemoveCombatantInput{
		SessionID: sessionID,
		Ref:       ref,
		Reason:    reason,
	})
	if err != nil {
		return Result{}, err
	}

	msg := fmt.Sprintf("%s leaves the encounter.", output.Combatant.Name)
	if reason != "" {
		msg = fmt.Sprintf("%s leaves the encounter (%s).", output.Combatant.Name, reason)
	}
	if output.EncounterEnded {
		msg += " No hostiles remain; the encounter is over."
	} else if output.RoundAdvanced {
		msg += fmt.Sprintf(" Round %d begins.", output.Encounter.Round)
	}

	r.record(ctx, sessionID, msg)
	return Result{OK: true, Message: msg}, nil
}

func (r *Router) updateHealth(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	ref, err := requireString(args, "identifier", "name", "id")
	if err != nil {
		return Result{}, err
	}
	health, err := requireInt(args, "health", "new_health", "value")
	if err != nil {
		return Result{}, err
	}

	output, err := r.engine.ApplyHealthChange(ctx, &combat.ApplyHealthChangeInput{
		SessionID: sessionID,
		Ref:       ref,
		NewHealth: health,
	})
	if err != nil {
		return Result{}, err
	}

	c := output.Combatant
	msg := fmt.Sprintf("%s is now at %d/%d health.", c.Name, c.CurrentHealth, c.MaxHealth)
	if output.Defeated {
		msg = fmt.Sprintf("%s is defeated!", c.Name)
	}
	if output.EncounterEnded {
		msg += " No hostiles remain; the encounter is over."
	}

	r.record(ctx, sessionID, msg)
	return Result{OK: true, Message: msg}, nil
}

func (r *Router) presentChoices(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	prompt, err := requireString(args, "prompt")
	if err != nil {
		return Result{}, err
	}
	options, err := requireStringList(args, "options")
	if err != nil {
		return Result{}, err
	}

	err = r.publisher.Publish(ctx, broadcast.Event{
		Type:      broadcast.EventChoicesPresented,
		SessionID: sessionID,
		Scope:     broadcast.ScopeViewers,
		Payload: broadcast.ChoicesPresentedPayload{
			Prompt:  prompt,
			Options: options,
		},
	})
	if err != nil {
		return Result{}, err
	}

	return Result{OK: true, Message: fmt.Sprintf("Presented %d option(s) to viewers.", len(options))}, nil
}

func (r *Router) submitChoice(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	participantID, err := requireString(args, "participant_id")
	if err != nil {
		return Result{}, err
	}
	choice, err := requireString(args, "choice")
	if err != nil {
		return Result{}, err
	}

	err = r.publisher.Publish(ctx, broadcast.Event{
		Type:      broadcast.EventChoiceSubmitted,
		SessionID: sessionID,
		Scope:     broadcast.ScopeOperator,
		Payload: broadcast.ChoiceSubmittedPayload{
			ParticipantID: participantID,
			Choice:        choice,
		},
	})
	if err != nil {
		return Result{}, err
	}

	return Result{OK: true, Message: fmt.Sprintf("Choice from %s forwarded to the operator.", participantID)}, nil
}

// kindSynonyms maps the loose vocabulary the agent uses to the strict
// combatant kinds the engine accepts.
var kindSynonyms = map[string]entities.CombatantKind{
	"player":   entities.CombatantKindPlayer,
	"pc":       entities.CombatantKindPlayer,
	"ally":     entities.CombatantKindAlly,
	"npc":      entities.CombatantKindAlly,
	"friendly": entities.CombatantKindAlly,
	"hostile":  entities.CombatantKindHostile,
	"enemy":    entities.CombatantKindHostile,
	"monster":  entities.CombatantKindHostile,
	"foe":      entities.CombatantKindHostile,
}

func parseKind(raw string) (entities.CombatantKind, error) {
	kind, ok := kindSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", errors.InvalidArgumentf("unknown combatant kind %q", raw)
	}
	return kind, nil
}

func parseCombatantList(args map[string]any, key string) ([]combat.CombatantSpec, error) {
	raw, ok := args[key]
	if !ok {
		return nil, errors.InvalidArgumentf("missing required argument %q", key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.InvalidArgumentf("argument %q must be a list of combatants", key)
	}

	specs := make([]combat.CombatantSpec, 0, len(list))
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, errors.InvalidArgumentf("combatant %d must be an object", i)
		}
		spec, err := parseCombatantSpec(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "combatant %d", i)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseCombatantSpec(fields map[string]any) (combat.CombatantSpec, error) {
	name, err := requireString(fields, "name")
	if err != nil {
		return combat.CombatantSpec{}, err
	}

	kindRaw, err := requireString(fields, "kind")
	if err != nil {
		return combat.CombatantSpec{}, err
	}
	kind, err := parseKind(kindRaw)
	if err != nil {
		return combat.CombatantSpec{}, err
	}

	maxHealth, err := requireInt(fields, "max_health", "max_hp")
	if err != nil {
		return combat.CombatantSpec{}, err
	}

	spec := combat.CombatantSpec{
		Name:      name,
		Kind:      kind,
		MaxHealth: maxHealth,
	}

	if initiative, ok, err := optionalInt(fields, "initiative"); err != nil {
		return combat.CombatantSpec{}, err
	} else if ok {
		spec.Initiative = &initiative
	}
	if current, ok, err := optionalInt(fields, "current_health", "current_hp"); err != nil {
		return combat.CombatantSpec{}, err
	} else if ok {
		spec.CurrentHealth = &current
	}
	if surprised, ok := fields["surprised"].(bool); ok {
		spec.Surprised = surprised
	}

	return spec, nil
}

// toInt accepts the numeric shapes a JSON-speaking agent produces:
// native numbers, json.Number, and numeric strings.
func toInt(key string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, errors.InvalidArgumentf("argument %q must be a whole number (got %v)", key, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, errors.InvalidArgumentf("argument %q must be a whole number (got %s)", key, v.String())
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errors.InvalidArgumentf("argument %q must be numeric (got %q)", key, v)
		}
		return n, nil
	default:
		return 0, errors.InvalidArgumentf("argument %q must be numeric (got %T)", key, raw)
	}
}

func requireInt(args map[string]any, keys ...string) (int, error) {
	for _, key := range keys {
		if raw, ok := args[key]; ok {
			return toInt(key, raw)
		}
	}
	return 0, errors.InvalidArgumentf("missing required argument %q", keys[0])
}

func optionalInt(args map[string]any, keys ...string) (int, bool, error) {
	for _, key := range keys {
		if raw, ok := args[key]; ok && raw != nil {
			n, err := toInt(key, raw)
			return n, err == nil, err
		}
	}
	return 0, false, nil
}

func requireString(args map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		raw, ok := args[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return "", errors.InvalidArgumentf("argument %q must be a string (got %T)", key, raw)
		}
		if strings.TrimSpace(s) == "" {
			return "", errors.InvalidArgumentf("argument %q must not be empty", key)
		}
		return s, nil
	}
	return "", errors.InvalidArgumentf("missing required argument %q", keys[0])
}

func optionalString(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok && s != ""
}

func requireStringList(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, errors.InvalidArgumentf("missing required argument %q", key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.InvalidArgumentf("argument %q must be a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errors.InvalidArgumentf("argument %q element %d must be a string", key, i)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.InvalidArgumentf("argument %q must not be empty", key)
	}
	return out, nil
}
