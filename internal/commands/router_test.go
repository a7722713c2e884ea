package commands_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/session-api/internal/broadcast"
	broadcastmock "github.com/KirkDiggler/session-api/internal/broadcast/mock"
	"github.com/KirkDiggler/session-api/internal/commands"
	"github.com/KirkDiggler/session-api/internal/entities"
	"github.com/KirkDiggler/session-api/internal/errors"
	"github.com/KirkDiggler/session-api/internal/orchestrators/combat"
	combatmock "github.com/KirkDiggler/session-api/internal/orchestrators/combat/mock"
	"github.com/KirkDiggler/session-api/internal/repositories/narrative"
	narrativemock "github.com/KirkDiggler/session-api/internal/repositories/narrative/mock"
)

type RouterTestSuite struct {
	suite.Suite

	ctx       context.Context
	ctrl      *gomock.Controller
	engine    *combatmock.MockService
	narrative *narrativemock.MockRepository
	publisher *broadcastmock.MockPublisher
	router    *commands.Router
}

func (s *RouterTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.engine = combatmock.NewMockService(s.ctrl)
	s.narrative = narrativemock.NewMockRepository(s.ctrl)
	s.publisher = broadcastmock.NewMockPublisher(s.ctrl)

	router, err := commands.NewRouter(&commands.Config{
		Engine:    s.engine,
		Narrative: s.narrative,
		Publisher: s.publisher,
	})
	s.Require().NoError(err)
	s.router = router
}

func (s *RouterTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RouterTestSuite) expectNarrative() *gomock.Call {
	return s.narrative.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(&narrative.AppendOutput{}, nil)
}

func heroEncounter() *entities.Encounter {
	hero := &entities.Combatant{
		ID:            "c_1",
		Name:          "Hero",
		Kind:          entities.CombatantKindPlayer,
		Initiative:    18,
		CurrentHealth: 30,
		MaxHealth:     30,
	}
	return &entities.Encounter{
		ID:          "enc_1",
		SessionID:   "sess_1",
		IsActive:    true,
		Round:       1,
		CurrentTurn: 0,
		TurnOrder:   []string{"c_1"},
		Combatants:  map[string]*entities.Combatant{"c_1": hero},
	}
}

func (s *RouterTestSuite) TestStartEncounter_ParsesLooseArgs() {
	var captured *combat.StartEncounterInput
	s.engine.EXPECT().
		StartEncounter(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, input *combat.StartEncounterInput) (*combat.StartEncounterOutput, error) {
			captured = input
			return &combat.StartEncounterOutput{Encounter: heroEncounter()}, nil
		})
	s.expectNarrative()

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdStartEncounter, map[string]any{
		"combatants": []any{
			map[string]any{
				// Numeric strings and kind synonyms arrive from the agent.
				"name":       "Hero",
				"kind":       "pc",
				"initiative": "18",
				"max_health": float64(30),
			},
			map[string]any{
				"name":           "Goblin",
				"kind":           "enemy",
				"initiative":     float64(12),
				"max_health":     "7",
				"current_health": "5",
			},
		},
	})

	s.True(result.OK)
	s.Contains(result.Message, "Hero acts first")
	s.Require().NotNil(captured)
	s.Require().Len(captured.Combatants, 2)

	hero := captured.Combatants[0]
	s.Equal(entities.CombatantKindPlayer, hero.Kind)
	s.Require().NotNil(hero.Initiative)
	s.Equal(18, *hero.Initiative)

	goblin := captured.Combatants[1]
	s.Equal(entities.CombatantKindHostile, goblin.Kind)
	s.Equal(7, goblin.MaxHealth)
	s.Require().NotNil(goblin.CurrentHealth)
	s.Equal(5, *goblin.CurrentHealth)
}

func (s *RouterTestSuite) TestStartEncounter_RejectsNonNumericInitiative() {
	// Engine is never called: validation fails first.
	result := s.router.Execute(s.ctx, "sess_1", commands.CmdStartEncounter, map[string]any{
		"combatants": []any{
			map[string]any{
				"name":       "Hero",
				"kind":       "player",
				"initiative": "quick",
				"max_health": float64(30),
			},
		},
	})

	s.False(result.OK)
	s.Contains(result.Message, "initiative")
}

func (s *RouterTestSuite) TestStartEncounter_ConflictSurfacesAsMessage() {
	s.engine.EXPECT().
		StartEncounter(gomock.Any(), gomock.Any()).
		Return(nil, errors.AlreadyExists("an encounter is already active for session sess_1"))

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdStartEncounter, map[string]any{
		"combatants": []any{
			map[string]any{"name": "Hero", "kind": "player", "max_health": float64(30)},
		},
	})

	s.False(result.OK)
	s.Contains(result.Message, "already active")
}

func (s *RouterTestSuite) TestUpdateHealth_AcceptsIdentifierSynonymsAndStringValue() {
	enc := heroEncounter()
	s.engine.EXPECT().
		ApplyHealthChange(gomock.Any(), &combat.ApplyHealthChangeInput{
			SessionID: "sess_1",
			Ref:       "goblin_a",
			NewHealth: 3,
		}).
		Return(&combat.ApplyHealthChangeOutput{
			Encounter: enc,
			Combatant: &entities.Combatant{
				Name: "Goblin A", CurrentHealth: 3, MaxHealth: 7,
				Kind: entities.CombatantKindHostile,
			},
			PreviousHealth: 5,
		}, nil)
	s.expectNarrative()

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdUpdateHealth, map[string]any{
		"name":  "goblin_a",
		"value": "3",
	})

	s.True(result.OK)
	s.Contains(result.Message, "Goblin A is now at 3/7 health")
}

func (s *RouterTestSuite) TestUpdateHealth_DefeatAndVictoryMessage() {
	s.engine.EXPECT().
		ApplyHealthChange(gomock.Any(), gomock.Any()).
		Return(&combat.ApplyHealthChangeOutput{
			Encounter: heroEncounter(),
			Combatant: &entities.Combatant{
				Name: "Goblin B", CurrentHealth: 0, MaxHealth: 7,
				Kind: entities.CombatantKindHostile, IsDefeated: true,
			},
			PreviousHealth: 4,
			Defeated:       true,
			EncounterEnded: true,
		}, nil)
	s.expectNarrative()

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdUpdateHealth, map[string]any{
		"identifier": "Goblin B",
		"health":     float64(0),
	})

	s.True(result.OK)
	s.Contains(result.Message, "Goblin B is defeated!")
	s.Contains(result.Message, "encounter is over")
}

func (s *RouterTestSuite) TestUpdateHealth_MissingValueFailsBeforeEngine() {
	result := s.router.Execute(s.ctx, "sess_1", commands.CmdUpdateHealth, map[string]any{
		"identifier": "Goblin B",
	})

	s.False(result.OK)
	s.Contains(result.Message, "missing required argument")
}

func (s *RouterTestSuite) TestRemoveCombatant_NotFoundSurfacesAsMessage() {
	s.engine.EXPECT().
		RemoveCombatant(gomock.Any(), &combat.RemoveCombatantInput{
			SessionID: "sess_1",
			Ref:       "nonexistent",
		}).
		Return(nil, errors.NotFoundf("combatant %q not found", "nonexistent"))

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdRemoveCombatant, map[string]any{
		"identifier": "nonexistent",
	})

	s.False(result.OK)
	s.Contains(result.Message, "not found")
}

func (s *RouterTestSuite) TestRemoveCombatant_ReasonInMessage() {
	s.engine.EXPECT().
		RemoveCombatant(gomock.Any(), &combat.RemoveCombatantInput{
			SessionID: "sess_1",
			Ref:       "Hero",
			Reason:    "fled",
		}).
		Return(&combat.RemoveCombatantOutput{
			Encounter: heroEncounter(),
			Combatant: &entities.Combatant{Name: "Hero", Kind: entities.CombatantKindPlayer},
		}, nil)
	s.expectNarrative()

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdRemoveCombatant, map[string]any{
		"identifier": "Hero",
		"reason":     "fled",
	})

	s.True(result.OK)
	s.Contains(result.Message, "(fled)")
}

func (s *RouterTestSuite) TestAdvanceTurn_NoArgsRequired() {
	s.engine.EXPECT().
		AdvanceTurn(gomock.Any(), &combat.AdvanceTurnInput{SessionID: "sess_1"}).
		Return(&combat.AdvanceTurnOutput{
			Encounter:       heroEncounter(),
			Round:           2,
			TurnIndex:       0,
			ActiveCombatant: &entities.Combatant{Name: "Hero"},
			NewRound:        true,
		}, nil)
	s.expectNarrative()

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdAdvanceTurn, nil)

	s.True(result.OK)
	s.Contains(result.Message, "Round 2 begins")
	s.Contains(result.Message, "Hero's turn")
}

func (s *RouterTestSuite) TestAddCombatant_FlatArgs() {
	s.engine.EXPECT().
		AddCombatant(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, input *combat.AddCombatantInput) (*combat.AddCombatantOutput, error) {
			s.Equal("Ogre", input.Spec.Name)
			s.Equal(entities.CombatantKindHostile, input.Spec.Kind)
			return &combat.AddCombatantOutput{
				Encounter: heroEncounter(),
				Combatant: &entities.Combatant{Name: "Ogre", Initiative: 14},
				Position:  2,
			}, nil
		})
	s.expectNarrative()

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdAddCombatant, map[string]any{
		"name":       "Ogre",
		"kind":       "monster",
		"initiative": float64(14),
		"max_health": float64(40),
	})

	s.True(result.OK)
	s.Contains(result.Message, "Ogre joins the fight")
}

func (s *RouterTestSuite) TestPresentChoices_PublishesToViewers() {
	s.publisher.EXPECT().
		Publish(gomock.Any(), broadcast.Event{
			Type:      broadcast.EventChoicesPresented,
			SessionID: "sess_1",
			Scope:     broadcast.ScopeViewers,
			Payload: broadcast.ChoicesPresentedPayload{
				Prompt:  "Which path?",
				Options: []string{"left", "right"},
			},
		}).
		Return(nil)

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdPresentChoices, map[string]any{
		"prompt":  "Which path?",
		"options": []any{"left", "right"},
	})

	s.True(result.OK)
	s.Contains(result.Message, "2 option(s)")
}

func (s *RouterTestSuite) TestSubmitChoice_PublishesToOperator() {
	s.publisher.EXPECT().
		Publish(gomock.Any(), broadcast.Event{
			Type:      broadcast.EventChoiceSubmitted,
			SessionID: "sess_1",
			Scope:     broadcast.ScopeOperator,
			Payload: broadcast.ChoiceSubmittedPayload{
				ParticipantID: "p_1",
				Choice:        "left",
			},
		}).
		Return(nil)

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdSubmitChoice, map[string]any{
		"participant_id": "p_1",
		"choice":         "left",
	})

	s.True(result.OK)
}

func (s *RouterTestSuite) TestUnknownCommand() {
	result := s.router.Execute(s.ctx, "sess_1", "cast_fireball", nil)

	s.False(result.OK)
	s.Contains(result.Message, `unknown command "cast_fireball"`)
}

func (s *RouterTestSuite) TestMissingSessionID() {
	result := s.router.Execute(s.ctx, "", commands.CmdAdvanceTurn, nil)

	s.False(result.OK)
	s.Contains(result.Message, "session id is required")
}

func (s *RouterTestSuite) TestPanicBecomesFailureResult() {
	s.engine.EXPECT().
		AdvanceTurn(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *combat.AdvanceTurnInput) (*combat.AdvanceTurnOutput, error) {
			panic("boom")
		})

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdAdvanceTurn, nil)

	s.False(result.OK)
	s.Contains(result.Message, "internal error")
}

func (s *RouterTestSuite) TestNarrativeFailureDoesNotFailCommand() {
	s.engine.EXPECT().
		EndEncounter(gomock.Any(), &combat.EndEncounterInput{SessionID: "sess_1"}).
		Return(&combat.EndEncounterOutput{Encounter: heroEncounter()}, nil)
	s.narrative.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(nil, errors.Unavailable("narrative store unreachable"))

	result := s.router.Execute(s.ctx, "sess_1", commands.CmdEndEncounter, nil)

	s.True(result.OK)
	s.Contains(result.Message, "Encounter ended")
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
