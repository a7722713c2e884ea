package encounter_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/session-api/internal/entities"
	"github.com/KirkDiggler/session-api/internal/errors"
	redisclient "github.com/KirkDiggler/session-api/internal/redis"
	"github.com/KirkDiggler/session-api/internal/repositories/encounter"
)

const (
	testEncounterID = "enc_123"
	testSessionID   = "sess_456"
)

type RedisRepositoryTestSuite struct {
	suite.Suite
	miniRedis *miniredis.Miniredis
	client    redisclient.Client
	repo      encounter.Repository
	ctx       context.Context
}

func (s *RedisRepositoryTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.miniRedis = mr

	client, err := redisclient.NewClient(mr.Addr(), nil)
	s.Require().NoError(err)
	s.client = client

	repo, err := encounter.NewRedis(&encounter.RedisConfig{
		Client: s.client,
	})
	s.Require().NoError(err)
	s.repo = repo

	s.ctx = context.Background()
}

func (s *RedisRepositoryTestSuite) TearDownTest() {
	s.miniRedis.Close()
}

func (s *RedisRepositoryTestSuite) testEncounter() *entities.Encounter {
	return &entities.Encounter{
		ID:        testEncounterID,
		SessionID: testSessionID,
		IsActive:  true,
		Round:     1,
		TurnOrder: []string{"cmb_1", "cmb_2"},
		Combatants: map[string]*entities.Combatant{
			"cmb_1": {ID: "cmb_1", Name: "Hero", Kind: entities.CombatantKindPlayer, Initiative: 18, CurrentHealth: 20, MaxHealth: 20},
			"cmb_2": {ID: "cmb_2", Name: "Goblin A", Kind: entities.CombatantKindHostile, Initiative: 15, CurrentHealth: 7, MaxHealth: 7},
		},
	}
}

func (s *RedisRepositoryTestSuite) TestSaveAndGet() {
	enc := s.testEncounter()

	_, err := s.repo.Save(s.ctx, encounter.SaveInput{Encounter: enc})
	s.Require().NoError(err)

	output, err := s.repo.Get(s.ctx, encounter.GetInput{EncounterID: testEncounterID})
	s.Require().NoError(err)
	s.Equal(testEncounterID, output.Encounter.ID)
	s.Equal(testSessionID, output.Encounter.SessionID)
	s.Equal([]string{"cmb_1", "cmb_2"}, output.Encounter.TurnOrder)
	s.Len(output.Encounter.Combatants, 2)
}

func (s *RedisRepositoryTestSuite) TestSaveMaintainsActiveIndex() {
	enc := s.testEncounter()

	_, err := s.repo.Save(s.ctx, encounter.SaveInput{Encounter: enc})
	s.Require().NoError(err)

	active, err := s.repo.GetActive(s.ctx, encounter.GetActiveInput{SessionID: testSessionID})
	s.Require().NoError(err)
	s.Equal(testEncounterID, active.Encounter.ID)

	// Ending the encounter clears the index in the same save.
	enc.IsActive = false
	_, err = s.repo.Save(s.ctx, encounter.SaveInput{Encounter: enc})
	s.Require().NoError(err)

	_, err = s.repo.GetActive(s.ctx, encounter.GetActiveInput{SessionID: testSessionID})
	s.Error(err)
	s.True(errors.IsNotFound(err))

	// The encounter record itself survives for historical lookup.
	output, err := s.repo.Get(s.ctx, encounter.GetInput{EncounterID: testEncounterID})
	s.Require().NoError(err)
	s.False(output.Encounter.IsActive)
}

func (s *RedisRepositoryTestSuite) TestGetActiveStaleIndexCleanup() {
	s.miniRedis.Set("encounter:session:"+testSessionID+":active", "enc_gone")

	_, err := s.repo.GetActive(s.ctx, encounter.GetActiveInput{SessionID: testSessionID})
	s.Error(err)
	s.True(errors.IsNotFound(err))

	// The dangling index entry was removed.
	s.False(s.miniRedis.Exists("encounter:session:" + testSessionID + ":active"))
}

func (s *RedisRepositoryTestSuite) TestGetNotFound() {
	output, err := s.repo.Get(s.ctx, encounter.GetInput{EncounterID: "enc_missing"})

	s.Error(err)
	s.Nil(output)
	s.True(errors.IsNotFound(err))
}

func (s *RedisRepositoryTestSuite) TestGetActiveNone() {
	output, err := s.repo.GetActive(s.ctx, encounter.GetActiveInput{SessionID: testSessionID})

	s.Error(err)
	s.Nil(output)
	s.True(errors.IsNotFound(err))
}

func (s *RedisRepositoryTestSuite) TestDelete() {
	enc := s.testEncounter()
	_, err := s.repo.Save(s.ctx, encounter.SaveInput{Encounter: enc})
	s.Require().NoError(err)

	_, err = s.repo.Delete(s.ctx, encounter.DeleteInput{EncounterID: testEncounterID})
	s.Require().NoError(err)

	_, err = s.repo.Get(s.ctx, encounter.GetInput{EncounterID: testEncounterID})
	s.True(errors.IsNotFound(err))

	// The active index goes with it.
	_, err = s.repo.GetActive(s.ctx, encounter.GetActiveInput{SessionID: testSessionID})
	s.True(errors.IsNotFound(err))
}

func (s *RedisRepositoryTestSuite) TestValidation() {
	s.Run("save nil encounter", func() {
		_, err := s.repo.Save(s.ctx, encounter.SaveInput{Encounter: nil})
		s.True(errors.IsInvalidArgument(err))
	})

	s.Run("save without ID", func() {
		_, err := s.repo.Save(s.ctx, encounter.SaveInput{Encounter: &entities.Encounter{SessionID: testSessionID}})
		s.True(errors.IsInvalidArgument(err))
	})

	s.Run("save without session ID", func() {
		_, err := s.repo.Save(s.ctx, encounter.SaveInput{Encounter: &entities.Encounter{ID: testEncounterID}})
		s.True(errors.IsInvalidArgument(err))
	})

	s.Run("get with empty ID", func() {
		_, err := s.repo.Get(s.ctx, encounter.GetInput{})
		s.True(errors.IsInvalidArgument(err))
	})

	s.Run("get active with empty session ID", func() {
		_, err := s.repo.GetActive(s.ctx, encounter.GetActiveInput{})
		s.True(errors.IsInvalidArgument(err))
	})
}

func TestRedisRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RedisRepositoryTestSuite))
}
