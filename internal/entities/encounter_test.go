package entities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KirkDiggler/session-api/internal/entities"
)

func testEncounter() *entities.Encounter {
	return &entities.Encounter{
		ID:        "enc_1",
		SessionID: "sess_1",
		IsActive:  true,
		Round:     1,
		TurnOrder: []string{"cmb_1", "cmb_2"},
		Combatants: map[string]*entities.Combatant{
			"cmb_1": {ID: "cmb_1", Name: "Hero", Kind: entities.CombatantKindPlayer, CurrentHealth: 20, MaxHealth: 20},
			"cmb_2": {ID: "cmb_2", Name: "Goblin A", Kind: entities.CombatantKindHostile, CurrentHealth: 7, MaxHealth: 7},
			"cmb_3": {ID: "cmb_3", Name: "Goblin B", Kind: entities.CombatantKindHostile, CurrentHealth: 0, MaxHealth: 7, IsDefeated: true},
		},
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Goblin A", "goblin a"},
		{"goblin_a", "goblin a"},
		{"Goblin-A", "goblin a"},
		{"  GOBLIN   a  ", "goblin a"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, entities.NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestResolve(t *testing.T) {
	enc := testEncounter()

	t.Run("by exact id", func(t *testing.T) {
		c := enc.Resolve("cmb_2")
		assert.NotNil(t, c)
		assert.Equal(t, "Goblin A", c.Name)
	})

	t.Run("by normalized name", func(t *testing.T) {
		c := enc.Resolve("goblin_a")
		assert.NotNil(t, c)
		assert.Equal(t, "cmb_2", c.ID)
	})

	t.Run("defeated combatant resolvable by name", func(t *testing.T) {
		c := enc.Resolve("Goblin B")
		assert.NotNil(t, c)
		assert.True(t, c.IsDefeated)
	})

	t.Run("unknown ref", func(t *testing.T) {
		assert.Nil(t, enc.Resolve("nonexistent"))
	})
}

func TestHostileRemains(t *testing.T) {
	enc := testEncounter()
	assert.True(t, enc.HostileRemains())

	enc.TurnOrder = []string{"cmb_1"}
	assert.False(t, enc.HostileRemains(), "defeated hostiles outside the turn order do not count")
}

func TestCurrentCombatant(t *testing.T) {
	enc := testEncounter()
	assert.Equal(t, "cmb_1", enc.CurrentCombatant().ID)

	enc.TurnOrder = nil
	assert.Nil(t, enc.CurrentCombatant())
}

func TestClone(t *testing.T) {
	enc := testEncounter()
	clone := enc.Clone()

	clone.Combatants["cmb_1"].CurrentHealth = 1
	clone.TurnOrder[0] = "other"

	assert.Equal(t, 20, enc.Combatants["cmb_1"].CurrentHealth)
	assert.Equal(t, "cmb_1", enc.TurnOrder[0])
}
