package encounter

import (
	"context"
	"sync"

	"github.com/KirkDiggler/session-api/internal/entities"
	"github.com/KirkDiggler/session-api/internal/errors"
)

// InMemoryRepository implements Repository using in-memory storage.
// Useful for tests and local development without Redis.
type InMemoryRepository struct {
	mu     sync.RWMutex
	store  map[string]*entities.Encounter
	active map[string]string // sessionID -> active encounter ID
}

// NewInMemory creates a new in-memory repository
func NewInMemory() *InMemoryRepository {
	return &InMemoryRepository{
		store:  make(map[string]*entities.Encounter),
		active: make(map[string]string),
	}
}

// Get retrieves an encounter by ID
func (r *InMemoryRepository) Get(ctx context.Context, input GetInput) (*GetOutput, error) {
	if input.EncounterID == "" {
		return nil, errors.InvalidArgument(errEncounterIDEmpty)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	enc, exists := r.store[input.EncounterID]
	if !exists {
		return nil, errors.NotFoundf("encounter with ID %s not found", input.EncounterID)
	}

	// Return a copy to prevent external modification
	return &GetOutput{Encounter: enc.Clone()}, nil
}

// GetActive retrieves the active encounter for a session
func (r *InMemoryRepository) GetActive(ctx context.Context, input GetActiveInput) (*GetActiveOutput, error) {
	if input.SessionID == "" {
		return nil, errors.InvalidArgument(errSessionIDEmpty)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	encounterID, exists := r.active[input.SessionID]
	if !exists {
		return nil, errors.NotFoundf("no active encounter for session %s", input.SessionID)
	}

	enc, exists := r.store[encounterID]
	if !exists {
		return nil, errors.NotFoundf("no active encounter for session %s", input.SessionID)
	}

	return &GetActiveOutput{Encounter: enc.Clone()}, nil
}

// Save upserts an encounter and its active index entry
func (r *InMemoryRepository) Save(ctx context.Context, input SaveInput) (*SaveOutput, error) {
	if input.Encounter == nil {
		return nil, errors.InvalidArgument(errEncounterNil)
	}
	if input.Encounter.ID == "" {
		return nil, errors.InvalidArgument(errEncounterIDEmpty)
	}
	if input.Encounter.SessionID == "" {
		return nil, errors.InvalidArgument(errSessionIDEmpty)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.store[input.Encounter.ID] = input.Encounter.Clone()
	if input.Encounter.IsActive {
		r.active[input.Encounter.SessionID] = input.Encounter.ID
	} else {
		delete(r.active, input.Encounter.SessionID)
	}

	return &SaveOutput{Encounter: input.Encounter}, nil
}

// Delete removes an encounter
func (r *InMemoryRepository) Delete(ctx context.Context, input DeleteInput) (*DeleteOutput, error) {
	if input.EncounterID == "" {
		return nil, errors.InvalidArgument(errEncounterIDEmpty)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	enc, exists := r.store[input.EncounterID]
	if !exists {
		return nil, errors.NotFoundf("encounter with ID %s not found", input.EncounterID)
	}

	delete(r.store, input.EncounterID)
	if r.active[enc.SessionID] == enc.ID {
		delete(r.active, enc.SessionID)
	}

	return &DeleteOutput{}, nil
}
