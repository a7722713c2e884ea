// Package encounter provides the interface for encounter persistence
package encounter

//go:generate mockgen -destination=mock/mock_repository.go -package=encountermock github.com/KirkDiggler/session-api/internal/repositories/encounter Repository

import (
	"context"

	"github.com/KirkDiggler/session-api/internal/entities"
)

// Repository defines the interface for encounter persistence.
// The store is the single source of truth for encounter state; the
// combat orchestrator loads at the start of an operation and saves
// exactly once per committed mutation.
type Repository interface {
	// Get retrieves an encounter by ID
	// Returns errors.InvalidArgument for empty IDs
	// Returns errors.NotFound if the encounter doesn't exist
	Get(ctx context.Context, input GetInput) (*GetOutput, error)

	// GetActive retrieves the active encounter for a session
	// Returns errors.InvalidArgument for empty session IDs
	// Returns errors.NotFound if the session has no active encounter
	GetActive(ctx context.Context, input GetActiveInput) (*GetActiveOutput, error)

	// Save upserts an encounter and maintains the session's
	// active-encounter index in the same transaction
	// Returns errors.InvalidArgument for validation failures
	// Returns errors.Internal for storage failures
	Save(ctx context.Context, input SaveInput) (*SaveOutput, error)

	// Delete removes an encounter and its active index entry
	// Returns errors.NotFound if the encounter doesn't exist
	Delete(ctx context.Context, input DeleteInput) (*DeleteOutput, error)
}

// GetInput defines the input for getting an encounter
type GetInput struct {
	EncounterID string
}

// GetOutput defines the output for getting an encounter
type GetOutput struct {
	Encounter *entities.Encounter
}

// GetActiveInput defines the input for getting a session's active encounter
type GetActiveInput struct {
	SessionID string
}

// GetActiveOutput defines the output for getting a session's active encounter
type GetActiveOutput struct {
	Encounter *entities.Encounter
}

// SaveInput defines the input for saving an encounter
type SaveInput struct {
	Encounter *entities.Encounter
}

// SaveOutput defines the output for saving an encounter
type SaveOutput struct {
	Encounter *entities.Encounter
}

// DeleteInput defines the input for deleting an encounter
type DeleteInput struct {
	EncounterID string
}

// DeleteOutput defines the output for deleting an encounter
type DeleteOutput struct{}
