// Package narrative provides the append-only session narrative record
package narrative

//go:generate mockgen -destination=mock/mock_repository.go -package=narrativemock github.com/KirkDiggler/session-api/internal/repositories/narrative Repository

import (
	"context"
)

// Entry is one line of the session narrative
type Entry struct {
	Text       string `json:"text"`
	RecordedAt int64  `json:"recorded_at"`
}

// Repository defines the interface for the narrative record.
// The record is append-only; entries are never rewritten or removed.
type Repository interface {
	// Append adds a line to the session narrative
	// Returns errors.InvalidArgument for empty session IDs or text
	// Returns errors.Internal for storage failures
	Append(ctx context.Context, input AppendInput) (*AppendOutput, error)

	// List returns the most recent narrative entries, oldest first
	// Returns errors.InvalidArgument for empty session IDs
	List(ctx context.Context, input ListInput) (*ListOutput, error)
}

// AppendInput defines the input for appending a narrative line
type AppendInput struct {
	SessionID string
	Text      string
}

// AppendOutput defines the output for appending a narrative line
type AppendOutput struct {
	Entry *Entry
}

// ListInput defines the input for listing narrative entries
type ListInput struct {
	SessionID string
	// Limit caps the number of entries returned; 0 means all
	Limit int
}

// ListOutput defines the output for listing narrative entries
type ListOutput struct {
	Entries []*Entry
}
