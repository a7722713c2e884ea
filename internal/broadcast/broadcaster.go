// Package broadcast fans committed state changes out to live connections.
package broadcast

//go:generate mockgen -destination=mock/mock_publisher.go -package=broadcastmock github.com/KirkDiggler/session-api/internal/broadcast Publisher

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/KirkDiggler/session-api/internal/connections"
	"github.com/KirkDiggler/session-api/internal/errors"
)

// Publisher publishes events to the subscribers of a session.
// Per-subscriber delivery failures are handled inside Publish and never
// surface as an error; the returned error covers only malformed events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Config holds the dependencies for the broadcaster
type Config struct {
	Registry *connections.Registry
}

// Validate ensures all required dependencies are provided
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Registry == nil {
		vb.RequiredField("Registry")
	}

	return vb.Build()
}

// Broadcaster delivers events to every connection in the event's scope.
// Delivery is synchronous so that events from one mutation sequence
// reach each subscriber in publish order.
type Broadcaster struct {
	registry *connections.Registry
}

// NewBroadcaster creates a new broadcaster with the provided dependencies
func NewBroadcaster(cfg *Config) (*Broadcaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &Broadcaster{
		registry: cfg.Registry,
	}, nil
}

// Publish sends an event to every connection in its scope. Connections
// that fail to accept the write are evicted from the registry and
// closed; the event itself always succeeds once validated.
func (b *Broadcaster) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return errors.InvalidArgument("event type cannot be empty")
	}
	if event.SessionID == "" {
		return errors.InvalidArgument("event session ID cannot be empty")
	}

	var members []*connections.Connection
	switch event.Scope {
	case ScopeAll:
		members = b.registry.All(event.SessionID)
	case ScopeOperator:
		members = b.registry.Operators(event.SessionID)
	case ScopeViewers:
		members = b.registry.Viewers(event.SessionID)
	default:
		return errors.InvalidArgumentf("unknown scope %q", event.Scope)
	}

	data, err := json.Marshal(Envelope{
		Type:      event.Type,
		SessionID: event.SessionID,
		Payload:   event.Payload,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal event %s", event.Type)
	}

	for _, conn := range members {
		if err := conn.Sender.Send(data); err != nil {
			slog.WarnContext(ctx, "failed to deliver event, evicting connection",
				"event_type", event.Type,
				"group", GroupKey(event.SessionID, event.Scope),
				"connection_id", conn.ID,
				"error", err)
			b.registry.Leave(conn.ID)
			_ = conn.Sender.Close()
		}
	}

	slog.DebugContext(ctx, "published event",
		"event_type", event.Type,
		"group", GroupKey(event.SessionID, event.Scope),
		"recipients", len(members))

	return nil
}
