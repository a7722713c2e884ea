// Package ws exposes the persistent event channel. Each connection joins
// the registry on upgrade, receives the current encounter snapshot, and
// then gets pushed every broadcast addressed to its session and role.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KirkDiggler/session-api/internal/broadcast"
	"github.com/KirkDiggler/session-api/internal/connections"
	"github.com/KirkDiggler/session-api/internal/errors"
	"github.com/KirkDiggler/session-api/internal/orchestrators/combat"
	"github.com/KirkDiggler/session-api/internal/pkg/idgen"
)

const writeWait = 10 * time.Second

// Config holds the dependencies for the websocket handler
type Config struct {
	Registry *connections.Registry
	Engine   combat.Service
	IDGen    idgen.Generator
}

// Validate ensures all required dependencies are provided
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Registry == nil {
		vb.RequiredField("Registry")
	}
	if c.Engine == nil {
		vb.RequiredField("Engine")
	}
	if c.IDGen == nil {
		vb.RequiredField("IDGen")
	}

	return vb.Build()
}

// Handler upgrades HTTP requests to websocket connections and wires
// them into the connection registry.
type Handler struct {
	registry *connections.Registry
	engine   combat.Service
	idGen    idgen.Generator
	upgrader websocket.Upgrader
}

// NewHandler creates a new websocket handler
func NewHandler(cfg *Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &Handler{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		idGen:    cfg.IDGen,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// wsSender adapts a websocket connection to the registry's Sender.
// The mutex serializes writes: broadcasts and the initial snapshot may
// race from different goroutines.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSender) Close() error {
	return s.conn.Close()
}

// ServeHTTP handles GET /ws?session_id=...&role=...&participant_id=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	role := connections.Role(r.URL.Query().Get("role"))
	switch role {
	case connections.RoleOperator, connections.RoleViewer:
	case "":
		role = connections.RoleViewer
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participant_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed",
			"session_id", sessionID,
			"error", err)
		return
	}

	connection := &connections.Connection{
		ID:            h.idGen.Generate(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		Sender:        &wsSender{conn: conn},
	}
	if err := h.registry.Join(connection); err != nil {
		slog.ErrorContext(r.Context(), "failed to register connection",
			"session_id", sessionID,
			"error", err)
		_ = conn.Close()
		return
	}

	slog.InfoContext(r.Context(), "connection joined",
		"connection_id", connection.ID,
		"session_id", sessionID,
		"role", role)

	if err := h.sendSnapshot(r.Context(), connection); err != nil {
		h.drop(r.Context(), connection)
		return
	}

	// Read loop: the event channel is push-only, so inbound frames only
	// keep the connection alive and surface closure.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(r.Context(), connection)
			return
		}
	}
}

// sendSnapshot delivers the current encounter (if any) so a subscriber
// starts from known state before applying event payloads.
func (h *Handler) sendSnapshot(ctx context.Context, conn *connections.Connection) error {
	output, err := h.engine.GetEncounter(ctx, &combat.GetEncounterInput{
		SessionID: conn.SessionID,
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}

	envelope := broadcast.Envelope{
		Type:      broadcast.EventEncounterStarted,
		SessionID: conn.SessionID,
		Payload:   broadcast.EncounterPayload{Encounter: output.Encounter},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return conn.Sender.Send(data)
}

func (h *Handler) drop(ctx context.Context, conn *connections.Connection) {
	if removed := h.registry.Leave(conn.ID); removed != nil {
		_ = removed.Sender.Close()
		slog.InfoContext(ctx, "connection left",
			"connection_id", conn.ID,
			"session_id", conn.SessionID)
	}
}
