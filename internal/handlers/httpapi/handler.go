// Package httpapi exposes the command surface and state snapshots over HTTP.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/KirkDiggler/session-api/internal/commands"
	"github.com/KirkDiggler/session-api/internal/errors"
	"github.com/KirkDiggler/session-api/internal/orchestrators/combat"
	"github.com/KirkDiggler/session-api/internal/repositories/narrative"
)

// Config holds the dependencies for the HTTP API handler
type Config struct {
	Router    *commands.Router
	Engine    combat.Service
	Narrative narrative.Repository
}

// Validate ensures all required dependencies are provided
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	if c.Router == nil {
		vb.RequiredField("Router")
	}
	if c.Engine == nil {
		vb.RequiredField("Engine")
	}
	if c.Narrative == nil {
		vb.RequiredField("Narrative")
	}

	return vb.Build()
}

// Handler serves the session command and snapshot endpoints
type Handler struct {
	router    *commands.Router
	engine    combat.Service
	narrative narrative.Repository
}

// NewHandler creates a new HTTP API handler
func NewHandler(cfg *Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &Handler{
		router:    cfg.Router,
		engine:    cfg.Engine,
		narrative: cfg.Narrative,
	}, nil
}

// Register mounts the API routes on a mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions/{session_id}/commands", h.handleCommand)
	mux.HandleFunc("GET /v1/sessions/{session_id}/encounter", h.handleGetEncounter)
	mux.HandleFunc("GET /v1/sessions/{session_id}/narrative", h.handleGetNarrative)
	mux.HandleFunc("GET /health", h.handleHealth)
}

type commandRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// handleCommand executes one command. Commands that ran report their
// outcome in-band: a failed command is still HTTP 200 with ok=false.
func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	var req commandRequest
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, errors.InvalidArgument("request body must be valid JSON"))
		return
	}
	if req.Command == "" {
		writeError(w, errors.InvalidArgument("command name is required"))
		return
	}

	result := h.router.Execute(r.Context(), sessionID, req.Command, req.Args)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetEncounter(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	output, err := h.engine.GetEncounter(r.Context(), &combat.GetEncounterInput{
		SessionID: sessionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"encounter": output.Encounter})
}

func (h *Handler) handleGetNarrative(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := parseLimit(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		limit = parsed
	}

	output, err := h.narrative.List(r.Context(), narrative.ListInput{
		SessionID: sessionID,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": output.Entries})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(raw string) (int, error) {
	limit := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, errors.InvalidArgumentf("limit must be a non-negative integer (got %q)", raw)
		}
		limit = limit*10 + int(c-'0')
		if limit > 10000 {
			return 0, errors.InvalidArgumentf("limit too large (got %q)", raw)
		}
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	writeJSON(w, code.HTTPStatus(), map[string]any{
		"code":    code,
		"message": errors.GetMessage(err),
	})
}
