// Package connections tracks live connections per session.
//
// The registry is ephemeral, rebuildable presence state: losing it on a
// process restart loses nothing but "who is online right now". Nothing
// here is ever persisted.
package connections

import (
	"sync"

	"github.com/KirkDiggler/session-api/internal/errors"
)

// Role identifies what a connection is allowed to receive
type Role string

// Connection roles
const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Sender pushes raw event payloads to a single connection.
// Implementations must be safe for concurrent use.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Connection is one live connection's membership record
type Connection struct {
	ID            string
	SessionID     string
	ParticipantID string
	Role          Role
	Sender        Sender
}

// Registry is a concurrency-safe membership table mapping live
// connections to their session and role.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	sessions map[string]map[string]*Connection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		sessions: make(map[string]map[string]*Connection),
	}
}

// Join registers a connection. A reused connection ID replaces the
// previous registration and closes its sender.
func (r *Registry) Join(conn *Connection) error {
	if conn == nil {
		return errors.InvalidArgument("connection cannot be nil")
	}
	if conn.ID == "" {
		return errors.InvalidArgument("connection ID cannot be empty")
	}
	if conn.SessionID == "" {
		return errors.InvalidArgument("session ID cannot be empty")
	}
	if conn.Role != RoleOperator && conn.Role != RoleViewer {
		return errors.InvalidArgumentf("unknown role %q", conn.Role)
	}

	r.mu.Lock()
	existing, replaced := r.conns[conn.ID]
	if replaced {
		r.removeLocked(existing)
	}
	r.conns[conn.ID] = conn
	if r.sessions[conn.SessionID] == nil {
		r.sessions[conn.SessionID] = make(map[string]*Connection)
	}
	r.sessions[conn.SessionID][conn.ID] = conn
	r.mu.Unlock()

	if replaced && existing.Sender != nil {
		_ = existing.Sender.Close()
	}
	return nil
}

// Leave removes a connection. It is idempotent: a disconnect handler
// racing with an explicit leave is harmless. Returns the removed
// connection, or nil if it was already gone.
func (r *Registry) Leave(connectionID string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	r.removeLocked(conn)
	return conn
}

func (r *Registry) removeLocked(conn *Connection) {
	delete(r.conns, conn.ID)
	if members, ok := r.sessions[conn.SessionID]; ok {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(r.sessions, conn.SessionID)
		}
	}
}

// ListViewers returns the participant IDs of connected viewers for a session
func (r *Registry) ListViewers(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	viewers := make([]string, 0)
	for _, conn := range r.sessions[sessionID] {
		if conn.Role == RoleViewer && conn.ParticipantID != "" {
			viewers = append(viewers, conn.ParticipantID)
		}
	}
	return viewers
}

// IsOnline reports whether a participant has at least one live connection
func (r *Registry) IsOnline(sessionID, participantID string) bool {
	if participantID == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.sessions[sessionID] {
		if conn.ParticipantID == participantID {
			return true
		}
	}
	return false
}

// All returns every live connection for a session
func (r *Registry) All(sessionID string) []*Connection {
	return r.members(sessionID, "")
}

// Operators returns the operator connections for a session
func (r *Registry) Operators(sessionID string) []*Connection {
	return r.members(sessionID, RoleOperator)
}

// Viewers returns the viewer connections for a session
func (r *Registry) Viewers(sessionID string) []*Connection {
	return r.members(sessionID, RoleViewer)
}

func (r *Registry) members(sessionID string, role Role) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Connection, 0, len(r.sessions[sessionID]))
	for _, conn := range r.sessions[sessionID] {
		if role == "" || conn.Role == role {
			members = append(members, conn)
		}
	}
	return members
}
