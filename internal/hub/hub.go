// Package hub provides the live-session registry and per-session state.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Necoverse/awa/internal/domain"
)

// ErrSessionClosed is returned when sending on a session that has left
// the Active state.
var ErrSessionClosed = errors.New("session closed")

// ErrBufferFull is returned when the session's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Conn is the subset of the transport connection the session owns.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

// Session represents one client's live connection. It owns the
// transport handle exclusively; teardown releases it exactly once.
type Session struct {
	ID          string
	ClientID    string
	ConnectedAt time.Time

	conn   Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        domain.SessionState
	lastActivity time.Time
}

// NewSession creates a session in the Connecting state.
func NewSession(clientID string, conn Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		ConnectedAt:  now,
		conn:         conn,
		send:         make(chan []byte, 64),
		ctx:          ctx,
		cancel:       cancel,
		state:        domain.SessionConnecting,
		lastActivity: now,
	}
}

// Context is canceled on teardown so in-flight pipeline work awaiting an
// external engine can be interrupted.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate moves the session from Connecting to Active.
func (s *Session) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionConnecting {
		s.state = domain.SessionActive
	}
}

// BeginClose moves an Active session to Closing. It reports whether the
// transition happened, so only one caller drives the close sequence.
func (s *Session) BeginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionActive || s.state == domain.SessionConnecting {
		s.state = domain.SessionClosing
		return true
	}
	return false
}

// Close transitions to Closed and releases the transport handle. Safe to
// call from both normal closure and error paths, and safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == domain.SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = domain.SessionClosed
	s.mu.Unlock()

	s.cancel()
	close(s.send)
	s.conn.Close()
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
}

// LastActivity returns the time of the last inbound frame.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Send queues data for the write pump. Sending on a session that is no
// longer Active is refused, never a panic.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionActive {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSON marshals v and queues it for the write pump.
func (s *Session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Outbound is the channel drained by the write pump. It is closed by
// Close.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// ReadMessage reads the next frame from the transport.
func (s *Session) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

// WriteMessage writes a frame to the transport. Serialized because both
// the write pump and close handshakes touch the connection.
func (s *Session) WriteMessage(messageType int, data []byte) error {
	return s.conn.WriteMessage(messageType, data)
}

// SetReadDeadline sets the read deadline on the transport.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the transport.
func (s *Session) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// SetPongHandler installs the pong handler on the transport.
func (s *Session) SetPongHandler(h func(string) error) {
	s.conn.SetPongHandler(h)
}

// SetReadLimit caps inbound frame size.
func (s *Session) SetReadLimit(limit int64) {
	s.conn.SetReadLimit(limit)
}

// Hub is the registry of live sessions. It is the only cross-session
// shared mutable structure; every operation on it holds the lock.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      zerolog.Logger
}

// New creates an empty hub.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// Register adds a session to the registry.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.log.Info().Str("session_id", s.ID).Str("client_id", s.ClientID).Msg("session registered")
}

// Teardown removes the session from the registry and closes it.
// Idempotent: concurrent or repeated calls never double-release the
// transport handle.
func (h *Hub) Teardown(s *Session) {
	h.mu.Lock()
	_, registered := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	s.BeginClose()
	s.Close()

	if registered {
		h.log.Info().Str("session_id", s.ID).Str("client_id", s.ClientID).Msg("session unregistered")
	}
}

// Get returns the session with the given id, or nil.
func (h *Hub) Get(id string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[id]
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll tears down every registered session. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.BeginClose()
		s.Close()
	}
}
