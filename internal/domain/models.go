// Package domain defines the core data model shared across the service.
package domain

import "time"

// SessionState tracks the lifecycle of one live connection.
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionClosing
	SessionClosed
)

// String returns the lowercase name of the state.
func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConversationTurn is one persisted user/assistant exchange.
// Turns are append-only; they are never mutated after being written.
type ConversationTurn struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	UserText      string    `json:"user_message"`
	AssistantText string    `json:"assistant_message"`
	AudioRef      *string   `json:"audio_path"`
	VideoRef      *string   `json:"video_path"`
	Timestamp     time.Time `json:"timestamp"`
}

// UserProfile holds per-client preferences and interaction history.
// Profile updates are merges: new keys are added, existing keys
// overwritten, keys absent from the update left untouched.
type UserProfile struct {
	UserID             string         `json:"user_id"`
	Preferences        map[string]any `json:"preferences"`
	InteractionHistory map[string]any `json:"interaction_history"`
	LastSeen           time.Time      `json:"last_seen"`
}
