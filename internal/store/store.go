// Package store persists conversation turns and user profiles.
package store

import (
	"context"

	"github.com/Necoverse/awa/internal/domain"
)

// Store is the conversation store boundary. Turns are append-only;
// profile updates are merges.
type Store interface {
	// AppendTurn writes one turn and returns its id. Turns are ordered
	// by insertion.
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) (string, error)

	// MergeProfile merges the deltas into the user's profile, creating
	// it on first contact. Existing keys are overwritten, keys absent
	// from the deltas are left untouched. Each call is atomic; the last
	// writer for a given key wins.
	MergeProfile(ctx context.Context, userID string, preferences, interaction map[string]any) error

	// History returns up to limit turns for the session, most recent
	// first.
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error)

	// GetProfile returns the user's profile, or nil if none exists.
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// Close releases the underlying storage.
	Close() error
}
