package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Necoverse/awa/internal/cache"
	"github.com/Necoverse/awa/internal/domain"
)

// CachedStore wraps a Store with a short-TTL cache for history reads.
// Appends invalidate the session's cached history, so a reader behind
// this process never sees its own writes stale; writers in other
// processes are visible within the TTL.
type CachedStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedStore wraps s with the given cache.
func NewCachedStore(s Store, c cache.Cache, ttl time.Duration, log zerolog.Logger) *CachedStore {
	return &CachedStore{
		Store: s,
		cache: c,
		ttl:   ttl,
		log:   log.With().Str("component", "store").Logger(),
	}
}

func historyPrefix(sessionID string) string {
	return "history:" + sessionID + ":"
}

// AppendTurn implements Store.
func (s *CachedStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) (string, error) {
	id, err := s.Store.AppendTurn(ctx, turn)
	if err != nil {
		return "", err
	}
	if derr := s.cache.DeletePrefix(ctx, historyPrefix(turn.SessionID)); derr != nil {
		s.log.Warn().Err(derr).Str("session_id", turn.SessionID).Msg("failed to invalidate history cache")
	}
	return id, nil
}

// History implements Store.
func (s *CachedStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	key := fmt.Sprintf("%s%d", historyPrefix(sessionID), limit)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var turns []domain.ConversationTurn
		if uerr := json.Unmarshal(data, &turns); uerr == nil {
			return turns, nil
		}
		// Unreadable entry, fall through to the store.
	}

	turns, err := s.Store.History(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if data, merr := json.Marshal(turns); merr == nil {
		if serr := s.cache.Set(ctx, key, data, s.ttl); serr != nil {
			s.log.Warn().Err(serr).Str("session_id", sessionID).Msg("failed to cache history")
		}
	}
	return turns, nil
}
