package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"crystallize-agent/internal/domain"
)

// retentionWindow caps the persisted conversation to the most recent
// turns; the oldest are discarded first on every write.
const retentionWindow = 50

// ConversationStore holds the ordered turn log for one identity. Turns
// are kept in an insertion-ordered map keyed by id, so mutating a turn by
// id is O(1) and never changes its position. Every change triggers a
// best-effort write of the most recent 50 turns; write failures are
// logged and discarded because conversation persistence is a convenience,
// not a correctness requirement.
type ConversationStore struct {
	records  RecordStore
	identity string

	mu    sync.Mutex
	order []string
	turns map[string]*domain.Turn
}

// NewConversationStore creates an empty store bound to one identity.
func NewConversationStore(records RecordStore, identity string) (*ConversationStore, error) {
	if records == nil {
		return nil, errors.New("repository: record store must not be nil")
	}
	if strings.TrimSpace(identity) == "" {
		return nil, errors.New("repository: identity must not be empty")
	}
	return &ConversationStore{
		records:  records,
		identity: identity,
		turns:    make(map[string]*domain.Turn),
	}, nil
}

// Load hydrates the store from its persisted record. A missing record
// leaves the store empty. A corrupt record is logged and treated as
// missing rather than failing the session.
func (s *ConversationStore) Load(ctx context.Context) error {
	body, ok, err := s.records.GetRecord(ctx, chatRecordKey(s.identity))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var turns []domain.Turn
	if err := json.Unmarshal([]byte(body), &turns); err != nil {
		slog.Warn("discarding corrupt conversation record", "identity", s.identity, "err", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(turns)
	return nil
}

// Append adds a turn at the end of the log and persists.
func (s *ConversationStore) Append(ctx context.Context, turn domain.Turn) {
	s.mu.Lock()
	if _, exists := s.turns[turn.ID]; !exists {
		s.order = append(s.order, turn.ID)
	}
	t := turn
	s.turns[turn.ID] = &t
	s.mu.Unlock()

	s.persist(ctx)
}

// Mutate applies fn to the turn with the given id and persists. It is a
// no-op returning false if the id is absent; mutation races after a clear
// are expected and must not fail.
func (s *ConversationStore) Mutate(ctx context.Context, id string, fn func(*domain.Turn)) bool {
	s.mu.Lock()
	t, ok := s.turns[id]
	if ok {
		fn(t)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.persist(ctx)
	return true
}

// ReplaceAll swaps the entire log, used on identity switch or reset.
func (s *ConversationStore) ReplaceAll(ctx context.Context, turns []domain.Turn) {
	s.mu.Lock()
	s.reset(turns)
	s.mu.Unlock()

	s.persist(ctx)
}

// Clear empties the log and removes the persisted record entirely.
func (s *ConversationStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.reset(nil)
	s.mu.Unlock()

	if err := s.records.DeleteRecord(ctx, chatRecordKey(s.identity)); err != nil {
		slog.Warn("failed to delete conversation record", "identity", s.identity, "err", err)
	}
}

// Turns returns a copy of the log in insertion order.
func (s *ConversationStore) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.turns[id])
	}
	return out
}

// Get returns the turn with the given id, if present.
func (s *ConversationStore) Get(id string) (domain.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[id]
	if !ok {
		return domain.Turn{}, false
	}
	return *t, true
}

// Preceding returns the turn immediately before the one with the given
// id in insertion order, if both exist.
func (s *ConversationStore) Preceding(id string) (domain.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, candidate := range s.order {
		if candidate == id {
			if i == 0 {
				return domain.Turn{}, false
			}
			return *s.turns[s.order[i-1]], true
		}
	}
	return domain.Turn{}, false
}

// Len reports the number of turns currently held.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// reset replaces the in-memory state. Caller holds the lock.
func (s *ConversationStore) reset(turns []domain.Turn) {
	s.order = s.order[:0]
	s.turns = make(map[string]*domain.Turn, len(turns))
	for i := range turns {
		t := turns[i]
		if _, exists := s.turns[t.ID]; exists {
			continue
		}
		s.order = append(s.order, t.ID)
		s.turns[t.ID] = &t
	}
}

// persist writes the most recent turns within the retention window,
// oldest first. Failures never reach the caller.
func (s *ConversationStore) persist(ctx context.Context) {
	s.mu.Lock()
	ids := s.order
	if len(ids) > retentionWindow {
		ids = ids[len(ids)-retentionWindow:]
	}
	window := make([]domain.Turn, 0, len(ids))
	for _, id := range ids {
		window = append(window, *s.turns[id])
	}
	s.mu.Unlock()

	body, err := json.Marshal(window)
	if err != nil {
		slog.Warn("failed to encode conversation record", "identity", s.identity, "err", err)
		return
	}
	if err := s.records.PutRecord(ctx, chatRecordKey(s.identity), string(body)); err != nil {
		slog.Warn("failed to persist conversation record", "identity", s.identity, "err", err)
	}
}
