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

// KnowledgeStore holds the crystallized records for one identity in
// most-recent-first order. The whole collection is persisted as a single
// record on every change; write failures are logged and discarded, the
// in-memory state stays authoritative for the session.
type KnowledgeStore struct {
	records  RecordStore
	identity string

	mu       sync.Mutex
	crystals []domain.Crystal
}

// NewKnowledgeStore creates an empty store bound to one identity.
func NewKnowledgeStore(records RecordStore, identity string) (*KnowledgeStore, error) {
	if records == nil {
		return nil, errors.New("repository: record store must not be nil")
	}
	if strings.TrimSpace(identity) == "" {
		return nil, errors.New("repository: identity must not be empty")
	}
	return &KnowledgeStore{records: records, identity: identity}, nil
}

// Load hydrates the store from its persisted record. A missing record
// leaves the store empty; a corrupt one is logged and treated as missing.
func (s *KnowledgeStore) Load(ctx context.Context) error {
	body, ok, err := s.records.GetRecord(ctx, knowledgeRecordKey(s.identity))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var crystals []domain.Crystal
	if err := json.Unmarshal([]byte(body), &crystals); err != nil {
		slog.Warn("discarding corrupt knowledge record", "identity", s.identity, "err", err)
		return nil
	}

	s.mu.Lock()
	s.crystals = crystals
	s.mu.Unlock()
	return nil
}

// Add prepends a crystal, keeping the newest entry first.
func (s *KnowledgeStore) Add(ctx context.Context, crystal domain.Crystal) {
	s.mu.Lock()
	s.crystals = append([]domain.Crystal{crystal}, s.crystals...)
	s.mu.Unlock()

	s.persist(ctx)
}

// Remove deletes the crystal with the given id. It is a no-op returning
// false if the id is absent.
func (s *KnowledgeStore) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	removed := false
	for i, c := range s.crystals {
		if c.ID == id {
			s.crystals = append(s.crystals[:i], s.crystals[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if !removed {
		return false
	}
	s.persist(ctx)
	return true
}

// Search returns crystals whose title, content, any keyword, or category
// contains the term, case-insensitively, in existing store order. An
// empty term matches everything.
func (s *KnowledgeStore) Search(term string) []domain.Crystal {
	needle := strings.ToLower(term)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Crystal, 0, len(s.crystals))
	for _, c := range s.crystals {
		if crystalMatches(c, needle) {
			out = append(out, c)
		}
	}
	return out
}

// All returns a copy of the collection, newest first.
func (s *KnowledgeStore) All() []domain.Crystal {
	return s.Search("")
}

// Len reports the number of stored crystals.
func (s *KnowledgeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.crystals)
}

// Clear empties the collection and removes the persisted record entirely,
// so a later load for this identity is indistinguishable from first use.
func (s *KnowledgeStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.crystals = nil
	s.mu.Unlock()

	if err := s.records.DeleteRecord(ctx, knowledgeRecordKey(s.identity)); err != nil {
		slog.Warn("failed to delete knowledge record", "identity", s.identity, "err", err)
	}
}

func crystalMatches(c domain.Crystal, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Title), needle) ||
		strings.Contains(strings.ToLower(c.Content), needle) ||
		strings.Contains(strings.ToLower(c.Category), needle) {
		return true
	}
	for _, kw := range c.Keywords {
		if strings.Contains(strings.ToLower(kw), needle) {
			return true
		}
	}
	return false
}

func (s *KnowledgeStore) persist(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]domain.Crystal, len(s.crystals))
	copy(snapshot, s.crystals)
	s.mu.Unlock()

	body, err := json.Marshal(snapshot)
	if err != nil {
		slog.Warn("failed to encode knowledge record", "identity", s.identity, "err", err)
		return
	}
	if err := s.records.PutRecord(ctx, knowledgeRecordKey(s.identity), string(body)); err != nil {
		slog.Warn("failed to persist knowledge record", "identity", s.identity, "err", err)
	}
}
