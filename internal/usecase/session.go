package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"crystallize-agent/internal/domain"
	"crystallize-agent/internal/repository"
)

// Literal user-facing phrases. The answer failure is swallowed at the
// Submit boundary and converted to an error turn so a failed lookup never
// corrupts conversation state or blocks further input.
const (
	fallbackAnswerText  = "I couldn't find anything on that, sorry."
	errorAnswerText     = "I encountered an error accessing the knowledge stream. Please check your connection."
	defaultContextLabel = "General Knowledge"
)

// ViewKnowledge is the view-switch signal returned by a successful
// crystallization.
const ViewKnowledge = "knowledge"

// Session is one identity's live state: the conversation turn log, the
// knowledge store, and the in-flight guards of the two orchestrators.
type Session struct {
	identity     string
	llm          LLMClient
	model        string
	conversation *repository.ConversationStore
	knowledge    *repository.KnowledgeStore

	mu            sync.Mutex
	awaiting      bool
	crystallizing map[string]bool
}

func newSession(identity string, llm LLMClient, model string, conversation *repository.ConversationStore, knowledge *repository.KnowledgeStore) *Session {
	return &Session{
		identity:      identity,
		llm:           llm,
		model:         model,
		conversation:  conversation,
		knowledge:     knowledge,
		crystallizing: make(map[string]bool),
	}
}

// Submit runs one question/answer exchange. It appends the completed user
// turn and a pending assistant placeholder, invokes the answer model, and
// completes the placeholder in place, keyed by turn id so the result
// lands on the right turn no matter what the caller did in the meantime.
// Only one exchange may be in flight at a time; a second submission while
// one is awaiting its response is rejected without touching the store.
func (s *Session) Submit(ctx context.Context, text string) (domain.Turn, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return domain.Turn{}, newError(ErrorValidation, "empty_question", nil)
	}

	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		return domain.Turn{}, newError(ErrorValidation, "request_in_flight", nil)
	}
	s.awaiting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.awaiting = false
		s.mu.Unlock()
	}()

	// History is captured before this submission; pending turns never
	// reach the model.
	history := chatHistory(s.conversation.Turns())

	s.conversation.Append(ctx, domain.Turn{
		ID:        newUUID(),
		Speaker:   domain.SpeakerUser,
		Text:      question,
		CreatedAt: nowMillis(),
	})

	placeholderID := newUUID()
	s.conversation.Append(ctx, domain.Turn{
		ID:        placeholderID,
		Speaker:   domain.SpeakerAssistant,
		CreatedAt: nowMillis(),
		Pending:   true,
	})

	answer, citations, err := s.llm.AnswerQuery(ctx, s.model, question, history, s.identity)
	if err != nil {
		slog.Warn("answer query failed", "identity", s.identity, "err", err)
		s.conversation.Mutate(ctx, placeholderID, func(t *domain.Turn) {
			t.Text = errorAnswerText
			t.Pending = false
		})
	} else {
		if strings.TrimSpace(answer) == "" {
			answer = fallbackAnswerText
		}
		s.conversation.Mutate(ctx, placeholderID, func(t *domain.Turn) {
			t.Text = answer
			t.Citations = citations
			t.Pending = false
		})
	}

	turn, ok := s.conversation.Get(placeholderID)
	if !ok {
		// The conversation was cleared while the call was in flight; the
		// mutation above was already a no-op.
		return domain.Turn{}, newError(ErrorNotFound, "turn_cleared", nil)
	}
	return turn, nil
}

// CrystallizeResult is a successful crystallization plus the view-switch
// signal for the caller.
type CrystallizeResult struct {
	Crystal domain.Crystal
	View    string
}

// Crystallize distills the text of an assistant turn into a persisted
// knowledge record. A second request for the same turn while one is in
// flight is rejected; the in-progress marker is cleared on every path so
// a failed attempt can always be retried.
func (s *Session) Crystallize(ctx context.Context, turnID string) (CrystallizeResult, error) {
	turnID = strings.TrimSpace(turnID)
	if turnID == "" {
		return CrystallizeResult{}, newError(ErrorValidation, "missing_turn_id", nil)
	}

	s.mu.Lock()
	if s.crystallizing[turnID] {
		s.mu.Unlock()
		return CrystallizeResult{}, newError(ErrorValidation, "crystallize_in_flight", nil)
	}
	s.crystallizing[turnID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.crystallizing, turnID)
		s.mu.Unlock()
	}()

	turn, ok := s.conversation.Get(turnID)
	if !ok {
		return CrystallizeResult{}, newError(ErrorNotFound, "turn_not_found", nil)
	}
	if turn.Speaker != domain.SpeakerAssistant || turn.Pending {
		return CrystallizeResult{}, newError(ErrorValidation, "turn_not_crystallizable", nil)
	}

	// Context is the preceding user question when the conversation
	// alternates strictly; anything else falls back to the default label.
	contextLabel := defaultContextLabel
	if prev, ok := s.conversation.Preceding(turnID); ok && prev.Speaker == domain.SpeakerUser {
		contextLabel = prev.Text
	}

	raw, err := s.llm.ExtractKnowledge(ctx, s.model, turn.Text, contextLabel)
	if err != nil {
		return CrystallizeResult{}, newError(ErrorExtraction, "extraction_call_error", err)
	}

	extraction, err := parseExtraction(raw)
	if err != nil {
		return CrystallizeResult{}, newError(ErrorExtraction, "extraction_invalid_payload", err)
	}

	crystal := domain.Crystal{
		ID:        newUUID(),
		Title:     extraction.Title,
		Content:   extraction.Summary,
		Keywords:  extraction.Keywords,
		Category:  extraction.Category,
		CreatedAt: nowMillis(),
	}
	if len(turn.Citations) > 0 {
		crystal.SourceURL = turn.Citations[0].URI
	}

	s.knowledge.Add(ctx, crystal)
	return CrystallizeResult{Crystal: crystal, View: ViewKnowledge}, nil
}

// Turns returns the conversation in insertion order.
func (s *Session) Turns() []domain.Turn {
	return s.conversation.Turns()
}

// SearchCrystals returns the matching knowledge records in store order.
func (s *Session) SearchCrystals(term string) []domain.Crystal {
	return s.knowledge.Search(term)
}

// DeleteCrystal removes one knowledge record; deleting an absent id is a
// no-op.
func (s *Session) DeleteCrystal(ctx context.Context, id string) bool {
	return s.knowledge.Remove(ctx, id)
}

// Reset clears both stores, removes their persisted records, and
// re-seeds the welcome turn. An answer completion racing the reset
// becomes a no-op because its turn id is gone.
func (s *Session) Reset(ctx context.Context) {
	s.conversation.Clear(ctx)
	s.knowledge.Clear(ctx)
	s.seedWelcome(ctx)
}

func (s *Session) seedWelcome(ctx context.Context) {
	s.conversation.Append(ctx, domain.Turn{
		ID:        newUUID(),
		Speaker:   domain.SpeakerAssistant,
		Text:      welcomeText(s.identity),
		CreatedAt: nowMillis(),
	})
}

func welcomeText(identity string) string {
	return fmt.Sprintf("Hello **%s**! I am **Crystallize AI**. \n\nI can research the web for you and help you build a personal knowledge base. Ask me anything!", identity)
}

// chatHistory converts completed turns to provider-agnostic chat
// messages, excluding pending placeholders.
func chatHistory(turns []domain.Turn) []domain.ChatMessage {
	history := make([]domain.ChatMessage, 0, len(turns))
	for _, t := range turns {
		if t.Pending {
			continue
		}
		history = append(history, domain.ChatMessage{Speaker: t.Speaker, Text: t.Text})
	}
	return history
}
