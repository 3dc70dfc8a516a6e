package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crystallize-agent/internal/domain"
	"crystallize-agent/internal/repository"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LLMClient is the remote generative capability behind both orchestrators.
type LLMClient interface {
	AnswerQuery(ctx context.Context, model, query string, history []domain.ChatMessage, userLabel string) (string, []domain.Citation, error)
	ExtractKnowledge(ctx context.Context, model, sourceText, contextLabel string) (string, error)
}

// Service owns the per-identity sessions. A session is hydrated from the
// repository on first use and cached for the process lifetime; switching
// identity switches the session handle, so a completion that is still in
// flight can only ever mutate the conversation it started in.
type Service struct {
	params      ParamGetter
	llm         LLMClient
	records     repository.RecordStore
	paramPrefix string

	cacheMu     sync.RWMutex
	cacheLoaded bool
	model       string

	sessMu   sync.Mutex
	sessions map[string]*Session
}

func NewService(p ParamGetter, llm LLMClient, records repository.RecordStore, paramPrefix string) (*Service, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if records == nil {
		return nil, errors.New("usecase: record store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &Service{
		params:      p,
		llm:         llm,
		records:     records,
		paramPrefix: paramPrefix,
		sessions:    make(map[string]*Session),
	}, nil
}

// Session returns the session for an identity, hydrating it from the
// persisted records on first use. An empty conversation is seeded with
// the welcome turn.
func (s *Service) Session(ctx context.Context, identity string) (*Session, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, newError(ErrorValidation, "missing_identity", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return nil, newError(ErrorInternal, "ssm_load_error", err)
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if sess, ok := s.sessions[identity]; ok {
		return sess, nil
	}

	conversation, err := repository.NewConversationStore(s.records, identity)
	if err != nil {
		return nil, newError(ErrorInternal, "store_init_error", err)
	}
	knowledge, err := repository.NewKnowledgeStore(s.records, identity)
	if err != nil {
		return nil, newError(ErrorInternal, "store_init_error", err)
	}
	if err := conversation.Load(ctx); err != nil {
		return nil, newError(ErrorInternal, "conversation_load_error", err)
	}
	if err := knowledge.Load(ctx); err != nil {
		return nil, newError(ErrorInternal, "knowledge_load_error", err)
	}

	sess := newSession(identity, s.llm, s.modelName(), conversation, knowledge)
	if conversation.Len() == 0 {
		sess.seedWelcome(ctx)
	}
	s.sessions[identity] = sess
	return sess, nil
}

func (s *Service) modelName() string {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.model
}

// ensureConfig loads the model name from SSM once per process; a failed
// load is retried on the next request.
func (s *Service) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	model, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/gemini_model")
	if err != nil {
		return err
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("usecase: configured model name is empty")
	}

	s.model = model
	s.cacheLoaded = true
	return nil
}

var newUUID = func() string {
	return uuid.NewString()
}

var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}
