package usecase

import (
	"context"

	"crystallize-agent/internal/domain"
)

// Identity-addressed operations for the transport layer. Each resolves
// the session and delegates to the orchestrators.

func (s *Service) Submit(ctx context.Context, identity, question string) (domain.Turn, error) {
	sess, err := s.Session(ctx, identity)
	if err != nil {
		return domain.Turn{}, err
	}
	return sess.Submit(ctx, question)
}

func (s *Service) Crystallize(ctx context.Context, identity, turnID string) (CrystallizeResult, error) {
	sess, err := s.Session(ctx, identity)
	if err != nil {
		return CrystallizeResult{}, err
	}
	return sess.Crystallize(ctx, turnID)
}

func (s *Service) Turns(ctx context.Context, identity string) ([]domain.Turn, error) {
	sess, err := s.Session(ctx, identity)
	if err != nil {
		return nil, err
	}
	return sess.Turns(), nil
}

func (s *Service) SearchCrystals(ctx context.Context, identity, term string) ([]domain.Crystal, error) {
	sess, err := s.Session(ctx, identity)
	if err != nil {
		return nil, err
	}
	return sess.SearchCrystals(term), nil
}

func (s *Service) DeleteCrystal(ctx context.Context, identity, id string) error {
	sess, err := s.Session(ctx, identity)
	if err != nil {
		return err
	}
	sess.DeleteCrystal(ctx, id)
	return nil
}

func (s *Service) Reset(ctx context.Context, identity string) error {
	sess, err := s.Session(ctx, identity)
	if err != nil {
		return err
	}
	sess.Reset(ctx)
	return nil
}
