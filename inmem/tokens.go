package inmem

import (
	"context"
	"time"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

func (s *Store) StoreToken(_ context.Context, storageID string, t *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[storageID] = cloneToken(t)
	return nil
}

func (s *Store) GetToken(_ context.Context, storageID string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[storageID]
	if !ok {
		return nil, aerrors.ErrTokenNotFound
	}
	return cloneToken(t), nil
}

func (s *Store) DeleteToken(_ context.Context, storageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[storageID]; !ok {
		return aerrors.ErrTokenNotFound
	}
	delete(s.tokens, storageID)
	return nil
}

func (s *Store) DeleteTokens(_ context.Context, userID, projectID, trustID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, t := range s.tokens {
		if t.UserID != userID {
			continue
		}
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		if trustID != "" && t.TrustID != trustID {
			continue
		}
		delete(s.tokens, key)
		n++
	}
	return n, nil
}

func (s *Store) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, t := range s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(s.tokens, key)
			n++
		}
	}
	return n, nil
}
