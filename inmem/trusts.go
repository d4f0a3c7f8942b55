package inmem

import (
	"context"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

func (s *Store) CreateTrust(_ context.Context, t *domain.Trust) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trusts[t.ID]; ok {
		return aerrors.ErrConflict
	}
	s.trusts[t.ID] = cloneTrust(t)
	return nil
}

func (s *Store) GetTrust(_ context.Context, id string) (*domain.Trust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trusts[id]
	if !ok {
		return nil, aerrors.ErrTrustNotFound
	}
	return cloneTrust(t), nil
}

func (s *Store) DeleteTrust(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trusts[id]; !ok {
		return aerrors.ErrTrustNotFound
	}
	delete(s.trusts, id)
	return nil
}

func (s *Store) ListTrustsByTrustor(_ context.Context, trustorUserID string) ([]*domain.Trust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trust
	for _, t := range s.trusts {
		if t.TrustorUserID == trustorUserID {
			out = append(out, cloneTrust(t))
		}
	}
	return out, nil
}

func (s *Store) ListTrustsByTrustee(_ context.Context, trusteeUserID string) ([]*domain.Trust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trust
	for _, t := range s.trusts {
		if t.TrusteeUserID == trusteeUserID {
			out = append(out, cloneTrust(t))
		}
	}
	return out, nil
}

// ConsumeTrustUse performs the check and the decrement inside one critical
// section, the in-process equivalent of a storage-level conditional update.
// Two callers racing the last use cannot both observe a positive count.
func (s *Store) ConsumeTrustUse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trusts[id]
	if !ok {
		return aerrors.ErrTrustNotFound
	}
	if t.RemainingUses == nil {
		return nil // unlimited
	}
	if *t.RemainingUses <= 0 {
		return aerrors.ErrTrustConsumed
	}
	*t.RemainingUses--
	return nil
}
