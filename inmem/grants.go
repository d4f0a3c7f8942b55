package inmem

import (
	"context"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

func (s *Store) CreateGrant(_ context.Context, g *domain.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := g.Key()
	if _, ok := s.grants[key]; ok {
		return aerrors.ErrConflict
	}
	s.grants[key] = cloneGrant(g)
	return nil
}

func (s *Store) DeleteGrant(_ context.Context, actor domain.Actor, target domain.Target, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.GrantKey(actor, target, roleID)
	if _, ok := s.grants[key]; !ok {
		return aerrors.ErrGrantNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *Store) ListGrantsByActorTarget(_ context.Context, actor domain.Actor, target domain.Target) ([]*domain.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Grant
	for _, g := range s.grants {
		if g.Actor == actor && g.Target == target {
			out = append(out, cloneGrant(g))
		}
	}
	return out, nil
}

func (s *Store) ListGrantsByActor(_ context.Context, actor domain.Actor) ([]*domain.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Grant
	for _, g := range s.grants {
		if g.Actor == actor {
			out = append(out, cloneGrant(g))
		}
	}
	return out, nil
}

func (s *Store) ListGrantsByRole(_ context.Context, roleID string) ([]*domain.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Grant
	for _, g := range s.grants {
		if g.RoleID == roleID {
			out = append(out, cloneGrant(g))
		}
	}
	return out, nil
}

func (s *Store) ListGrantsByTarget(_ context.Context, target domain.Target) ([]*domain.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Grant
	for _, g := range s.grants {
		if g.Target == target {
			out = append(out, cloneGrant(g))
		}
	}
	return out, nil
}

// DeleteGrantsByRole removes every grant of the role in one critical
// section: readers see either all occurrences or none.
func (s *Store) DeleteGrantsByRole(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, g := range s.grants {
		if g.RoleID == roleID {
			delete(s.grants, key)
		}
	}
	return nil
}

func (s *Store) DeleteGrantsByActor(_ context.Context, actor domain.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, g := range s.grants {
		if g.Actor == actor {
			delete(s.grants, key)
		}
	}
	return nil
}

func (s *Store) DeleteGrantsByTarget(_ context.Context, target domain.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, g := range s.grants {
		if g.Target == target {
			delete(s.grants, key)
		}
	}
	return nil
}
