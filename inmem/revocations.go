package inmem

import (
	"context"
	"time"

	"go.pilab.hu/accord/domain"
)

func (s *Store) AppendEvent(_ context.Context, e *domain.RevocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, cloneEvent(e))
	return nil
}

func (s *Store) ListEvents(_ context.Context, since time.Time) ([]*domain.RevocationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RevocationEvent
	for _, e := range s.events {
		if e.IssuedBefore.After(since) {
			out = append(out, cloneEvent(e))
		}
	}
	return out, nil
}

func (s *Store) PruneEvents(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var n int64
	for _, e := range s.events {
		if e.IssuedBefore.Before(olderThan) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return n, nil
}
