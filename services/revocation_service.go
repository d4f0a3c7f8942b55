package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/accord/domain"
	"go.pilab.hu/accord/internal/metrics"
)

// ProjectLister is the narrow slice of the project repository the
// revocation engine needs for pre-expanding domain-level events.
type ProjectLister interface {
	ListProjectsByDomain(ctx context.Context, domainID string) ([]*domain.Project, error)
}

// EventFilter describes one revocation predicate. Empty fields match any
// token. ExpandToProjects requests domain→project pre-expansion: derived
// per-project events are appended alongside the domain event, so a
// domain-level change stemming from an inherited grant also covers
// project-scoped tokens.
type EventFilter struct {
	UserID    string
	ProjectID string
	DomainID  string
	RoleID    string
	TrustID   string

	// IssuedBefore is the revocation cutoff; zero means now.
	IssuedBefore time.Time

	ExpandToProjects bool
}

// RevocationService maintains the append-only revocation event log. It is
// fed by the assignment, registry and trust layers and consulted by token
// validation.
type RevocationService struct {
	events   domain.RevocationEventRepository
	projects ProjectLister
}

// NewRevocationService creates a RevocationService.
func NewRevocationService(events domain.RevocationEventRepository, projects ProjectLister) *RevocationService {
	return &RevocationService{
		events:   events,
		projects: projects,
	}
}

// Emit appends one event, plus derived per-project events when domain
// expansion is requested. Callers emit before applying the mutation that
// triggered the event: a validator may observe an event for a mutation not
// yet applied (harmless), never the reverse.
func (s *RevocationService) Emit(ctx context.Context, f EventFilter) error {
	now := time.Now().UTC()
	cutoff := f.IssuedBefore
	if cutoff.IsZero() {
		cutoff = now
	}

	base := &domain.RevocationEvent{
		ID:           uuid.NewString(),
		UserID:       f.UserID,
		ProjectID:    f.ProjectID,
		DomainID:     f.DomainID,
		RoleID:       f.RoleID,
		TrustID:      f.TrustID,
		IssuedBefore: cutoff,
		EmittedAt:    now,
	}
	if err := s.events.AppendEvent(ctx, base); err != nil {
		return fmt.Errorf("failed to append revocation event: %w", err)
	}
	metrics.RevocationEventsTotal.Inc()

	if !f.ExpandToProjects || f.DomainID == "" {
		return nil
	}

	owned, err := s.projects.ListProjectsByDomain(ctx, f.DomainID)
	if err != nil {
		return fmt.Errorf("failed to expand domain revocation to projects: %w", err)
	}
	for _, p := range owned {
		derived := &domain.RevocationEvent{
			ID:           uuid.NewString(),
			UserID:       f.UserID,
			ProjectID:    p.ID,
			RoleID:       f.RoleID,
			TrustID:      f.TrustID,
			IssuedBefore: cutoff,
			EmittedAt:    now,
		}
		if err := s.events.AppendEvent(ctx, derived); err != nil {
			return fmt.Errorf("failed to append derived revocation event: %w", err)
		}
		metrics.RevocationEventsTotal.Inc()
	}

	log.Debug().
		Str("domain_id", f.DomainID).
		Int("derived_events", len(owned)).
		Msg("expanded domain revocation to owned projects")

	return nil
}

// IsRevoked reports whether any retained event covers the token.
func (s *RevocationService) IsRevoked(ctx context.Context, t *domain.Token) (bool, error) {
	events, err := s.events.ListEvents(ctx, time.Time{})
	if err != nil {
		return false, fmt.Errorf("failed to list revocation events: %w", err)
	}
	for _, e := range events {
		if e.Covers(t) {
			return true, nil
		}
	}
	return false, nil
}

// ListEvents returns events with a cutoff strictly after since, or all
// retained events for a zero since. Change-feed style consumers poll this.
func (s *RevocationService) ListEvents(ctx context.Context, since time.Time) ([]*domain.RevocationEvent, error) {
	return s.events.ListEvents(ctx, since)
}

// Prune drops events older than the cutoff. Once the cutoff exceeds the
// maximum token TTL this cannot change any validation outcome: every token
// such an event could cover has already expired.
func (s *RevocationService) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := s.events.PruneEvents(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune revocation events: %w", err)
	}
	if n > 0 {
		log.Info().Int64("pruned", n).Time("older_than", olderThan).Msg("pruned revocation events")
	}
	return n, nil
}
