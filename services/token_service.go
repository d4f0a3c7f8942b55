package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/internal/metrics"
)

// TokenService owns the token lifecycle: issuance, lazy-expiry reads,
// deletion, validation against the revocation log, and storage reclamation.
type TokenService struct {
	repo        domain.TokenRepository
	revocations *RevocationService
	defaultTTL  time.Duration
}

// NewTokenService creates a TokenService. defaultTTL applies when a token
// is issued without an explicit expiry.
func NewTokenService(repo domain.TokenRepository, revocations *RevocationService, defaultTTL time.Duration) *TokenService {
	return &TokenService{
		repo:        repo,
		revocations: revocations,
		defaultTTL:  defaultTTL,
	}
}

// Issue persists a token. A missing id gets a fresh uuid; a missing expiry
// gets issued_at plus the default TTL. Ids above the hash threshold are
// stored under their content hash while the returned token keeps the
// un-hashed id.
func (s *TokenService) Issue(ctx context.Context, t *domain.Token) (*domain.Token, error) {
	if t.UserID == "" {
		return nil, fmt.Errorf("%w: token requires a user id", aerrors.ErrValidation)
	}
	if t.ProjectID != "" && t.DomainID != "" {
		return nil, fmt.Errorf("%w: project and domain scopes are mutually exclusive", aerrors.ErrValidation)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.IssuedAt.IsZero() {
		t.IssuedAt = time.Now().UTC()
	}
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = t.IssuedAt.Add(s.defaultTTL)
	}

	if err := s.repo.StoreToken(ctx, domain.TokenStorageID(t.ID), t); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	metrics.TokensIssuedTotal.Inc()

	return t, nil
}

// GetToken returns the token, or ErrTokenNotFound if it is absent or past
// its expiry. Expiry is enforced here at read time, not only by the
// background sweep.
func (s *TokenService) GetToken(ctx context.Context, id string) (*domain.Token, error) {
	t, err := s.repo.GetToken(ctx, domain.TokenStorageID(id))
	if err != nil {
		return nil, err
	}
	if t.Expired(time.Now().UTC()) {
		return nil, aerrors.ErrTokenNotFound
	}
	return t, nil
}

// DeleteToken removes a single token; ErrTokenNotFound if the id does not
// resolve to a stored record.
func (s *TokenService) DeleteToken(ctx context.Context, id string) error {
	return s.repo.DeleteToken(ctx, domain.TokenStorageID(id))
}

// DeleteTokens removes every token of the user, optionally narrowed by
// project and trust. An empty match is a no-op, not an error.
func (s *TokenService) DeleteTokens(ctx context.Context, userID, projectID, trustID string) (int64, error) {
	n, err := s.repo.DeleteTokens(ctx, userID, projectID, trustID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens: %w", err)
	}
	return n, nil
}

// FlushExpiredTokens bulk-purges expired rows. Storage reclamation only:
// expired tokens are already invisible to GetToken.
func (s *TokenService) FlushExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to flush expired tokens: %w", err)
	}
	if n > 0 {
		log.Debug().Int64("flushed", n).Msg("flushed expired tokens")
	}
	return n, nil
}

// ValidateToken returns the token when it is live: present, unexpired, not
// covered by a revocation event, and scoped to belongsTo when given.
// Every rejection surfaces as ErrTokenNotFound; callers cannot distinguish
// expired from deleted from revoked.
func (s *TokenService) ValidateToken(ctx context.Context, id string, belongsTo string) (*domain.Token, error) {
	t, err := s.GetToken(ctx, id)
	if err != nil {
		metrics.TokensRejectedTotal.Inc()
		return nil, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, t)
	if err != nil {
		return nil, err
	}
	if revoked {
		metrics.TokensRejectedTotal.Inc()
		return nil, aerrors.ErrTokenNotFound
	}

	if belongsTo != "" && t.ProjectID != belongsTo {
		metrics.TokensRejectedTotal.Inc()
		return nil, aerrors.ErrTokenNotFound
	}

	metrics.TokensValidatedTotal.Inc()
	return t, nil
}

// ListRevocationEvents is the incremental change-feed view of the
// revocation log.
func (s *TokenService) ListRevocationEvents(ctx context.Context, since time.Time) ([]*domain.RevocationEvent, error) {
	return s.revocations.ListEvents(ctx, since)
}

// ListRevoked is the legacy bulk view: the full retained revocation log.
// Both views derive from the same underlying event store.
func (s *TokenService) ListRevoked(ctx context.Context) ([]*domain.RevocationEvent, error) {
	return s.revocations.ListEvents(ctx, time.Time{})
}

// IsNotFound reports whether the error is a token-not-found, for callers
// that need to distinguish it from infrastructure failures.
func IsNotFound(err error) bool {
	return errors.Is(err, aerrors.ErrTokenNotFound)
}
