package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/internal/metrics"
)

// CreateTrustOptions carries the caller's view of a new trust. Roles may be
// role ids or role names; they are resolved and pinned at creation.
type CreateTrustOptions struct {
	TrustorUserID string
	TrusteeUserID string
	ProjectID     string
	Roles         []string
	ExpiresAt     *time.Time
	Impersonation bool
	RemainingUses *int64
}

// TrustService manages limited-use, optionally-impersonating delegation of
// a subset of one user's roles to another.
type TrustService struct {
	trusts      domain.TrustRepository
	users       domain.UserRepository
	roles       domain.RoleRepository
	assignments *AssignmentService
	tokens      *TokenService
	revocations *RevocationService
	hasher      PasswordHasher
}

// NewTrustService creates a TrustService.
func NewTrustService(
	trusts domain.TrustRepository,
	users domain.UserRepository,
	roles domain.RoleRepository,
	assignments *AssignmentService,
	tokens *TokenService,
	revocations *RevocationService,
	hasher PasswordHasher,
) *TrustService {
	return &TrustService{
		trusts:      trusts,
		users:       users,
		roles:       roles,
		assignments: assignments,
		tokens:      tokens,
		revocations: revocations,
		hasher:      hasher,
	}
}

// CreateTrust pins a snapshot of the requested roles, resolved against the
// trustor's current effective roles on the project. A role that does not
// exist fails ErrRoleNotFound; a role the trustor does not currently hold
// fails ErrForbidden.
func (s *TrustService) CreateTrust(ctx context.Context, opts CreateTrustOptions) (*domain.Trust, error) {
	if opts.RemainingUses != nil && *opts.RemainingUses <= 0 {
		return nil, fmt.Errorf("%w: remaining_uses must be a positive integer", aerrors.ErrValidation)
	}
	if len(opts.Roles) == 0 {
		return nil, fmt.Errorf("%w: a trust requires at least one role", aerrors.ErrValidation)
	}
	if _, err := s.users.GetUserByID(ctx, opts.TrusteeUserID); err != nil {
		return nil, err
	}

	held, err := s.assignments.EffectiveRolesOnProject(ctx, opts.TrustorUserID, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	pinned := make([]string, 0, len(opts.Roles))
	for _, ref := range opts.Roles {
		role, err := s.resolveRole(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(held, role.ID) {
			return nil, fmt.Errorf("%w: trustor does not hold role %q on project", aerrors.ErrForbidden, role.Name)
		}
		if !slices.Contains(pinned, role.ID) {
			pinned = append(pinned, role.ID)
		}
	}

	trust := &domain.Trust{
		ID:            uuid.NewString(),
		TrustorUserID: opts.TrustorUserID,
		TrusteeUserID: opts.TrusteeUserID,
		ProjectID:     opts.ProjectID,
		Roles:         pinned,
		ExpiresAt:     opts.ExpiresAt,
		Impersonation: opts.Impersonation,
		RemainingUses: opts.RemainingUses,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.trusts.CreateTrust(ctx, trust); err != nil {
		return nil, fmt.Errorf("failed to store trust: %w", err)
	}

	log.Info().
		Str("trust_id", trust.ID).
		Str("trustor", trust.TrustorUserID).
		Str("trustee", trust.TrusteeUserID).
		Bool("impersonation", trust.Impersonation).
		Msg("trust created")

	return trust, nil
}

// GetTrust returns the trust, or ErrTrustNotFound when it is absent,
// exhausted or expired. The three states are observationally equivalent.
func (s *TrustService) GetTrust(ctx context.Context, id string) (*domain.Trust, error) {
	t, err := s.trusts.GetTrust(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Available(time.Now().UTC()) {
		return nil, aerrors.ErrTrustNotFound
	}
	return t, nil
}

// ConsumeUse atomically decrements the trust's remaining uses. Unlimited
// trusts always succeed; an exhausted trust behaves as not-found.
func (s *TrustService) ConsumeUse(ctx context.Context, id string) error {
	err := s.trusts.ConsumeTrustUse(ctx, id)
	if err != nil {
		if errors.Is(err, aerrors.ErrTrustConsumed) {
			return aerrors.ErrTrustNotFound
		}
		return err
	}
	metrics.TrustUsesConsumedTotal.Inc()
	return nil
}

// DeleteTrust hard-deletes the trust. The trust-scoped revocation event
// lands before the delete so no validator sees the trust gone but its
// tokens still live.
func (s *TrustService) DeleteTrust(ctx context.Context, id string) error {
	if _, err := s.trusts.GetTrust(ctx, id); err != nil {
		return err
	}
	if err := s.revocations.Emit(ctx, EventFilter{TrustID: id}); err != nil {
		return err
	}
	return s.trusts.DeleteTrust(ctx, id)
}

// ListTrustsByTrustor returns the trusts delegated by the user, including
// exhausted and expired ones; only reads by id hide those.
func (s *TrustService) ListTrustsByTrustor(ctx context.Context, trustorUserID string) ([]*domain.Trust, error) {
	return s.trusts.ListTrustsByTrustor(ctx, trustorUserID)
}

// ListTrustsByTrustee returns the trusts delegated to the user.
func (s *TrustService) ListTrustsByTrustee(ctx context.Context, trusteeUserID string) ([]*domain.Trust, error) {
	return s.trusts.ListTrustsByTrustee(ctx, trusteeUserID)
}

// IssueTokenFromTrust authenticates the trustee, consumes one use, and
// issues a project-scoped token carrying the intersection of the pinned
// role snapshot with the trustor's current effective roles. Roles the
// trustor has lost since creation are silently dropped; losing all of them
// fails ErrForbidden. With impersonation the token carries the trustor's
// identity, otherwise the trustee's.
func (s *TrustService) IssueTokenFromTrust(ctx context.Context, trustID, trusteeUserID, password string) (*domain.Token, error) {
	trust, err := s.GetTrust(ctx, trustID)
	if err != nil {
		return nil, err
	}
	if trust.TrusteeUserID != trusteeUserID {
		return nil, fmt.Errorf("%w: trust is not delegated to this user", aerrors.ErrForbidden)
	}

	trustee, err := s.users.GetUserByID(ctx, trusteeUserID)
	if err != nil {
		return nil, err
	}
	if !trustee.Enabled {
		return nil, aerrors.ErrUnauthorized
	}
	if err := s.hasher.Verify(trustee.PasswordHash, password); err != nil {
		metrics.AuthenticationFailureTotal.Inc()
		return nil, aerrors.ErrUnauthorized
	}

	// The conditional decrement is the linearization point: exactly one of
	// two callers racing the last use gets past here.
	if err := s.ConsumeUse(ctx, trustID); err != nil {
		return nil, err
	}

	current, err := s.assignments.EffectiveRolesOnProject(ctx, trust.TrustorUserID, trust.ProjectID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(trust.Roles))
	for _, r := range trust.Roles {
		if slices.Contains(current, r) {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: trustor no longer holds any delegated role", aerrors.ErrForbidden)
	}

	subject := trust.TrusteeUserID
	if trust.Impersonation {
		subject = trust.TrustorUserID
	}

	token, err := s.tokens.Issue(ctx, &domain.Token{
		UserID:    subject,
		ProjectID: trust.ProjectID,
		TrustID:   trust.ID,
		Roles:     roles,
	})
	if err != nil {
		return nil, err
	}
	metrics.AuthenticationSuccessTotal.Inc()

	return token, nil
}

func (s *TrustService) resolveRole(ctx context.Context, ref string) (*domain.Role, error) {
	role, err := s.roles.GetRoleByID(ctx, ref)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, aerrors.ErrRoleNotFound) {
		return nil, err
	}
	return s.roles.GetRoleByName(ctx, ref)
}
