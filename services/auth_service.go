package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/internal/metrics"
)

// AuthRequest identifies a user either by id or by (domain, name), carries
// the presented secret, and optionally requests a project or domain scope.
type AuthRequest struct {
	UserID   string
	DomainID string
	UserName string
	Password string

	// ScopeProjectID and ScopeDomainID are mutually exclusive; both empty
	// yields an unscoped token.
	ScopeProjectID string
	ScopeDomainID  string
}

// AuthService authenticates users and issues their tokens. Scoped tokens
// snapshot the user's effective roles on the scope at issuance.
type AuthService struct {
	users       domain.UserRepository
	domains     domain.DomainRepository
	projects    domain.ProjectRepository
	assignments *AssignmentService
	tokens      *TokenService
	revocations *RevocationService
	hasher      PasswordHasher
	signer      *TokenSigner // nil means plain uuid token ids
}

// NewAuthService creates an AuthService. Pass a nil signer for uuid token
// ids; a signer switches issuance to signed structured ids.
func NewAuthService(
	users domain.UserRepository,
	domains domain.DomainRepository,
	projects domain.ProjectRepository,
	assignments *AssignmentService,
	tokens *TokenService,
	revocations *RevocationService,
	hasher PasswordHasher,
	signer *TokenSigner,
) *AuthService {
	return &AuthService{
		users:       users,
		domains:     domains,
		projects:    projects,
		assignments: assignments,
		tokens:      tokens,
		revocations: revocations,
		hasher:      hasher,
		signer:      signer,
	}
}

// Authenticate verifies the presented credentials and issues a token.
// Credential mismatch and disabled accounts surface as ErrUnauthorized; a
// scoped request with no effective roles on the scope fails ErrForbidden.
func (s *AuthService) Authenticate(ctx context.Context, req AuthRequest) (*domain.Token, error) {
	if req.ScopeProjectID != "" && req.ScopeDomainID != "" {
		return nil, fmt.Errorf("%w: project and domain scopes are mutually exclusive", aerrors.ErrValidation)
	}

	user, err := s.lookupUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		metrics.AuthenticationFailureTotal.Inc()
		return nil, aerrors.ErrUnauthorized
	}
	if _, err := s.domains.GetDomainByID(ctx, user.DomainID); err != nil {
		metrics.AuthenticationFailureTotal.Inc()
		return nil, aerrors.ErrUnauthorized
	}
	if err := s.hasher.Verify(user.PasswordHash, req.Password); err != nil {
		metrics.AuthenticationFailureTotal.Inc()
		log.Debug().Str("user_id", user.ID).Msg("authentication failed: bad credentials")
		return nil, aerrors.ErrUnauthorized
	}

	token := &domain.Token{UserID: user.ID}

	switch {
	case req.ScopeProjectID != "":
		project, err := s.projects.GetProjectByID(ctx, req.ScopeProjectID)
		if err != nil {
			return nil, err
		}
		if !project.Enabled {
			return nil, fmt.Errorf("%w: project is disabled", aerrors.ErrForbidden)
		}
		roles, err := s.assignments.EffectiveRolesOnProject(ctx, user.ID, project.ID)
		if err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("%w: user has no role on the requested project", aerrors.ErrForbidden)
		}
		token.ProjectID = project.ID
		token.Roles = roles

	case req.ScopeDomainID != "":
		dom, err := s.domains.GetDomainByID(ctx, req.ScopeDomainID)
		if err != nil {
			return nil, err
		}
		if !dom.Enabled {
			return nil, fmt.Errorf("%w: domain is disabled", aerrors.ErrForbidden)
		}
		roles, err := s.assignments.EffectiveRolesOnDomain(ctx, user.ID, dom.ID)
		if err != nil {
			return nil, err
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("%w: user has no role on the requested domain", aerrors.ErrForbidden)
		}
		token.DomainID = dom.ID
		token.Roles = roles
	}

	if s.signer != nil {
		// Populate timing first so the signed id carries the real expiry.
		token.IssuedAt = time.Now().UTC()
		token.ExpiresAt = token.IssuedAt.Add(s.tokens.defaultTTL)
		id, err := s.signer.MintTokenID(token)
		if err != nil {
			return nil, err
		}
		token.ID = id
	}

	issued, err := s.tokens.Issue(ctx, token)
	if err != nil {
		return nil, err
	}
	metrics.AuthenticationSuccessTotal.Inc()

	return issued, nil
}

// ChangePassword verifies the old secret, swaps the hash, and emits a
// user-scoped revocation event so previously issued tokens die with the
// old credential.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(user.PasswordHash, oldPassword); err != nil {
		metrics.AuthenticationFailureTotal.Inc()
		return aerrors.ErrUnauthorized
	}
	if newPassword == "" {
		return fmt.Errorf("%w: new password must not be empty", aerrors.ErrValidation)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	// Event before mutation, as everywhere else.
	if err := s.revocations.Emit(ctx, EventFilter{UserID: user.ID}); err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user credentials: %w", err)
	}

	log.Info().Str("user_id", user.ID).Msg("password changed, prior tokens revoked")
	return nil
}

func (s *AuthService) lookupUser(ctx context.Context, req AuthRequest) (*domain.User, error) {
	if req.UserID != "" {
		return s.users.GetUserByID(ctx, req.UserID)
	}
	if req.UserName == "" {
		return nil, fmt.Errorf("%w: user id or (domain, name) required", aerrors.ErrValidation)
	}
	domainID := req.DomainID
	if domainID == "" {
		domainID = domain.DefaultDomainID
	}
	return s.users.GetUserByName(ctx, domainID, req.UserName)
}
