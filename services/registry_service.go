package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/accord/cache"
	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

// DomainUpdate is a partial update; nil fields are left untouched.
type DomainUpdate struct {
	Name    *string
	Enabled *bool
}

// ProjectUpdate is a partial update. Extra is merged verbatim over the
// stored attributes. A non-nil DomainID moves the project across domains,
// subject to (domain, name) uniqueness.
type ProjectUpdate struct {
	Name     *string
	DomainID *string
	Enabled  *bool
	Extra    map[string]any
}

// UserUpdate is a partial update. Extra is merged verbatim.
type UserUpdate struct {
	Name    *string
	Enabled *bool
	Extra   map[string]any
}

// RegistryService owns entity CRUD on top of the repositories, the
// read-through entity cache, and the cascades structural changes trigger:
// grant cleanup, token purges and revocation events. Every mutation
// invalidates the affected cache keys before returning.
type RegistryService struct {
	domains  domain.DomainRepository
	projects domain.ProjectRepository
	users    domain.UserRepository
	groups   domain.GroupRepository
	roles    domain.RoleRepository

	assignments *AssignmentService
	tokens      *TokenService
	revocations *RevocationService

	cache    cache.EntityCache
	cacheTTL time.Duration
	hasher   PasswordHasher
}

// NewRegistryService creates a RegistryService.
func NewRegistryService(
	domains domain.DomainRepository,
	projects domain.ProjectRepository,
	users domain.UserRepository,
	groups domain.GroupRepository,
	roles domain.RoleRepository,
	assignments *AssignmentService,
	tokens *TokenService,
	revocations *RevocationService,
	entityCache cache.EntityCache,
	cacheTTL time.Duration,
	hasher PasswordHasher,
) *RegistryService {
	return &RegistryService{
		domains:     domains,
		projects:    projects,
		users:       users,
		groups:      groups,
		roles:       roles,
		assignments: assignments,
		tokens:      tokens,
		revocations: revocations,
		cache:       entityCache,
		cacheTTL:    cacheTTL,
		hasher:      hasher,
	}
}

// --- Domains ---

// CreateDomain creates a domain. Names are unique among domains,
// case-insensitively.
func (s *RegistryService) CreateDomain(ctx context.Context, name string, enabled bool) (*domain.Domain, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: domain name must not be empty", aerrors.ErrValidation)
	}
	now := time.Now().UTC()
	d := &domain.Domain{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.domains.CreateDomain(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDomain returns a domain by id, read-through cached.
func (s *RegistryService) GetDomain(ctx context.Context, id string) (*domain.Domain, error) {
	var d domain.Domain
	if cacheHit(ctx, s.cache, cache.DomainKey(id), &d) {
		return &d, nil
	}
	fetched, err := s.domains.GetDomainByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cacheFill(ctx, s.cache, cache.DomainKey(id), fetched, s.cacheTTL)
	return fetched, nil
}

// GetDomainByName returns a domain by name, read-through cached.
func (s *RegistryService) GetDomainByName(ctx context.Context, name string) (*domain.Domain, error) {
	var d domain.Domain
	if cacheHit(ctx, s.cache, cache.DomainNameKey(name), &d) {
		return &d, nil
	}
	fetched, err := s.domains.GetDomainByName(ctx, name)
	if err != nil {
		return nil, err
	}
	cacheFill(ctx, s.cache, cache.DomainNameKey(name), fetched, s.cacheTTL)
	return fetched, nil
}

// UpdateDomain applies a partial update. Disabling a domain emits a
// revocation event expanded over its projects, so outstanding tokens in
// the domain's scope die immediately.
func (s *RegistryService) UpdateDomain(ctx context.Context, id string, upd DomainUpdate) (*domain.Domain, error) {
	d, err := s.domains.GetDomainByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := d.Name
	disabling := upd.Enabled != nil && !*upd.Enabled && d.Enabled

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, fmt.Errorf("%w: domain name must not be empty", aerrors.ErrValidation)
		}
		d.Name = *upd.Name
	}
	if upd.Enabled != nil {
		d.Enabled = *upd.Enabled
	}
	d.UpdatedAt = time.Now().UTC()

	if disabling {
		if err := s.revocations.Emit(ctx, EventFilter{DomainID: id, ExpandToProjects: true}); err != nil {
			return nil, err
		}
	}
	if err := s.domains.UpdateDomain(ctx, d); err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.DomainKey(id), cache.DomainNameKey(oldName), cache.DomainNameKey(d.Name))
	return d, nil
}

// DeleteDomain removes a disabled, non-default domain and cascades grant
// deletion for the domain target. Children are not physically purged; the
// resolution layer treats them as inaccessible once the domain is gone.
func (s *RegistryService) DeleteDomain(ctx context.Context, id string) error {
	if id == domain.DefaultDomainID {
		return fmt.Errorf("%w: the default domain cannot be deleted", aerrors.ErrForbidden)
	}
	d, err := s.domains.GetDomainByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Enabled {
		return fmt.Errorf("%w: domain must be disabled before deletion", aerrors.ErrForbidden)
	}

	if err := s.revocations.Emit(ctx, EventFilter{DomainID: id, ExpandToProjects: true}); err != nil {
		return err
	}
	if err := s.assignments.RemoveGrantsForTarget(ctx, domain.DomainTarget(id)); err != nil {
		return err
	}
	if err := s.domains.DeleteDomain(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.DomainKey(id), cache.DomainNameKey(d.Name))

	log.Info().Str("domain_id", id).Msg("domain deleted")
	return nil
}

// --- Projects ---

// CreateProject creates a project in a domain. Extra attributes are stored
// verbatim.
func (s *RegistryService) CreateProject(ctx context.Context, domainID, name string, extra map[string]any) (*domain.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: project name must not be empty", aerrors.ErrValidation)
	}
	if _, err := s.domains.GetDomainByID(ctx, domainID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		DomainID:  domainID,
		Enabled:   true,
		Extra:     extra,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.projects.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject returns a project by id, read-through cached.
func (s *RegistryService) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	if cacheHit(ctx, s.cache, cache.ProjectKey(id), &p) {
		return &p, nil
	}
	fetched, err := s.projects.GetProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cacheFill(ctx, s.cache, cache.ProjectKey(id), fetched, s.cacheTTL)
	return fetched, nil
}

// UpdateProject applies a partial update. Disabling the project emits a
// project-scoped revocation event before the mutation is applied.
func (s *RegistryService) UpdateProject(ctx context.Context, id string, upd ProjectUpdate) (*domain.Project, error) {
	p, err := s.projects.GetProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName, oldDomain := p.Name, p.DomainID
	disabling := upd.Enabled != nil && !*upd.Enabled && p.Enabled

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, fmt.Errorf("%w: project name must not be empty", aerrors.ErrValidation)
		}
		p.Name = *upd.Name
	}
	if upd.DomainID != nil {
		if _, err := s.domains.GetDomainByID(ctx, *upd.DomainID); err != nil {
			return nil, err
		}
		p.DomainID = *upd.DomainID
	}
	if upd.Enabled != nil {
		p.Enabled = *upd.Enabled
	}
	if upd.Extra != nil {
		if p.Extra == nil {
			p.Extra = make(map[string]any, len(upd.Extra))
		}
		for k, v := range upd.Extra {
			p.Extra[k] = v
		}
	}
	p.UpdatedAt = time.Now().UTC()

	if disabling {
		if err := s.revocations.Emit(ctx, EventFilter{ProjectID: id}); err != nil {
			return nil, err
		}
	}
	if err := s.projects.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx,
		cache.ProjectKey(id),
		cache.ProjectNameKey(oldDomain, oldName),
		cache.ProjectNameKey(p.DomainID, p.Name),
	)
	return p, nil
}

// DeleteProject removes the project, its grants and its scoped tokens, and
// emits the project revocation event first.
func (s *RegistryService) DeleteProject(ctx context.Context, id string) error {
	p, err := s.projects.GetProjectByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.revocations.Emit(ctx, EventFilter{ProjectID: id}); err != nil {
		return err
	}
	if err := s.assignments.RemoveGrantsForTarget(ctx, domain.ProjectTarget(id)); err != nil {
		return err
	}
	if err := s.projects.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.ProjectKey(id), cache.ProjectNameKey(p.DomainID, p.Name))
	return nil
}

// --- Users ---

// CreateUser creates an enabled user with a hashed credential. Extra
// attributes are preserved verbatim.
func (s *RegistryService) CreateUser(ctx context.Context, domainID, name, password string, extra map[string]any) (*domain.User, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: user name must not be empty", aerrors.ErrValidation)
	}
	if _, err := s.domains.GetDomainByID(ctx, domainID); err != nil {
		return nil, err
	}
	hash := ""
	if password != "" {
		var err error
		hash, err = s.hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		DomainID:     domainID,
		Enabled:      true,
		PasswordHash: hash,
		Extra:        extra,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser returns a user by id, read-through cached.
func (s *RegistryService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if cacheHit(ctx, s.cache, cache.UserKey(id), &u) {
		return &u, nil
	}
	fetched, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cacheFill(ctx, s.cache, cache.UserKey(id), fetched, s.cacheTTL)
	return fetched, nil
}

// UpdateUser applies a partial update, merging Extra verbatim. Disabling a
// user emits a user-scoped revocation event.
func (s *RegistryService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*domain.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName := u.Name
	disabling := upd.Enabled != nil && !*upd.Enabled && u.Enabled

	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, fmt.Errorf("%w: user name must not be empty", aerrors.ErrValidation)
		}
		u.Name = *upd.Name
	}
	if upd.Enabled != nil {
		u.Enabled = *upd.Enabled
	}
	if upd.Extra != nil {
		if u.Extra == nil {
			u.Extra = make(map[string]any, len(upd.Extra))
		}
		for k, v := range upd.Extra {
			u.Extra[k] = v
		}
	}
	u.UpdatedAt = time.Now().UTC()

	if disabling {
		if err := s.revocations.Emit(ctx, EventFilter{UserID: id}); err != nil {
			return nil, err
		}
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.invalidate(ctx,
		cache.UserKey(id),
		cache.UserNameKey(u.DomainID, oldName),
		cache.UserNameKey(u.DomainID, u.Name),
	)
	return u, nil
}

// DeleteUser removes the user, its grants, its memberships and its tokens.
// A group sharing the user's id value is untouched.
func (s *RegistryService) DeleteUser(ctx context.Context, id string) error {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.revocations.Emit(ctx, EventFilter{UserID: id}); err != nil {
		return err
	}
	if err := s.assignments.RemoveActor(ctx, domain.UserActor(id)); err != nil {
		return err
	}
	if _, err := s.tokens.DeleteTokens(ctx, id, "", ""); err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.UserKey(id), cache.UserNameKey(u.DomainID, u.Name))
	return nil
}

// --- Groups ---

// CreateGroup creates an empty group.
func (s *RegistryService) CreateGroup(ctx context.Context, domainID, name string) (*domain.Group, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: group name must not be empty", aerrors.ErrValidation)
	}
	if _, err := s.domains.GetDomainByID(ctx, domainID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	g := &domain.Group{
		ID:        uuid.NewString(),
		Name:      name,
		DomainID:  domainID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.groups.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup returns a group by id.
func (s *RegistryService) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	return s.groups.GetGroupByID(ctx, id)
}

// DeleteGroup removes the group and its grants. Grant removal emits the
// per-member revocation events before the grants go away.
func (s *RegistryService) DeleteGroup(ctx context.Context, id string) error {
	if _, err := s.groups.GetGroupByID(ctx, id); err != nil {
		return err
	}
	if err := s.assignments.RemoveActor(ctx, domain.GroupActor(id)); err != nil {
		return err
	}
	if err := s.groups.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.GroupKey(id))
	return nil
}

// AddGroupMember adds a user to a group. Idempotent.
func (s *RegistryService) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if err := s.groups.AddGroupMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidate(ctx, cache.GroupKey(groupID))
	return nil
}

// RemoveGroupMember drops a user from a group and revokes the tokens the
// membership was carrying: one pre-expanded event per scope reachable
// through the group's grants.
func (s *RegistryService) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	grants, err := s.assignments.GrantsThroughGroup(ctx, groupID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		f := EventFilter{UserID: userID}
		switch g.Target.Kind {
		case domain.TargetProject:
			f.ProjectID = g.Target.ID
		case domain.TargetDomain:
			f.DomainID = g.Target.ID
			f.ExpandToProjects = g.Inherited
		}
		if err := s.revocations.Emit(ctx, f); err != nil {
			return err
		}
	}
	if err := s.groups.RemoveGroupMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidate(ctx, cache.GroupKey(groupID))
	return nil
}

// --- Roles ---

// CreateRole creates a role. Role names are globally unique.
func (s *RegistryService) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: role name must not be empty", aerrors.ErrValidation)
	}
	r := &domain.Role{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.roles.CreateRole(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRole returns a role by id, read-through cached.
func (s *RegistryService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	var r domain.Role
	if cacheHit(ctx, s.cache, cache.RoleKey(id), &r) {
		return &r, nil
	}
	fetched, err := s.roles.GetRoleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cacheFill(ctx, s.cache, cache.RoleKey(id), fetched, s.cacheTTL)
	return fetched, nil
}

// DeleteRole cascades through the assignment engine, then drops the cache
// entries.
func (s *RegistryService) DeleteRole(ctx context.Context, id string) error {
	r, err := s.roles.GetRoleByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.assignments.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.RoleKey(id), cache.RoleNameKey(r.Name))
	return nil
}

// ListRoles returns all roles.
func (s *RegistryService) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return s.roles.ListRoles(ctx)
}

// --- cache plumbing ---

func (s *RegistryService) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s.cache.Invalidate(ctx, key)
	}
}

func cacheHit(ctx context.Context, c cache.EntityCache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		c.Invalidate(ctx, key)
		return false
	}
	return true
}

func cacheFill(ctx context.Context, c cache.EntityCache, key string, src any, ttl time.Duration) {
	raw, err := json.Marshal(src)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}
	c.Set(ctx, key, raw, ttl)
}
