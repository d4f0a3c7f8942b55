package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/internal/metrics"
)

// AssignmentService owns grant records and computes effective role sets.
// Grant actors are never validated: dangling grants to not-yet-created or
// since-deleted principals are legal and silently inert. Targets and roles
// must exist.
type AssignmentService struct {
	grants   domain.GrantRepository
	domains  domain.DomainRepository
	projects domain.ProjectRepository
	users    domain.UserRepository
	groups   domain.GroupRepository
	roles    domain.RoleRepository

	revocations *RevocationService
}

// NewAssignmentService creates an AssignmentService.
func NewAssignmentService(
	grants domain.GrantRepository,
	domains domain.DomainRepository,
	projects domain.ProjectRepository,
	users domain.UserRepository,
	groups domain.GroupRepository,
	roles domain.RoleRepository,
	revocations *RevocationService,
) *AssignmentService {
	return &AssignmentService{
		grants:      grants,
		domains:     domains,
		projects:    projects,
		users:       users,
		groups:      groups,
		roles:       roles,
		revocations: revocations,
	}
}

// CreateGrant assigns a role to an actor on a target. The target and role
// must exist; the actor is deliberately not checked. A second call with the
// same key fails with ErrConflict.
func (s *AssignmentService) CreateGrant(ctx context.Context, roleID string, actor domain.Actor, target domain.Target, inherited bool) error {
	if _, err := s.roles.GetRoleByID(ctx, roleID); err != nil {
		return err
	}
	if err := s.checkTarget(ctx, target); err != nil {
		return err
	}
	// Inherited is only meaningful on domain targets.
	if target.Kind == domain.TargetProject {
		inherited = false
	}

	grant := &domain.Grant{
		Actor:     actor,
		Target:    target,
		RoleID:    roleID,
		Inherited: inherited,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.grants.CreateGrant(ctx, grant); err != nil {
		return err
	}
	metrics.GrantsCreatedTotal.Inc()

	log.Debug().
		Str("role_id", roleID).
		Str("actor_kind", string(actor.Kind)).Str("actor_id", actor.ID).
		Str("target_kind", string(target.Kind)).Str("target_id", target.ID).
		Bool("inherited", inherited).
		Msg("grant created")

	return nil
}

// DeleteGrant removes the exact (actor, target, role) tuple. A globally
// absent role fails ErrRoleNotFound; an existing role not assigned on the
// pair fails ErrGrantNotFound, never ErrRoleNotFound: callers matching on
// the role sentinel can rely on it meaning the role itself is gone. The
// actor may no longer exist; its stored grants are deleted by id regardless.
func (s *AssignmentService) DeleteGrant(ctx context.Context, roleID string, actor domain.Actor, target domain.Target) error {
	if _, err := s.roles.GetRoleByID(ctx, roleID); err != nil {
		return err
	}
	existing, err := s.grants.ListGrantsByActorTarget(ctx, actor, target)
	if err != nil {
		return fmt.Errorf("failed to list grants: %w", err)
	}
	var grant *domain.Grant
	for _, g := range existing {
		if g.RoleID == roleID {
			grant = g
			break
		}
	}
	if grant == nil {
		return aerrors.ErrGrantNotFound
	}

	// Event before mutation: a validator may see an event for a grant still
	// present, never a missing grant without its event.
	if err := s.emitGrantRevocation(ctx, grant); err != nil {
		return err
	}
	if err := s.grants.DeleteGrant(ctx, actor, target, roleID); err != nil {
		// Lost a race to a concurrent delete; the extra event is harmless.
		if errors.Is(err, aerrors.ErrGrantNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	metrics.GrantsDeletedTotal.Inc()
	return nil
}

// ListGrants returns the roles directly granted on the exact (actor,
// target) pair. No group expansion, no inheritance.
func (s *AssignmentService) ListGrants(ctx context.Context, actor domain.Actor, target domain.Target) ([]*domain.Role, error) {
	if err := s.checkTarget(ctx, target); err != nil {
		return nil, err
	}
	grants, err := s.grants.ListGrantsByActorTarget(ctx, actor, target)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	out := make([]*domain.Role, 0, len(grants))
	for _, g := range grants {
		role, err := s.roles.GetRoleByID(ctx, g.RoleID)
		if err != nil {
			if errors.Is(err, aerrors.ErrRoleNotFound) {
				continue // grant outlived its role between cascade steps
			}
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// EffectiveRolesOnProject returns the de-duplicated role ids the user holds
// on the project: direct grants, grants through the user's groups, and
// inherited grants on the owning domain for the user or its groups.
func (s *AssignmentService) EffectiveRolesOnProject(ctx context.Context, userID, projectID string) ([]string, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	project, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	// A deleted domain renders its children inaccessible even though the
	// project rows may physically remain.
	if _, err := s.domains.GetDomainByID(ctx, project.DomainID); err != nil {
		if errors.Is(err, aerrors.ErrDomainNotFound) {
			return nil, aerrors.ErrProjectNotFound
		}
		return nil, err
	}

	actors, err := s.actorsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	projectTarget := domain.ProjectTarget(projectID)
	domainTarget := domain.DomainTarget(project.DomainID)
	for _, actor := range actors {
		direct, err := s.grants.ListGrantsByActorTarget(ctx, actor, projectTarget)
		if err != nil {
			return nil, fmt.Errorf("failed to list project grants: %w", err)
		}
		for _, g := range direct {
			set[g.RoleID] = struct{}{}
		}

		inherited, err := s.grants.ListGrantsByActorTarget(ctx, actor, domainTarget)
		if err != nil {
			return nil, fmt.Errorf("failed to list domain grants: %w", err)
		}
		for _, g := range inherited {
			if g.Inherited {
				set[g.RoleID] = struct{}{}
			}
		}
	}
	return sortedKeys(set), nil
}

// EffectiveRolesOnDomain returns the user's direct and group role ids on
// the domain, excluding inherited grants: those project downward only and
// are not roles on the domain itself.
func (s *AssignmentService) EffectiveRolesOnDomain(ctx context.Context, userID, domainID string) ([]string, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.domains.GetDomainByID(ctx, domainID); err != nil {
		return nil, err
	}

	actors, err := s.actorsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	domainTarget := domain.DomainTarget(domainID)
	for _, actor := range actors {
		grants, err := s.grants.ListGrantsByActorTarget(ctx, actor, domainTarget)
		if err != nil {
			return nil, fmt.Errorf("failed to list domain grants: %w", err)
		}
		for _, g := range grants {
			if !g.Inherited {
				set[g.RoleID] = struct{}{}
			}
		}
	}
	return sortedKeys(set), nil
}

// ProjectsForUser returns every project the user can reach: projects with a
// direct user or group grant, plus every project owned by a domain carrying
// an inherited grant for the user or its groups. Each project appears once.
func (s *AssignmentService) ProjectsForUser(ctx context.Context, userID string) ([]*domain.Project, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}

	actors, err := s.actorsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*domain.Project)
	for _, actor := range actors {
		grants, err := s.grants.ListGrantsByActor(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("failed to list actor grants: %w", err)
		}
		for _, g := range grants {
			switch {
			case g.Target.Kind == domain.TargetProject:
				if err := s.collectProject(ctx, g.Target.ID, seen); err != nil {
					return nil, err
				}
			case g.Target.Kind == domain.TargetDomain && g.Inherited:
				owned, err := s.projects.ListProjectsByDomain(ctx, g.Target.ID)
				if err != nil {
					return nil, fmt.Errorf("failed to list domain projects: %w", err)
				}
				for _, p := range owned {
					if _, ok := seen[p.ID]; !ok {
						seen[p.ID] = p
					}
				}
			}
		}
	}

	out := make([]*domain.Project, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteRole removes the role and every grant referencing it. The grant
// cascade is one storage operation, so no reader observes a partially
// cleaned state. The revocation event lands before the cascade.
func (s *AssignmentService) DeleteRole(ctx context.Context, roleID string) error {
	if _, err := s.roles.GetRoleByID(ctx, roleID); err != nil {
		return err
	}

	if err := s.revocations.Emit(ctx, EventFilter{RoleID: roleID}); err != nil {
		return err
	}
	if err := s.grants.DeleteGrantsByRole(ctx, roleID); err != nil {
		return fmt.Errorf("failed to cascade role grants: %w", err)
	}
	if err := s.roles.DeleteRole(ctx, roleID); err != nil {
		return err
	}

	log.Info().Str("role_id", roleID).Msg("role deleted with grant cascade")
	return nil
}

// RemoveActor removes all grants and, for users, group memberships naming
// the actor id within its kind. An unrelated actor of the other kind
// sharing the same id value is untouched.
func (s *AssignmentService) RemoveActor(ctx context.Context, actor domain.Actor) error {
	grants, err := s.grants.ListGrantsByActor(ctx, actor)
	if err != nil {
		return fmt.Errorf("failed to list actor grants: %w", err)
	}
	for _, g := range grants {
		if err := s.emitGrantRevocation(ctx, g); err != nil {
			return err
		}
	}
	if err := s.grants.DeleteGrantsByActor(ctx, actor); err != nil {
		return fmt.Errorf("failed to delete actor grants: %w", err)
	}
	if actor.Kind == domain.ActorUser {
		if err := s.groups.RemoveUserFromAllGroups(ctx, actor.ID); err != nil {
			return fmt.Errorf("failed to remove user from groups: %w", err)
		}
	}
	return nil
}

// RemoveGrantsForTarget cascades grant deletion when a project or domain is
// deleted. Invoked by the registry layer, which owns the matching
// revocation event.
func (s *AssignmentService) RemoveGrantsForTarget(ctx context.Context, target domain.Target) error {
	return s.grants.DeleteGrantsByTarget(ctx, target)
}

// GrantsThroughGroup returns the group's grants, used by the registry to
// pre-expand membership-removal revocations.
func (s *AssignmentService) GrantsThroughGroup(ctx context.Context, groupID string) ([]*domain.Grant, error) {
	return s.grants.ListGrantsByActor(ctx, domain.GroupActor(groupID))
}

// emitGrantRevocation emits the narrow event for one removed grant: role
// plus user (when the actor is a user) plus target scope. Group-actor
// grants expand to one event per member, since tokens carry user ids, not
// group ids. Inherited domain grants additionally expand to owned projects.
func (s *AssignmentService) emitGrantRevocation(ctx context.Context, g *domain.Grant) error {
	userIDs := []string{""}
	switch g.Actor.Kind {
	case domain.ActorUser:
		userIDs = []string{g.Actor.ID}
	case domain.ActorGroup:
		group, err := s.groups.GetGroupByID(ctx, g.Actor.ID)
		if err != nil {
			if errors.Is(err, aerrors.ErrGroupNotFound) {
				return nil // dangling group grant covers no live tokens
			}
			return err
		}
		if len(group.Members) == 0 {
			return nil
		}
		userIDs = group.Members
	}

	for _, userID := range userIDs {
		f := EventFilter{
			UserID: userID,
			RoleID: g.RoleID,
		}
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
	return nil
}

// actorsForUser returns the user actor plus one group actor per group the
// user belongs to. Membership is resolved by user id within the user
// namespace only.
func (s *AssignmentService) actorsForUser(ctx context.Context, userID string) ([]domain.Actor, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}
	actors := make([]domain.Actor, 0, len(groups)+1)
	actors = append(actors, domain.UserActor(userID))
	for _, g := range groups {
		actors = append(actors, domain.GroupActor(g.ID))
	}
	return actors, nil
}

func (s *AssignmentService) checkTarget(ctx context.Context, target domain.Target) error {
	switch target.Kind {
	case domain.TargetProject:
		_, err := s.projects.GetProjectByID(ctx, target.ID)
		return err
	case domain.TargetDomain:
		_, err := s.domains.GetDomainByID(ctx, target.ID)
		return err
	default:
		return fmt.Errorf("%w: unknown target kind %q", aerrors.ErrValidation, target.Kind)
	}
}

func (s *AssignmentService) collectProject(ctx context.Context, projectID string, seen map[string]*domain.Project) error {
	if _, ok := seen[projectID]; ok {
		return nil
	}
	p, err := s.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, aerrors.ErrProjectNotFound) {
			return nil // dangling grant to a deleted project
		}
		return err
	}
	if _, err := s.domains.GetDomainByID(ctx, p.DomainID); err != nil {
		if errors.Is(err, aerrors.ErrDomainNotFound) {
			return nil // children of a deleted domain are inaccessible
		}
		return err
	}
	seen[projectID] = p
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
