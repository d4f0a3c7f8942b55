package inmem

import (
	"context"
	"strings"

	aerrors "go.pilab.hu/accord/errors"

	"go.pilab.hu/accord/domain"
)

// Entity repositories. Name uniqueness is enforced here, case-insensitively
// for domain and project names, exactly for user, group and role names.

func (s *Store) CreateDomain(_ context.Context, d *domain.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[d.ID]; ok {
		return aerrors.ErrConflict
	}
	for _, existing := range s.domains {
		if strings.EqualFold(existing.Name, d.Name) {
			return aerrors.ErrConflict
		}
	}
	s.domains[d.ID] = cloneDomain(d)
	return nil
}

func (s *Store) GetDomainByID(_ context.Context, id string) (*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.domains[id]
	if !ok {
		return nil, aerrors.ErrDomainNotFound
	}
	return cloneDomain(d), nil
}

func (s *Store) GetDomainByName(_ context.Context, name string) (*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.domains {
		if strings.EqualFold(d.Name, name) {
			return cloneDomain(d), nil
		}
	}
	return nil, aerrors.ErrDomainNotFound
}

func (s *Store) UpdateDomain(_ context.Context, d *domain.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[d.ID]; !ok {
		return aerrors.ErrDomainNotFound
	}
	for id, existing := range s.domains {
		if id != d.ID && strings.EqualFold(existing.Name, d.Name) {
			return aerrors.ErrConflict
		}
	}
	s.domains[d.ID] = cloneDomain(d)
	return nil
}

func (s *Store) DeleteDomain(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[id]; !ok {
		return aerrors.ErrDomainNotFound
	}
	delete(s.domains, id)
	return nil
}

func (s *Store) ListDomains(_ context.Context) ([]*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		out = append(out, cloneDomain(d))
	}
	return out, nil
}

func (s *Store) CreateProject(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return aerrors.ErrConflict
	}
	for _, existing := range s.projects {
		if existing.DomainID == p.DomainID && strings.EqualFold(existing.Name, p.Name) {
			return aerrors.ErrConflict
		}
	}
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *Store) GetProjectByID(_ context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, aerrors.ErrProjectNotFound
	}
	return cloneProject(p), nil
}

func (s *Store) GetProjectByName(_ context.Context, domainID, name string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.DomainID == domainID && strings.EqualFold(p.Name, name) {
			return cloneProject(p), nil
		}
	}
	return nil, aerrors.ErrProjectNotFound
}

func (s *Store) UpdateProject(_ context.Context, p *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; !ok {
		return aerrors.ErrProjectNotFound
	}
	// Renaming across domains is permitted unless the new (domain, name)
	// pair collides.
	for id, existing := range s.projects {
		if id != p.ID && existing.DomainID == p.DomainID && strings.EqualFold(existing.Name, p.Name) {
			return aerrors.ErrConflict
		}
	}
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return aerrors.ErrProjectNotFound
	}
	delete(s.projects, id)
	return nil
}

func (s *Store) ListProjectsByDomain(_ context.Context, domainID string) ([]*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Project
	for _, p := range s.projects {
		if p.DomainID == domainID {
			out = append(out, cloneProject(p))
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return aerrors.ErrConflict
	}
	for _, existing := range s.users {
		if existing.DomainID == u.DomainID && existing.Name == u.Name {
			return aerrors.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, aerrors.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByName(_ context.Context, domainID, name string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.DomainID == domainID && u.Name == name {
			return cloneUser(u), nil
		}
	}
	return nil, aerrors.ErrUserNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return aerrors.ErrUserNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && existing.DomainID == u.DomainID && existing.Name == u.Name {
			return aerrors.ErrConflict
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return aerrors.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) ListUsersByDomain(_ context.Context, domainID string) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.User
	for _, u := range s.users {
		if u.DomainID == domainID {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s *Store) CreateGroup(_ context.Context, g *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[g.ID]; ok {
		return aerrors.ErrConflict
	}
	for _, existing := range s.groups {
		if existing.DomainID == g.DomainID && existing.Name == g.Name {
			return aerrors.ErrConflict
		}
	}
	s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (s *Store) GetGroupByID(_ context.Context, id string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, aerrors.ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (s *Store) GetGroupByName(_ context.Context, domainID, name string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.DomainID == domainID && g.Name == name {
			return cloneGroup(g), nil
		}
	}
	return nil, aerrors.ErrGroupNotFound
}

func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return aerrors.ErrGroupNotFound
	}
	delete(s.groups, id)
	return nil
}

func (s *Store) ListGroupsByDomain(_ context.Context, domainID string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Group
	for _, g := range s.groups {
		if g.DomainID == domainID {
			out = append(out, cloneGroup(g))
		}
	}
	return out, nil
}

func (s *Store) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return aerrors.ErrGroupNotFound
	}
	for _, m := range g.Members {
		if m == userID {
			return nil // already a member, idempotent
		}
	}
	g.Members = append(g.Members, userID)
	return nil
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return aerrors.ErrGroupNotFound
	}
	for i, m := range g.Members {
		if m == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return nil
		}
	}
	return aerrors.ErrUserNotFound
}

func (s *Store) ListGroupsForUser(_ context.Context, userID string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Group
	for _, g := range s.groups {
		for _, m := range g.Members {
			if m == userID {
				out = append(out, cloneGroup(g))
				break
			}
		}
	}
	return out, nil
}

func (s *Store) RemoveUserFromAllGroups(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		for i, m := range g.Members {
			if m == userID {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (s *Store) CreateRole(_ context.Context, r *domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[r.ID]; ok {
		return aerrors.ErrConflict
	}
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return aerrors.ErrConflict
		}
	}
	s.roles[r.ID] = cloneRole(r)
	return nil
}

func (s *Store) GetRoleByID(_ context.Context, id string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, aerrors.ErrRoleNotFound
	}
	return cloneRole(r), nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.roles {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, aerrors.ErrRoleNotFound
}

func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return aerrors.ErrRoleNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *Store) ListRoles(_ context.Context) ([]*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r))
	}
	return out, nil
}
