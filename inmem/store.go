// Package inmem provides an in-memory implementation of every repository
// interface in domain. It backs single-process deployments and the service
// test suites; the mongodb package is the durable equivalent.
package inmem

import (
	"sync"
	"time"

	"go.pilab.hu/accord/domain"
)

// Store holds all state behind one RWMutex. Operations that must be atomic
// with respect to readers (duplicate grant detection, role-grant cascade,
// trust use decrement) run under the write lock in a single critical
// section.
type Store struct {
	mu sync.RWMutex

	domains  map[string]*domain.Domain
	projects map[string]*domain.Project
	users    map[string]*domain.User
	groups   map[string]*domain.Group
	roles    map[string]*domain.Role

	grants map[string]*domain.Grant // keyed by Grant.Key()
	tokens map[string]*domain.Token // keyed by storage id
	events []*domain.RevocationEvent
	trusts map[string]*domain.Trust
}

// NewStore creates an empty store with the default domain seeded.
func NewStore() *Store {
	s := &Store{
		domains:  make(map[string]*domain.Domain),
		projects: make(map[string]*domain.Project),
		users:    make(map[string]*domain.User),
		groups:   make(map[string]*domain.Group),
		roles:    make(map[string]*domain.Role),
		grants:   make(map[string]*domain.Grant),
		tokens:   make(map[string]*domain.Token),
		trusts:   make(map[string]*domain.Trust),
	}
	now := time.Now().UTC()
	s.domains[domain.DefaultDomainID] = &domain.Domain{
		ID:        domain.DefaultDomainID,
		Name:      "Default",
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s
}

func cloneDomain(d *domain.Domain) *domain.Domain {
	c := *d
	return &c
}

func cloneProject(p *domain.Project) *domain.Project {
	c := *p
	c.Extra = cloneExtra(p.Extra)
	return &c
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Extra = cloneExtra(u.Extra)
	return &c
}

func cloneGroup(g *domain.Group) *domain.Group {
	c := *g
	c.Members = append([]string(nil), g.Members...)
	return &c
}

func cloneRole(r *domain.Role) *domain.Role {
	c := *r
	return &c
}

func cloneGrant(g *domain.Grant) *domain.Grant {
	c := *g
	return &c
}

func cloneToken(t *domain.Token) *domain.Token {
	c := *t
	c.Roles = append([]string(nil), t.Roles...)
	return &c
}

func cloneTrust(t *domain.Trust) *domain.Trust {
	c := *t
	c.Roles = append([]string(nil), t.Roles...)
	if t.ExpiresAt != nil {
		exp := *t.ExpiresAt
		c.ExpiresAt = &exp
	}
	if t.RemainingUses != nil {
		ru := *t.RemainingUses
		c.RemainingUses = &ru
	}
	return &c
}

func cloneEvent(e *domain.RevocationEvent) *domain.RevocationEvent {
	c := *e
	return &c
}

func cloneExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	c := make(map[string]any, len(extra))
	for k, v := range extra {
		c[k] = v
	}
	return c
}
