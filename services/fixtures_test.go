package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/cache"
	"go.pilab.hu/accord/domain"
	"go.pilab.hu/accord/inmem"
)

// fakeHasher is a deterministic PasswordHasher for tests; bcrypt's cost
// would dominate the suite's runtime.
type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) Verify(hashedPassword, password string) error {
	if hashedPassword == "hashed:"+password {
		return nil
	}
	return errors.New("credential mismatch")
}

// fixture wires the full service stack onto a fresh in-memory store.
type fixture struct {
	store       *inmem.Store
	revocations *RevocationService
	tokens      *TokenService
	assignments *AssignmentService
	registry    *RegistryService
	trusts      *TrustService
	auth        *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := inmem.NewStore()
	entityCache := cache.NewMemoryEntityCache(time.Minute)
	t.Cleanup(entityCache.Close)

	revocations := NewRevocationService(store, store)
	tokens := NewTokenService(store, revocations, time.Hour)
	assignments := NewAssignmentService(store, store, store, store, store, store, revocations)
	hasher := fakeHasher{}
	trusts := NewTrustService(store, store, store, assignments, tokens, revocations, hasher)
	registry := NewRegistryService(
		store, store, store, store, store,
		assignments, tokens, revocations,
		entityCache, time.Minute, hasher)
	auth := NewAuthService(store, store, store, assignments, tokens, revocations, hasher, nil)

	return &fixture{
		store:       store,
		revocations: revocations,
		tokens:      tokens,
		assignments: assignments,
		registry:    registry,
		trusts:      trusts,
		auth:        auth,
	}
}

func (f *fixture) mustDomain(t *testing.T, name string) *domain.Domain {
	t.Helper()
	d, err := f.registry.CreateDomain(context.Background(), name, true)
	require.NoError(t, err)
	return d
}

func (f *fixture) mustProject(t *testing.T, domainID, name string) *domain.Project {
	t.Helper()
	p, err := f.registry.CreateProject(context.Background(), domainID, name, nil)
	require.NoError(t, err)
	return p
}

func (f *fixture) mustUser(t *testing.T, domainID, name, password string) *domain.User {
	t.Helper()
	u, err := f.registry.CreateUser(context.Background(), domainID, name, password, nil)
	require.NoError(t, err)
	return u
}

func (f *fixture) mustGroup(t *testing.T, domainID, name string, members ...string) *domain.Group {
	t.Helper()
	g, err := f.registry.CreateGroup(context.Background(), domainID, name)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, f.registry.AddGroupMember(context.Background(), g.ID, m))
	}
	return g
}

func (f *fixture) mustRole(t *testing.T, name string) *domain.Role {
	t.Helper()
	r, err := f.registry.CreateRole(context.Background(), name)
	require.NoError(t, err)
	return r
}

func (f *fixture) mustGrant(t *testing.T, roleID string, actor domain.Actor, target domain.Target, inherited bool) {
	t.Helper()
	require.NoError(t, f.assignments.CreateGrant(context.Background(), roleID, actor, target, inherited))
}
