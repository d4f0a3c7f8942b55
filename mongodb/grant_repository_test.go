package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/mongodb/testutil"
)

func TestGrantRepositoryUniqueness(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "accord_grant_repo")
	defer cleanup()
	ctx := context.Background()
	repo := NewGrantRepository(db)

	g := &domain.Grant{
		Actor:     domain.UserActor("u1"),
		Target:    domain.ProjectTarget("p1"),
		RoleID:    "r1",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.CreateGrant(ctx, g))

	// Same key again, even with a different inherited flag, collides on the
	// primary key.
	dup := *g
	dup.Inherited = true
	assert.ErrorIs(t, repo.CreateGrant(ctx, &dup), aerrors.ErrConflict)

	// A group actor with the same id value is a different key.
	groupGrant := &domain.Grant{
		Actor:     domain.GroupActor("u1"),
		Target:    domain.ProjectTarget("p1"),
		RoleID:    "r1",
		CreatedAt: time.Now().UTC(),
	}
	assert.NoError(t, repo.CreateGrant(ctx, groupGrant))
}

func TestGrantRepositoryQueriesAndCascades(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "accord_grant_queries")
	defer cleanup()
	ctx := context.Background()
	repo := NewGrantRepository(db)

	seed := []*domain.Grant{
		{Actor: domain.UserActor("u1"), Target: domain.ProjectTarget("p1"), RoleID: "r1"},
		{Actor: domain.UserActor("u1"), Target: domain.ProjectTarget("p2"), RoleID: "r1"},
		{Actor: domain.UserActor("u1"), Target: domain.DomainTarget("d1"), RoleID: "r2", Inherited: true},
		{Actor: domain.UserActor("u2"), Target: domain.ProjectTarget("p1"), RoleID: "r1"},
	}
	for _, g := range seed {
		g.CreatedAt = time.Now().UTC()
		require.NoError(t, repo.CreateGrant(ctx, g))
	}

	byActor, err := repo.ListGrantsByActor(ctx, domain.UserActor("u1"))
	require.NoError(t, err)
	assert.Len(t, byActor, 3)

	byPair, err := repo.ListGrantsByActorTarget(ctx, domain.UserActor("u1"), domain.DomainTarget("d1"))
	require.NoError(t, err)
	require.Len(t, byPair, 1)
	assert.True(t, byPair[0].Inherited)

	byRole, err := repo.ListGrantsByRole(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, byRole, 3)

	byTarget, err := repo.ListGrantsByTarget(ctx, domain.ProjectTarget("p1"))
	require.NoError(t, err)
	assert.Len(t, byTarget, 2)

	require.NoError(t, repo.DeleteGrant(ctx, domain.UserActor("u2"), domain.ProjectTarget("p1"), "r1"))
	assert.ErrorIs(t,
		repo.DeleteGrant(ctx, domain.UserActor("u2"), domain.ProjectTarget("p1"), "r1"),
		aerrors.ErrGrantNotFound)

	require.NoError(t, repo.DeleteGrantsByRole(ctx, "r1"))
	remaining, err := repo.ListGrantsByActor(ctx, domain.UserActor("u1"))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "r2", remaining[0].RoleID)
}
