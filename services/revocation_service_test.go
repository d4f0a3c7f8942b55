package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
)

func TestEmitExpandsDomainEventsToOwnedProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dom := f.mustDomain(t, "ops")
	p1 := f.mustProject(t, dom.ID, "fleet")
	p2 := f.mustProject(t, dom.ID, "billing")

	require.NoError(t, f.revocations.Emit(ctx, EventFilter{
		UserID:           "u1",
		DomainID:         dom.ID,
		ExpandToProjects: true,
	}))

	events, err := f.revocations.ListEvents(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	var domainEvents, projectEvents int
	projectIDs := make([]string, 0, 2)
	for _, e := range events {
		assert.Equal(t, "u1", e.UserID)
		if e.DomainID != "" {
			domainEvents++
			assert.Empty(t, e.ProjectID)
			continue
		}
		projectEvents++
		projectIDs = append(projectIDs, e.ProjectID)
	}
	assert.Equal(t, 1, domainEvents)
	assert.Equal(t, 2, projectEvents)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, projectIDs)
}

func TestEmitWithoutExpansionAppendsOneEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dom := f.mustDomain(t, "ops")
	f.mustProject(t, dom.ID, "fleet")

	require.NoError(t, f.revocations.Emit(ctx, EventFilter{DomainID: dom.ID}))

	events, err := f.revocations.ListEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSparseFilterIsConjunctive(t *testing.T) {
	now := time.Now().UTC()
	e := &domain.RevocationEvent{
		UserID:       "u1",
		ProjectID:    "p1",
		IssuedBefore: now,
	}

	matching := &domain.Token{UserID: "u1", ProjectID: "p1", IssuedAt: now.Add(-time.Minute)}
	assert.True(t, e.Covers(matching))

	wrongUser := &domain.Token{UserID: "u2", ProjectID: "p1", IssuedAt: now.Add(-time.Minute)}
	assert.False(t, e.Covers(wrongUser))

	wrongProject := &domain.Token{UserID: "u1", ProjectID: "p2", IssuedAt: now.Add(-time.Minute)}
	assert.False(t, e.Covers(wrongProject))

	unscoped := &domain.Token{UserID: "u1", IssuedAt: now.Add(-time.Minute)}
	assert.False(t, e.Covers(unscoped))
}

func TestRoleFilterMatchesTokenRoleSnapshot(t *testing.T) {
	now := time.Now().UTC()
	e := &domain.RevocationEvent{RoleID: "r1", IssuedBefore: now}

	withRole := &domain.Token{UserID: "u1", Roles: []string{"r0", "r1"}, IssuedAt: now.Add(-time.Minute)}
	assert.True(t, e.Covers(withRole))

	withoutRole := &domain.Token{UserID: "u1", Roles: []string{"r0"}, IssuedAt: now.Add(-time.Minute)}
	assert.False(t, e.Covers(withoutRole))

	noSnapshot := &domain.Token{UserID: "u1", IssuedAt: now.Add(-time.Minute)}
	assert.False(t, e.Covers(noSnapshot))
}

func TestEmptyFilterCoversEverything(t *testing.T) {
	now := time.Now().UTC()
	e := &domain.RevocationEvent{IssuedBefore: now}

	assert.True(t, e.Covers(&domain.Token{UserID: "anyone", IssuedAt: now.Add(-time.Second)}))
	assert.False(t, e.Covers(&domain.Token{UserID: "anyone", IssuedAt: now.Add(time.Second)}))
}

func TestPruneDropsOnlyOldEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, f.revocations.Emit(ctx, EventFilter{UserID: "u1", IssuedBefore: now.Add(-48 * time.Hour)}))
	require.NoError(t, f.revocations.Emit(ctx, EventFilter{UserID: "u2", IssuedBefore: now}))

	pruned, err := f.revocations.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	remaining, err := f.revocations.ListEvents(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "u2", remaining[0].UserID)
}
