package inmem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

func TestStoreSeedsDefaultDomain(t *testing.T) {
	s := NewStore()

	d, err := s.GetDomainByID(context.Background(), domain.DefaultDomainID)
	require.NoError(t, err)
	assert.True(t, d.Enabled)
}

func TestDomainNameLookupIsCaseInsensitive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateDomain(ctx, &domain.Domain{ID: "d1", Name: "Sales"}))

	d, err := s.GetDomainByName(ctx, "sAlEs")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)

	err = s.CreateDomain(ctx, &domain.Domain{ID: "d2", Name: "SALES"})
	assert.ErrorIs(t, err, aerrors.ErrConflict)
}

func TestUserNameLookupIsExact(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &domain.User{
		ID: "u1", Name: "Alice", DomainID: domain.DefaultDomainID,
	}))

	_, err := s.GetUserByName(ctx, domain.DefaultDomainID, "alice")
	assert.ErrorIs(t, err, aerrors.ErrUserNotFound)

	u, err := s.GetUserByName(ctx, domain.DefaultDomainID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestReadsReturnCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateDomain(ctx, &domain.Domain{ID: "d1", Name: "ops", Enabled: true}))

	d, err := s.GetDomainByID(ctx, "d1")
	require.NoError(t, err)
	d.Name = "mutated"

	again, err := s.GetDomainByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "ops", again.Name)
}

func TestConsumeTrustUseSemantics(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.ConsumeTrustUse(ctx, "absent")
	assert.ErrorIs(t, err, aerrors.ErrTrustNotFound)

	require.NoError(t, s.CreateTrust(ctx, &domain.Trust{ID: "unlimited"}))
	for range 3 {
		assert.NoError(t, s.ConsumeTrustUse(ctx, "unlimited"))
	}

	uses := int64(2)
	require.NoError(t, s.CreateTrust(ctx, &domain.Trust{ID: "limited", RemainingUses: &uses}))
	assert.NoError(t, s.ConsumeTrustUse(ctx, "limited"))
	assert.NoError(t, s.ConsumeTrustUse(ctx, "limited"))
	assert.ErrorIs(t, s.ConsumeTrustUse(ctx, "limited"), aerrors.ErrTrustConsumed)
}

func TestConsumeTrustUseIsAtomic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	uses := int64(1)
	require.NoError(t, s.CreateTrust(ctx, &domain.Trust{ID: "t1", RemainingUses: &uses}))

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ConsumeTrustUse(ctx, "t1")
		}()
	}
	wg.Wait()
	close(errs)

	var successes int
	for err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}

func TestDeleteGrantsByRoleIsOneCriticalSection(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, g := range []*domain.Grant{
		{Actor: domain.UserActor("u1"), Target: domain.ProjectTarget("p1"), RoleID: "r1"},
		{Actor: domain.UserActor("u2"), Target: domain.ProjectTarget("p1"), RoleID: "r1"},
		{Actor: domain.UserActor("u1"), Target: domain.ProjectTarget("p1"), RoleID: "r2"},
	} {
		require.NoError(t, s.CreateGrant(ctx, g))
	}

	require.NoError(t, s.DeleteGrantsByRole(ctx, "r1"))

	gone, err := s.ListGrantsByRole(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, gone)
	kept, err := s.ListGrantsByRole(ctx, "r2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestListEventsSinceIsStrictlyAfter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	cutoff := time.Now().UTC()
	require.NoError(t, s.AppendEvent(ctx, &domain.RevocationEvent{ID: "e1", IssuedBefore: cutoff}))
	require.NoError(t, s.AppendEvent(ctx, &domain.RevocationEvent{ID: "e2", IssuedBefore: cutoff.Add(time.Second)}))

	events, err := s.ListEvents(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].ID)
}
