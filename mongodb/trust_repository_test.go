package mongodb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/mongodb/testutil"
)

func TestTrustRepositoryRoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "accord_trust_repo")
	defer cleanup()
	ctx := context.Background()
	repo := NewTrustRepository(db)

	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	uses := int64(3)
	trust := &domain.Trust{
		ID:            "t1",
		TrustorUserID: "alice",
		TrusteeUserID: "bob",
		ProjectID:     "p1",
		Roles:         []string{"r1", "r2"},
		ExpiresAt:     &expiry,
		Impersonation: true,
		RemainingUses: &uses,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.CreateTrust(ctx, trust))

	got, err := repo.GetTrust(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, trust.TrustorUserID, got.TrustorUserID)
	assert.Equal(t, trust.Roles, got.Roles)
	assert.True(t, got.Impersonation)
	require.NotNil(t, got.RemainingUses)
	assert.Equal(t, int64(3), *got.RemainingUses)

	_, err = repo.GetTrust(ctx, "absent")
	assert.ErrorIs(t, err, aerrors.ErrTrustNotFound)

	byTrustor, err := repo.ListTrustsByTrustor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, byTrustor, 1)
	byTrustee, err := repo.ListTrustsByTrustee(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, byTrustee, 1)

	require.NoError(t, repo.DeleteTrust(ctx, "t1"))
	assert.ErrorIs(t, repo.DeleteTrust(ctx, "t1"), aerrors.ErrTrustNotFound)
}

func TestConsumeTrustUseConditionalDecrement(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "accord_trust_consume")
	defer cleanup()
	ctx := context.Background()
	repo := NewTrustRepository(db)

	assert.ErrorIs(t, repo.ConsumeTrustUse(ctx, "absent"), aerrors.ErrTrustNotFound)

	require.NoError(t, repo.CreateTrust(ctx, &domain.Trust{ID: "unlimited", TrustorUserID: "a", TrusteeUserID: "b"}))
	for range 3 {
		assert.NoError(t, repo.ConsumeTrustUse(ctx, "unlimited"))
	}

	uses := int64(2)
	require.NoError(t, repo.CreateTrust(ctx, &domain.Trust{
		ID: "limited", TrustorUserID: "a", TrusteeUserID: "b", RemainingUses: &uses,
	}))
	assert.NoError(t, repo.ConsumeTrustUse(ctx, "limited"))
	assert.NoError(t, repo.ConsumeTrustUse(ctx, "limited"))
	assert.ErrorIs(t, repo.ConsumeTrustUse(ctx, "limited"), aerrors.ErrTrustConsumed)

	got, err := repo.GetTrust(ctx, "limited")
	require.NoError(t, err)
	require.NotNil(t, got.RemainingUses)
	assert.Zero(t, *got.RemainingUses)
}

func TestConsumeTrustUseUnderContention(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "accord_trust_race")
	defer cleanup()
	ctx := context.Background()
	repo := NewTrustRepository(db)

	uses := int64(1)
	require.NoError(t, repo.CreateTrust(ctx, &domain.Trust{
		ID: "t1", TrustorUserID: "a", TrusteeUserID: "b", RemainingUses: &uses,
	}))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.ConsumeTrustUse(ctx, "t1")
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
