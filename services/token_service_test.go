package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

func TestIssueFillsDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.tokens.Issue(ctx, &domain.Token{UserID: "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, token.ID)
	assert.False(t, token.IssuedAt.IsZero())
	assert.Equal(t, token.IssuedAt.Add(time.Hour), token.ExpiresAt)
}

func TestIssueRejectsDualScope(t *testing.T) {
	f := newFixture(t)

	_, err := f.tokens.Issue(context.Background(), &domain.Token{
		UserID:    "u1",
		ProjectID: "p1",
		DomainID:  "d1",
	})
	assert.ErrorIs(t, err, aerrors.ErrValidation)

	_, err = f.tokens.Issue(context.Background(), &domain.Token{})
	assert.ErrorIs(t, err, aerrors.ErrValidation)
}

func TestLongTokenIDsStoredUnderContentHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longID := strings.Repeat("x", 3*domain.TokenIDHashThreshold)
	require.NotEqual(t, longID, domain.TokenStorageID(longID))

	issued, err := f.tokens.Issue(ctx, &domain.Token{ID: longID, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, longID, issued.ID)

	// Readable under the original id; the hashing is invisible to callers.
	got, err := f.tokens.GetToken(ctx, longID)
	require.NoError(t, err)
	assert.Equal(t, longID, got.ID)

	// The raw id is not a storage key.
	_, err = f.store.GetToken(ctx, longID)
	assert.ErrorIs(t, err, aerrors.ErrTokenNotFound)
	_, err = f.store.GetToken(ctx, domain.TokenStorageID(longID))
	assert.NoError(t, err)
}

func TestShortTokenIDsStoredVerbatim(t *testing.T) {
	id := strings.Repeat("a", domain.TokenIDHashThreshold)
	assert.Equal(t, id, domain.TokenStorageID(id))
	assert.NotEqual(t, id+"b", domain.TokenStorageID(id+"b"))
}

func TestGetTokenLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := f.tokens.Issue(ctx, &domain.Token{
		ID:        "expired-token",
		UserID:    "u1",
		IssuedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	// Invisible to readers before any sweep runs.
	_, err = f.tokens.GetToken(ctx, "expired-token")
	assert.ErrorIs(t, err, aerrors.ErrTokenNotFound)

	flushed, err := f.tokens.FlushExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flushed)
}

func TestDeleteTokensEmptyMatchIsNoop(t *testing.T) {
	f := newFixture(t)

	n, err := f.tokens.DeleteTokens(context.Background(), "nobody", "", "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteTokensNarrowsByProjectAndTrust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tokens.Issue(ctx, &domain.Token{ID: "t1", UserID: "u1", ProjectID: "p1"})
	require.NoError(t, err)
	_, err = f.tokens.Issue(ctx, &domain.Token{ID: "t2", UserID: "u1", ProjectID: "p2"})
	require.NoError(t, err)
	_, err = f.tokens.Issue(ctx, &domain.Token{ID: "t3", UserID: "u2", ProjectID: "p1"})
	require.NoError(t, err)

	n, err := f.tokens.DeleteTokens(ctx, "u1", "p1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.tokens.GetToken(ctx, "t2")
	assert.NoError(t, err)
	_, err = f.tokens.GetToken(ctx, "t3")
	assert.NoError(t, err)
}

func TestValidateTokenScopeCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.tokens.Issue(ctx, &domain.Token{UserID: "u1", ProjectID: "p1"})
	require.NoError(t, err)

	got, err := f.tokens.ValidateToken(ctx, token.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProjectID)

	_, err = f.tokens.ValidateToken(ctx, token.ID, "p2")
	assert.ErrorIs(t, err, aerrors.ErrTokenNotFound)
}

func TestValidateTokenHonorsIssuedBeforeCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	older, err := f.tokens.Issue(ctx, &domain.Token{
		UserID:   "u1",
		IssuedAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	require.NoError(t, f.revocations.Emit(ctx, EventFilter{UserID: "u1", IssuedBefore: now}))

	newer, err := f.tokens.Issue(ctx, &domain.Token{
		UserID:   "u1",
		IssuedAt: now.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = f.tokens.ValidateToken(ctx, older.ID, "")
	assert.ErrorIs(t, err, aerrors.ErrTokenNotFound)
	_, err = f.tokens.ValidateToken(ctx, newer.ID, "")
	assert.NoError(t, err)
}

func TestRevocationEventViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, f.revocations.Emit(ctx, EventFilter{UserID: "u1", IssuedBefore: now.Add(-time.Hour)}))
	require.NoError(t, f.revocations.Emit(ctx, EventFilter{UserID: "u2", IssuedBefore: now}))

	all, err := f.tokens.ListRevoked(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// The change feed only returns events with a cutoff strictly after since.
	recent, err := f.tokens.ListRevocationEvents(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "u2", recent[0].UserID)
}
