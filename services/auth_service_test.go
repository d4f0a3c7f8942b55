package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

func TestAuthenticateByNameUsesDefaultDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.mustUser(t, domain.DefaultDomainID, "alice", "s3cret")

	token, err := f.auth.Authenticate(ctx, AuthRequest{
		UserName: "alice",
		Password: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, token.UserID)
	assert.Empty(t, token.ProjectID)
	assert.Empty(t, token.DomainID)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.mustUser(t, domain.DefaultDomainID, "alice", "s3cret")

	_, err := f.auth.Authenticate(ctx, AuthRequest{UserID: user.ID, Password: "wrong"})
	assert.ErrorIs(t, err, aerrors.ErrUnauthorized)

	_, err = f.auth.Authenticate(ctx, AuthRequest{UserName: "nobody", Password: "s3cret"})
	assert.ErrorIs(t, err, aerrors.ErrUserNotFound)

	_, err = f.auth.Authenticate(ctx, AuthRequest{Password: "s3cret"})
	assert.ErrorIs(t, err, aerrors.ErrValidation)
}

func TestAuthenticateRejectsDisabledUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.mustUser(t, domain.DefaultDomainID, "alice", "s3cret")
	disabled := false
	_, err := f.registry.UpdateUser(ctx, user.ID, UserUpdate{Enabled: &disabled})
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, AuthRequest{UserID: user.ID, Password: "s3cret"})
	assert.ErrorIs(t, err, aerrors.ErrUnauthorized)
}

func TestAuthenticateProjectScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dom := f.mustDomain(t, "ops")
	project := f.mustProject(t, dom.ID, "fleet")
	user := f.mustUser(t, dom.ID, "alice", "s3cret")
	role := f.mustRole(t, "viewer")

	// No role on the project yet: scope denied.
	_, err := f.auth.Authenticate(ctx, AuthRequest{
		UserID:         user.ID,
		Password:       "s3cret",
		ScopeProjectID: project.ID,
	})
	assert.ErrorIs(t, err, aerrors.ErrForbidden)

	f.mustGrant(t, role.ID, domain.UserActor(user.ID), domain.ProjectTarget(project.ID), false)

	token, err := f.auth.Authenticate(ctx, AuthRequest{
		UserID:         user.ID,
		Password:       "s3cret",
		ScopeProjectID: project.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, project.ID, token.ProjectID)
	assert.Equal(t, []string{role.ID}, token.Roles)

	// Both scopes at once is a caller error.
	_, err = f.auth.Authenticate(ctx, AuthRequest{
		UserID:         user.ID,
		Password:       "s3cret",
		ScopeProjectID: project.ID,
		ScopeDomainID:  dom.ID,
	})
	assert.ErrorIs(t, err, aerrors.ErrValidation)
}

func TestAuthenticateRejectsDisabledScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dom := f.mustDomain(t, "ops")
	project := f.mustProject(t, dom.ID, "fleet")
	user := f.mustUser(t, dom.ID, "alice", "s3cret")
	role := f.mustRole(t, "viewer")
	f.mustGrant(t, role.ID, domain.UserActor(user.ID), domain.ProjectTarget(project.ID), false)

	disabled := false
	_, err := f.registry.UpdateProject(ctx, project.ID, ProjectUpdate{Enabled: &disabled})
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, AuthRequest{
		UserID:         user.ID,
		Password:       "s3cret",
		ScopeProjectID: project.ID,
	})
	assert.ErrorIs(t, err, aerrors.ErrForbidden)
}

func TestAuthenticateDomainScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dom := f.mustDomain(t, "ops")
	user := f.mustUser(t, dom.ID, "alice", "s3cret")
	role := f.mustRole(t, "domain-admin")
	f.mustGrant(t, role.ID, domain.UserActor(user.ID), domain.DomainTarget(dom.ID), false)

	token, err := f.auth.Authenticate(ctx, AuthRequest{
		UserID:        user.ID,
		Password:      "s3cret",
		ScopeDomainID: dom.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, dom.ID, token.DomainID)
	assert.Equal(t, []string{role.ID}, token.Roles)
}

func TestChangePasswordRevokesPriorTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.mustUser(t, domain.DefaultDomainID, "alice", "s3cret")

	old, err := f.auth.Authenticate(ctx, AuthRequest{UserID: user.ID, Password: "s3cret"})
	require.NoError(t, err)

	err = f.auth.ChangePassword(ctx, user.ID, "wrong", "n3w-secret")
	assert.ErrorIs(t, err, aerrors.ErrUnauthorized)

	require.NoError(t, f.auth.ChangePassword(ctx, user.ID, "s3cret", "n3w-secret"))

	_, err = f.tokens.ValidateToken(ctx, old.ID, "")
	assert.ErrorIs(t, err, aerrors.ErrTokenNotFound)

	_, err = f.auth.Authenticate(ctx, AuthRequest{UserID: user.ID, Password: "s3cret"})
	assert.ErrorIs(t, err, aerrors.ErrUnauthorized)
	fresh, err := f.auth.Authenticate(ctx, AuthRequest{UserID: user.ID, Password: "n3w-secret"})
	require.NoError(t, err)

	_, err = f.tokens.ValidateToken(ctx, fresh.ID, "")
	assert.NoError(t, err)
}

func TestSignedTokenIDsRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	signer := NewTokenSigner("test-signing-key", "accord-test")
	signedAuth := NewAuthService(
		f.store, f.store, f.store,
		f.assignments, f.tokens, f.revocations,
		fakeHasher{}, signer)

	user := f.mustUser(t, domain.DefaultDomainID, "alice", "s3cret")

	token, err := signedAuth.Authenticate(ctx, AuthRequest{UserID: user.ID, Password: "s3cret"})
	require.NoError(t, err)

	// Signed ids are structured, oversized, and therefore hash-stored.
	assert.Equal(t, 3, len(strings.Split(token.ID, ".")))
	assert.Greater(t, len(token.ID), domain.TokenIDHashThreshold)
	assert.NotEqual(t, token.ID, domain.TokenStorageID(token.ID))

	claims, err := signer.Verify(token.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims["sub"])

	got, err := f.tokens.ValidateToken(ctx, token.ID, "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)
}
