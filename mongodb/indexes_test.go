package mongodb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/accord/domain"
	"go.pilab.hu/accord/mongodb/testutil"
)

func TestSeedDefaultDomain(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "accord_seed")
	defer cleanup()
	ctx := context.Background()
	repo := NewDomainRepository(db)

	require.NoError(t, SeedDefaultDomain(ctx, db))

	d, err := repo.GetDomainByID(ctx, domain.DefaultDomainID)
	require.NoError(t, err)
	assert.Equal(t, "Default", d.Name)
	assert.True(t, d.Enabled)

	// An admin's changes to the default domain survive re-seeding on the
	// next boot.
	d.Name = "Corp"
	d.Enabled = false
	require.NoError(t, repo.UpdateDomain(ctx, d))
	require.NoError(t, SeedDefaultDomain(ctx, db))

	again, err := repo.GetDomainByID(ctx, domain.DefaultDomainID)
	require.NoError(t, err)
	assert.Equal(t, "Corp", again.Name)
	assert.False(t, again.Enabled)
}
