package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/accord/domain"
)

// caseInsensitive is the collation used for domain and project name
// uniqueness: strength 2 compares base characters and case-insensitively.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// EnsureIndexes creates the uniqueness and lookup indexes the repositories
// rely on. Safe to call repeatedly; index creation is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		DomainsCollection: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
			},
		},
		ProjectsCollection: {
			{
				Keys:    bson.D{{Key: "domain_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
			},
		},
		UsersCollection: {
			{
				Keys:    bson.D{{Key: "domain_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		GroupsCollection: {
			{
				Keys:    bson.D{{Key: "domain_id", Value: 1}, {Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		RolesCollection: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		GrantsCollection: {
			{Keys: bson.D{{Key: "actor.kind", Value: 1}, {Key: "actor.id", Value: 1}}},
			{Keys: bson.D{{Key: "target.kind", Value: 1}, {Key: "target.id", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
		},
		TokensCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		RevocationEventsCollection: {
			{Keys: bson.D{{Key: "issued_before", Value: 1}}},
		},
		TrustsCollection: {
			{Keys: bson.D{{Key: "trustor_user_id", Value: 1}}},
			{Keys: bson.D{{Key: "trustee_user_id", Value: 1}}},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", coll, err)
		}
	}
	return nil
}

// SeedDefaultDomain inserts the default domain if it is missing, matching
// the seeding the memory store does at construction. $setOnInsert only
// writes the document on first boot, so an admin's later rename or disable
// of the default domain survives restarts.
func SeedDefaultDomain(ctx context.Context, db *mongo.Database) error {
	now := time.Now().UTC()
	_, err := db.Collection(DomainsCollection).UpdateOne(ctx,
		bson.M{"_id": domain.DefaultDomainID},
		bson.M{"$setOnInsert": &domain.Domain{
			ID:        domain.DefaultDomainID,
			Name:      "Default",
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to seed default domain: %w", err)
	}
	return nil
}
