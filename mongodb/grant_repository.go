package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

// grantDoc wraps a Grant with its uniqueness key as the document id, so a
// concurrent duplicate create fails on the primary key instead of needing a
// read-then-write cycle.
type grantDoc struct {
	ID string `bson:"_id"`
	domain.Grant `bson:",inline"`
}

type GrantRepository struct {
	coll *mongo.Collection
}

func NewGrantRepository(db *mongo.Database) domain.GrantRepository {
	return &GrantRepository{coll: db.Collection(GrantsCollection)}
}

func (r *GrantRepository) CreateGrant(ctx context.Context, g *domain.Grant) error {
	_, err := r.coll.InsertOne(ctx, grantDoc{ID: g.Key(), Grant: *g})
	return translateWriteErr(err)
}

func (r *GrantRepository) DeleteGrant(ctx context.Context, actor domain.Actor, target domain.Target, roleID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": domain.GrantKey(actor, target, roleID)})
	if err != nil {
		return fmt.Errorf("grant delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrGrantNotFound
	}
	return nil
}

func (r *GrantRepository) ListGrantsByActorTarget(ctx context.Context, actor domain.Actor, target domain.Target) ([]*domain.Grant, error) {
	return r.list(ctx, bson.M{
		"actor.kind":  actor.Kind,
		"actor.id":    actor.ID,
		"target.kind": target.Kind,
		"target.id":   target.ID,
	})
}

func (r *GrantRepository) ListGrantsByActor(ctx context.Context, actor domain.Actor) ([]*domain.Grant, error) {
	return r.list(ctx, bson.M{"actor.kind": actor.Kind, "actor.id": actor.ID})
}

func (r *GrantRepository) ListGrantsByRole(ctx context.Context, roleID string) ([]*domain.Grant, error) {
	return r.list(ctx, bson.M{"role_id": roleID})
}

func (r *GrantRepository) ListGrantsByTarget(ctx context.Context, target domain.Target) ([]*domain.Grant, error) {
	return r.list(ctx, bson.M{"target.kind": target.Kind, "target.id": target.ID})
}

func (r *GrantRepository) DeleteGrantsByRole(ctx context.Context, roleID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"role_id": roleID})
	if err != nil {
		return fmt.Errorf("grant cascade failed: %w", err)
	}
	return nil
}

func (r *GrantRepository) DeleteGrantsByActor(ctx context.Context, actor domain.Actor) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"actor.kind": actor.Kind, "actor.id": actor.ID})
	if err != nil {
		return fmt.Errorf("grant cascade failed: %w", err)
	}
	return nil
}

func (r *GrantRepository) DeleteGrantsByTarget(ctx context.Context, target domain.Target) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"target.kind": target.Kind, "target.id": target.ID})
	if err != nil {
		return fmt.Errorf("grant cascade failed: %w", err)
	}
	return nil
}

func (r *GrantRepository) list(ctx context.Context, filter bson.M) ([]*domain.Grant, error) {
	docs, err := findAll[grantDoc](ctx, r.coll, filter)
	if err != nil {
		return nil, err
	}
	grants := make([]*domain.Grant, 0, len(docs))
	for _, d := range docs {
		g := d.Grant
		grants = append(grants, &g)
	}
	return grants, nil
}
