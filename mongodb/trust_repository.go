package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

type TrustRepository struct {
	coll *mongo.Collection
}

func NewTrustRepository(db *mongo.Database) domain.TrustRepository {
	return &TrustRepository{coll: db.Collection(TrustsCollection)}
}

func (r *TrustRepository) CreateTrust(ctx context.Context, t *domain.Trust) error {
	_, err := r.coll.InsertOne(ctx, t)
	return translateWriteErr(err)
}

func (r *TrustRepository) GetTrust(ctx context.Context, id string) (*domain.Trust, error) {
	var t domain.Trust
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrTrustNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("trust lookup failed: %w", err)
	}
	return &t, nil
}

func (r *TrustRepository) DeleteTrust(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("trust delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrTrustNotFound
	}
	return nil
}

func (r *TrustRepository) ListTrustsByTrustor(ctx context.Context, trustorUserID string) ([]*domain.Trust, error) {
	return findAll[domain.Trust](ctx, r.coll, bson.M{"trustor_user_id": trustorUserID})
}

func (r *TrustRepository) ListTrustsByTrustee(ctx context.Context, trusteeUserID string) ([]*domain.Trust, error) {
	return findAll[domain.Trust](ctx, r.coll, bson.M{"trustee_user_id": trusteeUserID})
}

// ConsumeTrustUse decrements remaining uses with a filtered update so two
// callers racing the last use cannot both win. The decrement only matches
// while the counter is positive; a miss is then classified by a follow-up
// read.
func (r *TrustRepository) ConsumeTrustUse(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "remaining_uses": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"remaining_uses": -1}})
	if err != nil {
		return fmt.Errorf("trust consume failed: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	t, err := r.GetTrust(ctx, id)
	if err != nil {
		return err
	}
	if t.RemainingUses == nil {
		return nil
	}
	return aerrors.ErrTrustConsumed
}
