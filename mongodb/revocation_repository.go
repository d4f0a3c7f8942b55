package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/accord/domain"
)

type RevocationEventRepository struct {
	coll *mongo.Collection
}

func NewRevocationEventRepository(db *mongo.Database) domain.RevocationEventRepository {
	return &RevocationEventRepository{coll: db.Collection(RevocationEventsCollection)}
}

func (r *RevocationEventRepository) AppendEvent(ctx context.Context, e *domain.RevocationEvent) error {
	_, err := r.coll.InsertOne(ctx, e)
	return translateWriteErr(err)
}

func (r *RevocationEventRepository) ListEvents(ctx context.Context, since time.Time) ([]*domain.RevocationEvent, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["issued_before"] = bson.M{"$gt": since}
	}
	return findAll[domain.RevocationEvent](ctx, r.coll, filter)
}

func (r *RevocationEventRepository) PruneEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"issued_before": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, fmt.Errorf("event prune failed: %w", err)
	}
	return res.DeletedCount, nil
}
