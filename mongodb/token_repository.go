package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
)

// tokenDoc keys the token by its storage id, which is the raw id or its
// content hash for oversized ids. The embedded token keeps the original id.
type tokenDoc struct {
	StorageID string `bson:"_id"`
	domain.Token `bson:",inline"`
}

type TokenRepository struct {
	coll *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) domain.TokenRepository {
	return &TokenRepository{coll: db.Collection(TokensCollection)}
}

func (r *TokenRepository) StoreToken(ctx context.Context, storageID string, t *domain.Token) error {
	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": storageID},
		tokenDoc{StorageID: storageID, Token: *t},
		replaceUpsert)
	if err != nil {
		return fmt.Errorf("token store failed: %w", err)
	}
	return nil
}

func (r *TokenRepository) GetToken(ctx context.Context, storageID string) (*domain.Token, error) {
	var doc tokenDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": storageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, aerrors.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}
	t := doc.Token
	return &t, nil
}

func (r *TokenRepository) DeleteToken(ctx context.Context, storageID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": storageID})
	if err != nil {
		return fmt.Errorf("token delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return aerrors.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) DeleteTokens(ctx context.Context, userID, projectID, trustID string) (int64, error) {
	filter := bson.M{"user_id": userID}
	if projectID != "" {
		filter["project_id"] = projectID
	}
	if trustID != "" {
		filter["trust_id"] = trustID
	}
	res, err := r.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("token batch delete failed: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("token sweep failed: %w", err)
	}
	return res.DeletedCount, nil
}
