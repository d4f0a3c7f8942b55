package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	aerrors "go.pilab.hu/accord/errors"
)

var replaceUpsert = options.Replace().SetUpsert(true)

// translateWriteErr maps duplicate-key violations onto ErrConflict so the
// service layer never sees driver error types.
func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return aerrors.ErrConflict
	}
	return fmt.Errorf("write failed: %w", err)
}

// findAll runs a filter query and decodes every document.
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any) ([]*T, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*T
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode failed: %w", err)
		}
		out = append(out, &doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor failed: %w", err)
	}
	return out, nil
}
