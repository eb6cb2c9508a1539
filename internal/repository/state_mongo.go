package repository

import (
	"context"
	"fmt"

	"forgebot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoStateStore keeps the singleton documents in one small collection.
type mongoStateStore struct {
	coll *mongo.Collection
}

func (s *mongoStateStore) GetEvent(ctx context.Context) (*model.GlobalEvent, error) {
	var e model.GlobalEvent
	err := s.coll.FindOne(ctx, bson.M{"_id": model.GlobalEventDocID}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global event: %w", err)
	}
	return &e, nil
}

func (s *mongoStateStore) SetEvent(ctx context.Context, e *model.GlobalEvent) error {
	e.ID = model.GlobalEventDocID
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": model.GlobalEventDocID}, e, opts); err != nil {
		return fmt.Errorf("failed to set global event: %w", err)
	}
	return nil
}

func (s *mongoStateStore) ClearEvent(ctx context.Context) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": model.GlobalEventDocID}); err != nil {
		return fmt.Errorf("failed to clear global event: %w", err)
	}
	return nil
}

func (s *mongoStateStore) GetWar(ctx context.Context) (*model.ClanWar, error) {
	var w model.ClanWar
	err := s.coll.FindOne(ctx, bson.M{"_id": model.ClanWarDocID}).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clan war: %w", err)
	}
	return &w, nil
}

// InitWar uses $setOnInsert so concurrent initializers collapse into one
// idempotent write.
func (s *mongoStateStore) InitWar(ctx context.Context, w *model.ClanWar) error {
	opts := options.Update().SetUpsert(true)
	update := bson.M{"$setOnInsert": bson.M{"ends_at": w.EndsAt}}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": model.ClanWarDocID}, update, opts); err != nil {
		return fmt.Errorf("failed to init clan war: %w", err)
	}
	return nil
}

func (s *mongoStateStore) SetWar(ctx context.Context, w *model.ClanWar) error {
	w.ID = model.ClanWarDocID
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": model.ClanWarDocID}, w, opts); err != nil {
		return fmt.Errorf("failed to set clan war: %w", err)
	}
	return nil
}
