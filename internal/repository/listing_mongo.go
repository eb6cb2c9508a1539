package repository

import (
	"context"
	"fmt"
	"sort"

	"forgebot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoListingStore implements ListingStore on one MongoDB collection. The
// listing id is the document _id, so uniqueness is enforced by the
// collection itself; NextID can lose a race and Insert reports it.
type mongoListingStore struct {
	coll *mongo.Collection
}

func (s *mongoListingStore) NextID(ctx context.Context) (int64, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to scan listing ids: %w", err)
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			ID int64 `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return 0, err
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	return lowestFreeID(ids), nil
}

// lowestFreeID returns the first gap in the sorted 1..N sequence, or N+1.
// Short listing ids stay human-typeable in chat.
func lowestFreeID(ids []int64) int64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	next := int64(1)
	for _, id := range ids {
		if id < next {
			continue
		}
		if id > next {
			break
		}
		next++
	}
	return next
}

func (s *mongoListingStore) Insert(ctx context.Context, l model.Listing) error {
	_, err := s.coll.InsertOne(ctx, l)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateListingID
	}
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (s *mongoListingStore) Purchase(ctx context.Context, id int64) (*model.Listing, error) {
	var l model.Listing
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&l)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to purchase listing: %w", err)
	}
	return &l, nil
}

func (s *mongoListingStore) Remove(ctx context.Context, id int64, seller string) (*model.Listing, error) {
	var l model.Listing
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": id, "seller": seller}).Decode(&l)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove listing: %w", err)
	}
	return &l, nil
}

func (s *mongoListingStore) Get(ctx context.Context, id int64) (*model.Listing, error) {
	var l model.Listing
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

func (s *mongoListingStore) All(ctx context.Context) ([]model.Listing, error) {
	return s.find(ctx, bson.M{})
}

func (s *mongoListingStore) BySeller(ctx context.Context, seller string) ([]model.Listing, error) {
	return s.find(ctx, bson.M{"seller": seller})
}

func (s *mongoListingStore) ByItem(ctx context.Context, item string) ([]model.Listing, error) {
	return s.find(ctx, bson.M{"item": item})
}

func (s *mongoListingStore) find(ctx context.Context, filter bson.M) ([]model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Listing
	for cur.Next(ctx) {
		var l model.Listing
		if err := cur.Decode(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, cur.Err()
}
