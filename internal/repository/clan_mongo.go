package repository

import (
	"context"
	"fmt"

	"forgebot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoClanStore implements ClanStore on a MongoDB collection.
type mongoClanStore struct {
	coll *mongo.Collection
}

func (s *mongoClanStore) Create(ctx context.Context, c *model.Clan) error {
	c.NameLower = model.CanonicalID(c.Name)
	_, err := s.coll.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create clan: %w", err)
	}
	return nil
}

func (s *mongoClanStore) Get(ctx context.Context, code string) (*model.Clan, error) {
	var c model.Clan
	err := s.coll.FindOne(ctx, bson.M{"_id": code}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clan: %w", err)
	}
	return &c, nil
}

func (s *mongoClanStore) All(ctx context.Context) ([]model.Clan, error) {
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query clans: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Clan
	for cur.Next(ctx) {
		var c model.Clan
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cur.Err()
}

func (s *mongoClanStore) SetFields(ctx context.Context, code string, u ClanUpdate) error {
	set := bson.M{}
	if u.OwnerID != nil {
		set["owner_id"] = *u.OwnerID
	}
	if u.Level != nil {
		set["level"] = *u.Level
	}
	if u.Recruitment != nil {
		set["recruitment"] = *u.Recruitment
	}
	if len(set) == 0 {
		return nil
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": code}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update clan: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoClanStore) AddMember(ctx context.Context, code, member string, maxMembers int) error {
	filter := bson.M{
		"_id":     code,
		"members": bson.M{"$ne": member},
		fmt.Sprintf("members.%d", maxMembers-1): bson.M{"$exists": false},
	}
	update := bson.M{
		"$addToSet": bson.M{"members": member},
		"$pull":     bson.M{"applicants": member, "invites": member},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to add clan member: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrGuardFailed
	}
	return nil
}

func (s *mongoClanStore) RemoveMember(ctx context.Context, code, member string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": code}, bson.M{"$pull": bson.M{"members": member}})
	if err != nil {
		return fmt.Errorf("failed to remove clan member: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoClanStore) PushList(ctx context.Context, code string, list ClanList, member string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": code}, bson.M{"$addToSet": bson.M{string(list): member}})
	if err != nil {
		return fmt.Errorf("failed to push clan %s: %w", list, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoClanStore) PullList(ctx context.Context, code string, list ClanList, member string) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": code}, bson.M{"$pull": bson.M{string(list): member}})
	if err != nil {
		return fmt.Errorf("failed to pull clan %s: %w", list, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoClanStore) IncrementVault(ctx context.Context, code string, delta, min float64) error {
	filter := bson.M{"_id": code}
	if min >= 0 {
		filter["vault"] = bson.M{"$gte": min}
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"vault": delta}})
	if err != nil {
		return fmt.Errorf("failed to increment vault: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrGuardFailed
	}
	return nil
}

func (s *mongoClanStore) AddWarPoints(ctx context.Context, code string, points int64) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": code}, bson.M{"$inc": bson.M{"war_points": points}})
	if err != nil {
		return fmt.Errorf("failed to add war points: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoClanStore) ResetAllWarPoints(ctx context.Context) error {
	_, err := s.coll.UpdateMany(ctx, bson.M{}, bson.M{"$set": bson.M{"war_points": int64(0)}})
	if err != nil {
		return fmt.Errorf("failed to reset war points: %w", err)
	}
	return nil
}

func (s *mongoClanStore) Delete(ctx context.Context, code string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": code})
	if err != nil {
		return fmt.Errorf("failed to delete clan: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
