package repository

import (
	"context"
	"fmt"
	"time"

	"forgebot/internal/content"
	"forgebot/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoAccountStore implements AccountStore on a MongoDB collection.
type mongoAccountStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	roll   func() float64
}

func (s *mongoAccountStore) Get(ctx context.Context, identity string) (*model.Account, error) {
	id := model.CanonicalID(identity)
	filter := bson.M{"$or": bson.A{
		bson.M{"_id": id},
		bson.M{"discord_id": identity},
	}}

	var acc model.Account
	err := s.coll.FindOne(ctx, filter).Decode(&acc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	s.heal(ctx, &acc)
	return &acc, nil
}

// heal backfills fields that predate schema changes and persists them, so
// the rest of the code can rely on their presence.
func (s *mongoAccountStore) heal(ctx context.Context, acc *model.Account) {
	patch := bson.M{}
	if acc.Inventory == nil {
		acc.Inventory = map[string]int64{}
		patch["inventory"] = acc.Inventory
	}
	if len(acc.Traits) == 0 {
		acc.Traits = content.RollTraits(s.roll)
		patch["traits"] = acc.Traits
	}
	if len(patch) == 0 {
		return
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": acc.ID}, bson.M{"$set": patch}); err != nil {
		// Healing is best effort; the in-memory copy is already usable.
		_ = err
	}
}

func (s *mongoAccountStore) Create(ctx context.Context, acc *model.Account) error {
	acc.ID = model.CanonicalID(acc.ID)
	if acc.Inventory == nil {
		acc.Inventory = map[string]int64{}
	}
	_, err := s.coll.InsertOne(ctx, acc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *mongoAccountStore) SetFields(ctx context.Context, id string, u AccountUpdate) error {
	set := bson.M{}
	unset := bson.M{}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.DiscordID != nil {
		set["discord_id"] = *u.DiscordID
	}
	if u.LastWork != nil {
		set["last_work"] = *u.LastWork
	}
	if u.LastGather != nil {
		set["last_gather"] = *u.LastGather
	}
	if u.LastDaily != nil {
		set["last_daily"] = *u.LastDaily
	}
	if u.LastHourly != nil {
		set["last_hourly"] = *u.LastHourly
	}
	if u.LastSlots != nil {
		set["last_slots"] = *u.LastSlots
	}
	if u.DailyStreak != nil {
		set["daily_streak"] = *u.DailyStreak
	}
	if u.HourlyStreak != nil {
		set["hourly_streak"] = *u.HourlyStreak
	}
	if u.Buffs != nil {
		set["active_buffs"] = *u.Buffs
	}
	if u.Traits != nil {
		set["traits"] = *u.Traits
	}
	if u.ClanID != nil {
		if *u.ClanID == "" {
			unset["clan_id"] = ""
		} else {
			set["clan_id"] = *u.ClanID
		}
	}
	if u.ClanJoinCooldown != nil {
		set["clan_join_cooldown"] = *u.ClanJoinCooldown
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": model.CanonicalID(id)}, update)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoAccountStore) IncrementBalance(ctx context.Context, id string, delta, min float64) error {
	filter := bson.M{"_id": model.CanonicalID(id)}
	if min >= 0 {
		filter["balance"] = bson.M{"$gte": min}
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"balance": delta}})
	if err != nil {
		return fmt.Errorf("failed to increment balance: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrGuardFailed
	}
	return nil
}

func (s *mongoAccountStore) IncrementItem(ctx context.Context, id, item string, delta, min int64) error {
	field := "inventory." + item
	filter := bson.M{"_id": model.CanonicalID(id)}
	if min > 0 {
		filter[field] = bson.M{"$gte": min}
	} else if min == 0 {
		// Zero minimum still forbids driving an absent slot negative.
		if delta < 0 {
			filter[field] = bson.M{"$gte": -delta}
		}
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return fmt.Errorf("failed to increment inventory: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrGuardFailed
	}
	return nil
}

func (s *mongoAccountStore) StartSmelt(ctx context.Context, id, input string, inputQty, coalCost int64, job model.SmeltJob) error {
	filter := bson.M{
		"_id":                model.CanonicalID(id),
		"inventory." + input: bson.M{"$gte": inputQty},
		"inventory.coal":     bson.M{"$gte": coalCost},
		"smelting":           bson.M{"$exists": false},
	}
	update := bson.M{
		"$inc": bson.M{
			"inventory." + input: -inputQty,
			"inventory.coal":     -coalCost,
		},
		"$set": bson.M{"smelting": job},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to start smelt: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrGuardFailed
	}
	return nil
}

func (s *mongoAccountStore) ClearSmelt(ctx context.Context, id string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": model.CanonicalID(id), "smelting": bson.M{"$exists": true}},
		bson.M{"$unset": bson.M{"smelting": ""}})
	if err != nil {
		return fmt.Errorf("failed to clear smelt: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrGuardFailed
	}
	return nil
}

func (s *mongoAccountStore) FinishedSmelts(ctx context.Context, now time.Time) ([]*model.Account, error) {
	cur, err := s.coll.Find(ctx, bson.M{"smelting.finish_at": bson.M{"$lte": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to query finished smelts: %w", err)
	}
	defer cur.Close(ctx)

	var out []*model.Account
	for cur.Next(ctx) {
		var acc model.Account
		if err := cur.Decode(&acc); err != nil {
			return nil, err
		}
		out = append(out, &acc)
	}
	return out, cur.Err()
}

// CommitMerge runs the replace+delete inside a session transaction: the one
// place the storage layer supports real multi-document atomicity.
func (s *mongoAccountStore) CommitMerge(ctx context.Context, merged *model.Account, absorbedID string) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.coll.ReplaceOne(sc, bson.M{"_id": merged.ID}, merged); err != nil {
			return nil, err
		}
		if _, err := s.coll.DeleteOne(sc, bson.M{"_id": model.CanonicalID(absorbedID)}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("merge transaction failed: %w", err)
	}
	return nil
}

func (s *mongoAccountStore) Top(ctx context.Context, n int) ([]*model.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "balance", Value: -1}}).SetLimit(int64(n))
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer cur.Close(ctx)

	var out []*model.Account
	for cur.Next(ctx) {
		var acc model.Account
		if err := cur.Decode(&acc); err != nil {
			return nil, err
		}
		out = append(out, &acc)
	}
	return out, cur.Err()
}

func (s *mongoAccountStore) All(ctx context.Context) ([]*model.Account, error) {
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer cur.Close(ctx)

	var out []*model.Account
	for cur.Next(ctx) {
		var acc model.Account
		if err := cur.Decode(&acc); err != nil {
			return nil, err
		}
		out = append(out, &acc)
	}
	return out, cur.Err()
}

func (s *mongoAccountStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": model.CanonicalID(id)})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
