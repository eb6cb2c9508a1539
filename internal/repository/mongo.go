package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	collAccounts = "accounts"
	collMarket   = "market_listings"
	collCrates   = "crate_listings"
	collClans    = "clans"
	collState    = "server_state"
)

// Mongo owns the client connection and hands out the per-collection stores.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects, verifies the connection and ensures indexes.
func NewMongo(uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	m := &Mongo{client: client, db: db}
	m.ensureIndexes(ctx)

	log.Printf("[MongoDB] Connected to %s", database)
	return m, nil
}

// ensureIndexes creates the uniqueness backstops. The listing-id uniqueness
// comes from _id itself; the secondary indexes here cover lookups and the
// clan name constraint. Index failures are logged, not fatal: the documents
// may predate the index and the admin has to resolve that by hand.
func (m *Mongo) ensureIndexes(ctx context.Context) {
	accounts := m.db.Collection(collAccounts)
	if _, err := accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "discord_id", Value: 1}},
		Options: options.Index().SetSparse(true),
	}); err != nil {
		log.Printf("[MongoDB] Warning: failed to create discord_id index: %v", err)
	}
	if _, err := accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "smelting.finish_at", Value: 1}},
		Options: options.Index().SetSparse(true),
	}); err != nil {
		log.Printf("[MongoDB] Warning: failed to create smelting index: %v", err)
	}

	clans := m.db.Collection(collClans)
	if _, err := clans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name_lower", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		log.Printf("[MongoDB] Warning: failed to create clan name index: %v", err)
	}
	if _, err := clans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "members", Value: 1}},
	}); err != nil {
		log.Printf("[MongoDB] Warning: failed to create clan members index: %v", err)
	}
}

// Stores returns the store bundle backed by this connection.
func (m *Mongo) Stores(roll func() float64) Stores {
	return Stores{
		Accounts: &mongoAccountStore{client: m.client, coll: m.db.Collection(collAccounts), roll: roll},
		Market:   &mongoListingStore{coll: m.db.Collection(collMarket)},
		Crates:   &mongoListingStore{coll: m.db.Collection(collCrates)},
		Clans:    &mongoClanStore{coll: m.db.Collection(collClans)},
		State:    &mongoStateStore{coll: m.db.Collection(collState)},
	}
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
