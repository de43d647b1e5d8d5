package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBStore implements Store using MongoDB. A dedicated
// used_signatures collection with a unique index provides the durable
// replay backstop.
type MongoDBStore struct {
	client         *mongo.Client
	beacons        *mongo.Collection
	tips           *mongo.Collection
	platformTxs    *mongo.Collection
	usedSignatures *mongo.Collection
}

// NewMongoDBStore creates a new MongoDB-backed store.
func NewMongoDBStore(connectionString, database string) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		// Disconnect() error during initialization cleanup is not
		// actionable; the connection failure is the real error.
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	store := &MongoDBStore{
		client:         client,
		beacons:        db.Collection("beacons"),
		tips:           db.Collection("tips"),
		platformTxs:    db.Collection("platform_transactions"),
		usedSignatures: db.Collection("used_signatures"),
	}

	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// createIndexes creates necessary indexes for collections.
func (s *MongoDBStore) createIndexes(ctx context.Context) error {
	_, err := s.usedSignatures.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "signature", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create used_signatures index: %w", err)
	}

	_, err = s.beacons.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "signature", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create beacons indexes: %w", err)
	}

	_, err = s.tips.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "from_wallet", Value: 1}}},
		{Keys: bson.D{{Key: "to_wallet", Value: 1}}},
		{Keys: bson.D{{Key: "signature", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create tips indexes: %w", err)
	}

	_, err = s.platformTxs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_wallet", Value: 1}}},
		{Keys: bson.D{{Key: "signature", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create platform transactions indexes: %w", err)
	}
	return nil
}

// reserveSignature claims a signature in the used_signatures
// collection. The unique index makes concurrent claims race-safe.
func (s *MongoDBStore) reserveSignature(ctx context.Context, signature string) error {
	_, err := s.usedSignatures.InsertOne(ctx, bson.M{
		"signature":   signature,
		"recorded_at": time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateSignature
	}
	return err
}

// SaveBeacon persists a beacon after reserving its payment signature.
func (s *MongoDBStore) SaveBeacon(ctx context.Context, beacon Beacon) error {
	if beacon.ID == "" {
		return errors.New("storage: beacon id required")
	}
	if err := s.reserveSignature(ctx, beacon.Signature); err != nil {
		return err
	}
	if _, err := s.beacons.InsertOne(ctx, beacon); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert beacon: %w", err)
	}
	return nil
}

// GetBeacon retrieves a beacon by ID.
func (s *MongoDBStore) GetBeacon(ctx context.Context, id string) (Beacon, error) {
	var b Beacon
	err := s.beacons.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return Beacon{}, ErrNotFound
	}
	if err != nil {
		return Beacon{}, fmt.Errorf("get beacon: %w", err)
	}
	return b, nil
}

// ListBeacons returns beacons newest-first, capped at limit.
func (s *MongoDBStore) ListBeacons(ctx context.Context, limit int) ([]Beacon, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.beacons.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list beacons: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Beacon
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode beacons: %w", err)
	}
	return out, nil
}

// SaveTip persists a tip after reserving its payment signature.
func (s *MongoDBStore) SaveTip(ctx context.Context, tip Tip) error {
	if tip.ID == "" {
		return errors.New("storage: tip id required")
	}
	if err := s.reserveSignature(ctx, tip.Signature); err != nil {
		return err
	}
	if _, err := s.tips.InsertOne(ctx, tip); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert tip: %w", err)
	}
	return nil
}

// ListTipsForWallet returns tips sent to or from the wallet,
// newest-first, capped at limit.
func (s *MongoDBStore) ListTipsForWallet(ctx context.Context, wallet string, limit int) ([]Tip, error) {
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{"$or": []bson.M{
		{"from_wallet": wallet},
		{"to_wallet": wallet},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.tips.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list tips: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Tip
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode tips: %w", err)
	}
	return out, nil
}

// ListRecentTips returns the latest tips across all wallets,
// newest-first, capped at limit.
func (s *MongoDBStore) ListRecentTips(ctx context.Context, limit int) ([]Tip, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.tips.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list recent tips: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Tip
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode tips: %w", err)
	}
	return out, nil
}

// RecordPlatformTransaction persists a platform wallet movement after
// reserving its signature.
func (s *MongoDBStore) RecordPlatformTransaction(ctx context.Context, tx PlatformTransaction) error {
	if tx.ID == "" {
		return errors.New("storage: platform transaction id required")
	}
	if err := s.reserveSignature(ctx, tx.Signature); err != nil {
		return err
	}
	if _, err := s.platformTxs.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSignature
		}
		return fmt.Errorf("insert platform transaction: %w", err)
	}
	return nil
}

// ListPlatformTransactions returns a user's platform wallet history,
// newest-first, capped at limit.
func (s *MongoDBStore) ListPlatformTransactions(ctx context.Context, userWallet string, limit int) ([]PlatformTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.platformTxs.Find(ctx, bson.M{"user_wallet": userWallet}, opts)
	if err != nil {
		return nil, fmt.Errorf("list platform transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []PlatformTransaction
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode platform transactions: %w", err)
	}
	return out, nil
}

// HasSignatureBeenUsed reports whether the signature was recorded for
// any entity.
func (s *MongoDBStore) HasSignatureBeenUsed(ctx context.Context, signature string) (bool, error) {
	err := s.usedSignatures.FindOne(ctx, bson.M{"signature": signature}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return true, nil
}

// Close disconnects from MongoDB.
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
