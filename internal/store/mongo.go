package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// MongoStore keeps carts and orders as documents in MongoDB.
type MongoStore struct {
	client *mongo.Client
	carts  *mongo.Collection
	orders *mongo.Collection
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetSocketTimeout(45 * time.Second).
		SetMaxPoolSize(10).
		SetRetryWrites(true).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		carts:  db.Collection("carts"),
		orders: db.Collection("orders"),
	}

	if err := s.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

// CreateIndexes creates the uniqueness and TTL indexes. It is safe to run on
// every startup.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	cartIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := s.carts.Indexes().CreateMany(ctx, cartIndexes); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	orderIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "stripeSessionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "customerEmail", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "paymentStatus", Value: 1}}},
		{Keys: bson.D{{Key: "orderStatus", Value: 1}}},
	}
	if _, err := s.orders.Indexes().CreateMany(ctx, orderIndexes); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	return nil
}

func (s *MongoStore) FindCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.carts.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: cart %s", models.ErrNotFound, sessionID)
		}
		return nil, mongoErr("failed to get cart", err)
	}
	normalizeCart(&cart)
	return &cart, nil
}

func (s *MongoStore) FindOrCreateCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	fresh := models.NewCart(sessionID, time.Now().UTC())

	filter := bson.M{"sessionId": sessionID}
	update := bson.M{"$setOnInsert": bson.M{
		"items":       fresh.Items,
		"total":       fresh.Total,
		"itemCount":   fresh.ItemCount,
		"lastUpdated": fresh.LastUpdated,
		"expiresAt":   fresh.ExpiresAt,
		"createdAt":   fresh.CreatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var cart models.Cart
	err := s.carts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if err != nil {
		// Two concurrent upserts for a new session: the loser sees a
		// duplicate key and the winner's document is already there.
		if mongo.IsDuplicateKeyError(err) {
			return s.FindCart(ctx, sessionID)
		}
		return nil, mongoErr("failed to find or create cart", err)
	}
	normalizeCart(&cart)
	return &cart, nil
}

func (s *MongoStore) SaveCart(ctx context.Context, cart *models.Cart) error {
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.LastUpdated
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.carts.ReplaceOne(ctx, bson.M{"sessionId": cart.SessionID}, cart, opts)
	if err != nil {
		return mongoErr("failed to save cart", err)
	}
	return nil
}

func (s *MongoStore) DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.carts.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, mongoErr("failed to delete expired carts", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.orders.InsertOne(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: order for stripe session %s", models.ErrDuplicate, order.StripeSessionID)
		}
		return mongoErr("failed to create order", err)
	}
	return nil
}

func (s *MongoStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"_id": id}, id)
}

func (s *MongoStore) GetOrderByStripeSession(ctx context.Context, stripeSessionID string) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"stripeSessionId": stripeSessionID}, stripeSessionID)
}

func (s *MongoStore) findOrder(ctx context.Context, filter bson.M, key string) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, key)
		}
		return nil, mongoErr("failed to get order", err)
	}
	return &order, nil
}

func (s *MongoStore) UpdatePaymentStatus(ctx context.Context, id, status string) error {
	update := bson.M{"$set": bson.M{
		"paymentStatus": status,
		"updatedAt":     time.Now().UTC(),
	}}

	res, err := s.orders.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mongoErr("failed to update payment status", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	return nil
}

func (s *MongoStore) AdvanceOrderStatus(ctx context.Context, id, from, to string) (bool, error) {
	filter := bson.M{"_id": id, "orderStatus": from}
	update := bson.M{"$set": bson.M{
		"orderStatus": to,
		"updatedAt":   time.Now().UTC(),
	}}

	res, err := s.orders.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, mongoErr("failed to advance order status", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return mongoErr("ping failed", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// mongoErr tags connectivity failures as models.ErrStoreUnavailable.
func mongoErr(msg string, err error) error {
	var selErr topology.ServerSelectionError
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.As(err, &selErr) {
		return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func normalizeCart(c *models.Cart) {
	if c.Items == nil {
		c.Items = models.CartItems{}
	}
}
