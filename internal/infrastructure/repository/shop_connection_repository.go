package repository

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/infrastructure/repository/entity"
	"shop-mirror-sync-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoShopConnectionRepository implements ShopConnectionRepository using MongoDB
type MongoShopConnectionRepository struct {
	collection *mongo.Collection
}

// NewMongoShopConnectionRepository creates a new MongoDB shop connection repository
func NewMongoShopConnectionRepository(db *mongo.Database) ports.ShopConnectionRepository {
	return &MongoShopConnectionRepository{
		collection: db.Collection("shop_connections"),
	}
}

// Create inserts a new shop connection
func (r *MongoShopConnectionRepository) Create(ctx context.Context, conn *domain.ShopConnection) error {
	doc := entity.MongoShopConnectionDocFromDomain(conn)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create shop connection: %w", err)
	}

	conn.ID = doc.ID.Hex()
	return nil
}

// GetByID retrieves a shop connection by its internal id
func (r *MongoShopConnectionRepository) GetByID(ctx context.Context, id string) (*domain.ShopConnection, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid shop connection id: %w", err)
	}

	var doc entity.MongoShopConnectionDoc
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop connection: %w", err)
	}

	return doc.ToDomain(), nil
}

// ListAll retrieves every connected shop
func (r *MongoShopConnectionRepository) ListAll(ctx context.Context) ([]*domain.ShopConnection, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list shop connections: %w", err)
	}
	defer cursor.Close(ctx)

	var conns []*domain.ShopConnection
	for cursor.Next(ctx) {
		var doc entity.MongoShopConnectionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode shop connection: %w", err)
		}
		conns = append(conns, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return conns, nil
}

// ListByExternalShopID retrieves every internal row aliasing one external shop
func (r *MongoShopConnectionRepository) ListByExternalShopID(ctx context.Context, externalShopID string) ([]*domain.ShopConnection, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"external_shop_id": externalShopID})
	if err != nil {
		return nil, fmt.Errorf("failed to list shop connections: %w", err)
	}
	defer cursor.Close(ctx)

	var conns []*domain.ShopConnection
	for cursor.Next(ctx) {
		var doc entity.MongoShopConnectionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode shop connection: %w", err)
		}
		conns = append(conns, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return conns, nil
}

// UpdateTokens persists a refreshed token pair to every row aliasing the
// external shop id.
func (r *MongoShopConnectionRepository) UpdateTokens(ctx context.Context, externalShopID, accessToken, refreshToken string, expiresAt time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"updated_at":       time.Now(),
		},
	}

	result, err := r.collection.UpdateMany(ctx, bson.M{"external_shop_id": externalShopID}, update)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("shop connection not found for external shop %s: %w", externalShopID, domain.ErrNotFound)
	}

	return nil
}

// StampSyncedAt records a successful resource sync on every row aliasing
// the external shop id.
func (r *MongoShopConnectionRepository) StampSyncedAt(ctx context.Context, externalShopID string, resource domain.ResourceType, at time.Time) error {
	field, ok := syncedAtField(resource)
	if !ok {
		return fmt.Errorf("unknown resource type %q", resource)
	}

	update := bson.M{
		"$set": bson.M{
			field:        at,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateMany(ctx, bson.M{"external_shop_id": externalShopID}, update)
	if err != nil {
		return fmt.Errorf("failed to stamp %s synced at: %w", resource, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("shop connection not found for external shop %s: %w", externalShopID, domain.ErrNotFound)
	}

	return nil
}

func syncedAtField(resource domain.ResourceType) (string, bool) {
	switch resource {
	case domain.ResourceOrders:
		return "orders_synced_at", true
	case domain.ResourceProducts:
		return "products_synced_at", true
	case domain.ResourceSettlements:
		return "settlements_synced_at", true
	case domain.ResourcePerformance:
		return "performance_synced_at", true
	}
	return "", false
}
