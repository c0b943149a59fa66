package repository

import (
	"context"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
	"shop-mirror-sync-layer/internal/infrastructure/repository/entity"
	"shop-mirror-sync-layer/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOrderRepository implements OrderRepository using MongoDB
type MongoOrderRepository struct {
	collection *mongo.Collection
}

// NewMongoOrderRepository creates a new MongoDB order repository
func NewMongoOrderRepository(db *mongo.Database) ports.OrderRepository {
	return &MongoOrderRepository{
		collection: db.Collection("orders"),
	}
}

// BulkUpsert writes a batch of orders keyed by (shop_id, order_id).
func (r *MongoOrderRepository) BulkUpsert(ctx context.Context, orders []domain.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(orders))
	for i := range orders {
		doc := entity.MongoOrderDocFromDomain(&orders[i])
		doc.UpdatedAt = time.Now()

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"shop_id": doc.ShopID, "order_id": doc.OrderID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	_, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert orders: %w", err)
	}

	return len(orders), nil
}

// ListOrderIDs returns the set of order natural keys stored for a shop
func (r *MongoOrderRepository) ListOrderIDs(ctx context.Context, shopID string) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{"order_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"shop_id": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list order ids: %w", err)
	}
	defer cursor.Close(ctx)

	ids := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc struct {
			OrderID string `bson:"order_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order id: %w", err)
		}
		ids[doc.OrderID] = struct{}{}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return ids, nil
}

// MaxCreatedTime returns the newest stored order timestamp for a shop
func (r *MongoOrderRepository) MaxCreatedTime(ctx context.Context, shopID string) (*time.Time, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "created_time", Value: -1}}).
		SetProjection(bson.M{"created_time": 1})

	var doc struct {
		CreatedTime time.Time `bson:"created_time"`
	}
	err := r.collection.FindOne(ctx, bson.M{"shop_id": shopID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get max order time: %w", err)
	}

	return &doc.CreatedTime, nil
}

// CountByShop returns how many orders are stored for a shop
func (r *MongoOrderRepository) CountByShop(ctx context.Context, shopID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"shop_id": shopID})
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

// List returns a page of stored orders, newest first
func (r *MongoOrderRepository) List(ctx context.Context, shopID string, limit, offset int) ([]domain.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{"shop_id": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []domain.Order
	for cursor.Next(ctx) {
		var doc entity.MongoOrderDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		orders = append(orders, *doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return orders, nil
}

// SumTotalAmount returns total mirrored order revenue for a shop
func (r *MongoOrderRepository) SumTotalAmount(ctx context.Context, shopID string) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"shop_id": shopID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$total_amount"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum order amounts: %w", err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var result struct {
			Total float64 `bson:"total"`
		}
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("failed to decode order sum: %w", err)
		}
		return result.Total, nil
	}

	return 0, cursor.Err()
}
