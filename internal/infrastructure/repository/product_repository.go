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

// MongoProductRepository implements ProductRepository using MongoDB
type MongoProductRepository struct {
	collection *mongo.Collection
}

// NewMongoProductRepository creates a new MongoDB product repository
func NewMongoProductRepository(db *mongo.Database) ports.ProductRepository {
	return &MongoProductRepository{
		collection: db.Collection("products"),
	}
}

// BulkUpsert writes a batch of products keyed by (shop_id, product_id).
// Performance fields are deliberately left out of the update so a
// listing refresh never clobbers previously merged analytics.
func (r *MongoProductRepository) BulkUpsert(ctx context.Context, products []domain.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(products))
	for i := range products {
		doc := entity.MongoProductDocFromDomain(&products[i])

		set := bson.M{
			"shop_id":          doc.ShopID,
			"external_shop_id": doc.ExternalShopID,
			"product_id":       doc.ProductID,
			"title":            doc.Title,
			"status":           doc.Status,
			"price":            doc.Price,
			"stock":            doc.Stock,
			"images":           doc.Images,
			"created_time":     doc.CreatedTime,
			"payload":          doc.Payload,
			"updated_at":       time.Now(),
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"shop_id": doc.ShopID, "product_id": doc.ProductID}).
			SetUpdate(bson.M{"$set": set}).
			SetUpsert(true))
	}

	_, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert products: %w", err)
	}

	return len(products), nil
}

// MergePerformance folds report metrics onto stored product rows by
// natural key and returns how many rows matched.
func (r *MongoProductRepository) MergePerformance(ctx context.Context, shopID string, reports []domain.ProductPerformance) (int, error) {
	if len(reports) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(reports))
	for _, report := range reports {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"shop_id": shopID, "product_id": report.ProductID}).
			SetUpdate(bson.M{"$set": bson.M{
				"click_through_rate": report.ClickThroughRate,
				"gmv":                report.GMV,
				"order_count":        report.OrderCount,
				"units_sold":         report.UnitsSold,
				"updated_at":         time.Now(),
			}}))
	}

	result, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to merge performance: %w", err)
	}

	return int(result.MatchedCount), nil
}

// CountByShop returns how many products are stored for a shop
func (r *MongoProductRepository) CountByShop(ctx context.Context, shopID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"shop_id": shopID})
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// List returns a page of stored products
func (r *MongoProductRepository) List(ctx context.Context, shopID string, limit, offset int) ([]domain.Product, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{"shop_id": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []domain.Product
	for cursor.Next(ctx) {
		var doc entity.MongoProductDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products = append(products, *doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return products, nil
}
