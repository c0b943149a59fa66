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

// MongoSettlementRepository implements SettlementRepository using MongoDB
type MongoSettlementRepository struct {
	collection *mongo.Collection
}

// NewMongoSettlementRepository creates a new MongoDB settlement repository
func NewMongoSettlementRepository(db *mongo.Database) ports.SettlementRepository {
	return &MongoSettlementRepository{
		collection: db.Collection("settlements"),
	}
}

// BulkUpsert writes a batch of settlements keyed by (shop_id, settlement_id).
func (r *MongoSettlementRepository) BulkUpsert(ctx context.Context, settlements []domain.Settlement) (int, error) {
	if len(settlements) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(settlements))
	for i := range settlements {
		doc := entity.MongoSettlementDocFromDomain(&settlements[i])
		doc.UpdatedAt = time.Now()

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"shop_id": doc.ShopID, "settlement_id": doc.SettlementID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	_, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert settlements: %w", err)
	}

	return len(settlements), nil
}

// ListSettlementIDs returns the set of settlement natural keys stored for a shop
func (r *MongoSettlementRepository) ListSettlementIDs(ctx context.Context, shopID string) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{"settlement_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"shop_id": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement ids: %w", err)
	}
	defer cursor.Close(ctx)

	ids := make(map[string]struct{})
	for cursor.Next(ctx) {
		var doc struct {
			SettlementID string `bson:"settlement_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode settlement id: %w", err)
		}
		ids[doc.SettlementID] = struct{}{}
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return ids, nil
}

// MaxSettledTime returns the newest stored settlement timestamp for a shop
func (r *MongoSettlementRepository) MaxSettledTime(ctx context.Context, shopID string) (*time.Time, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "settled_time", Value: -1}}).
		SetProjection(bson.M{"settled_time": 1})

	var doc struct {
		SettledTime time.Time `bson:"settled_time"`
	}
	err := r.collection.FindOne(ctx, bson.M{"shop_id": shopID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get max settlement time: %w", err)
	}

	return &doc.SettledTime, nil
}

// CountByShop returns how many settlements are stored for a shop
func (r *MongoSettlementRepository) CountByShop(ctx context.Context, shopID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"shop_id": shopID})
	if err != nil {
		return 0, fmt.Errorf("failed to count settlements: %w", err)
	}
	return count, nil
}

// List returns a page of stored settlements, newest first
func (r *MongoSettlementRepository) List(ctx context.Context, shopID string, limit, offset int) ([]domain.Settlement, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "settled_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{"shop_id": shopID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer cursor.Close(ctx)

	var settlements []domain.Settlement
	for cursor.Next(ctx) {
		var doc entity.MongoSettlementDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode settlement: %w", err)
		}
		settlements = append(settlements, *doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return settlements, nil
}

// SumAmounts returns total settled revenue and fees for a shop
func (r *MongoSettlementRepository) SumAmounts(ctx context.Context, shopID string) (float64, float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"shop_id": shopID}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"settled": bson.M{"$sum": "$settlement_amount"},
			"fees":    bson.M{"$sum": "$fee_amount"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum settlement amounts: %w", err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var result struct {
			Settled float64 `bson:"settled"`
			Fees    float64 `bson:"fees"`
		}
		if err := cursor.Decode(&result); err != nil {
			return 0, 0, fmt.Errorf("failed to decode settlement sum: %w", err)
		}
		return result.Settled, result.Fees, nil
	}

	return 0, 0, cursor.Err()
}
