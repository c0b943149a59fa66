package entity

import (
	"time"

	"shop-mirror-sync-layer/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoShopConnectionDoc represents a connected shop in MongoDB
type MongoShopConnectionDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	AccountID      string             `bson:"account_id"`
	ExternalShopID string             `bson:"external_shop_id"`
	ShopName       string             `bson:"shop_name"`
	Region         string             `bson:"region"`
	AccessToken    string             `bson:"access_token"`
	RefreshToken   string             `bson:"refresh_token"`
	TokenExpiresAt time.Time          `bson:"token_expires_at"`

	OrdersSyncedAt      *time.Time `bson:"orders_synced_at,omitempty"`
	ProductsSyncedAt    *time.Time `bson:"products_synced_at,omitempty"`
	SettlementsSyncedAt *time.Time `bson:"settlements_synced_at,omitempty"`
	PerformanceSyncedAt *time.Time `bson:"performance_synced_at,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoShopConnectionDoc) ToDomain() *domain.ShopConnection {
	return &domain.ShopConnection{
		ID:                  d.ID.Hex(),
		AccountID:           d.AccountID,
		ExternalShopID:      d.ExternalShopID,
		ShopName:            d.ShopName,
		Region:              d.Region,
		AccessToken:         d.AccessToken,
		RefreshToken:        d.RefreshToken,
		TokenExpiresAt:      d.TokenExpiresAt,
		OrdersSyncedAt:      d.OrdersSyncedAt,
		ProductsSyncedAt:    d.ProductsSyncedAt,
		SettlementsSyncedAt: d.SettlementsSyncedAt,
		PerformanceSyncedAt: d.PerformanceSyncedAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// MongoShopConnectionDocFromDomain converts a domain entity to a MongoDB document
func MongoShopConnectionDocFromDomain(conn *domain.ShopConnection) *MongoShopConnectionDoc {
	doc := &MongoShopConnectionDoc{
		AccountID:           conn.AccountID,
		ExternalShopID:      conn.ExternalShopID,
		ShopName:            conn.ShopName,
		Region:              conn.Region,
		AccessToken:         conn.AccessToken,
		RefreshToken:        conn.RefreshToken,
		TokenExpiresAt:      conn.TokenExpiresAt,
		OrdersSyncedAt:      conn.OrdersSyncedAt,
		ProductsSyncedAt:    conn.ProductsSyncedAt,
		SettlementsSyncedAt: conn.SettlementsSyncedAt,
		PerformanceSyncedAt: conn.PerformanceSyncedAt,
		CreatedAt:           conn.CreatedAt,
		UpdatedAt:           conn.UpdatedAt,
	}

	if conn.ID != "" {
		if objID, err := primitive.ObjectIDFromHex(conn.ID); err == nil {
			doc.ID = objID
		}
	}

	return doc
}
