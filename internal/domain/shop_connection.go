package domain

import "time"

// ShopConnection represents one connected marketplace storefront.
// A single external shop may be connected under more than one account,
// producing multiple rows with the same ExternalShopID. Token refreshes
// and sync timestamps must be propagated to every aliased row.
type ShopConnection struct {
	ID             string    `json:"id" bson:"_id"`
	AccountID      string    `json:"account_id" bson:"account_id"`
	ExternalShopID string    `json:"external_shop_id" bson:"external_shop_id"`
	ShopName       string    `json:"shop_name" bson:"shop_name"`
	Region         string    `json:"region" bson:"region"`
	AccessToken    string    `json:"-" bson:"access_token"`
	RefreshToken   string    `json:"-" bson:"refresh_token"`
	TokenExpiresAt time.Time `json:"token_expires_at" bson:"token_expires_at"`

	OrdersSyncedAt      *time.Time `json:"orders_synced_at" bson:"orders_synced_at"`
	ProductsSyncedAt    *time.Time `json:"products_synced_at" bson:"products_synced_at"`
	SettlementsSyncedAt *time.Time `json:"settlements_synced_at" bson:"settlements_synced_at"`
	PerformanceSyncedAt *time.Time `json:"performance_synced_at" bson:"performance_synced_at"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// SyncedAt returns the last-synced instant for a resource, or nil if the
// resource has never been synced for this connection.
func (c *ShopConnection) SyncedAt(resource ResourceType) *time.Time {
	switch resource {
	case ResourceOrders:
		return c.OrdersSyncedAt
	case ResourceProducts:
		return c.ProductsSyncedAt
	case ResourceSettlements:
		return c.SettlementsSyncedAt
	case ResourcePerformance:
		return c.PerformanceSyncedAt
	}
	return nil
}

// TokenExpired reports whether the access token has already expired.
func (c *ShopConnection) TokenExpired(now time.Time) bool {
	return !c.TokenExpiresAt.After(now)
}
