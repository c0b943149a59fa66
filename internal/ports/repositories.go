package ports

import (
	"context"
	"time"

	"shop-mirror-sync-layer/internal/domain"
)

// ShopConnectionRepository defines persistence for connected shops.
// Token updates and sync stamps fan out to every row sharing the same
// external shop id.
type ShopConnectionRepository interface {
	Create(ctx context.Context, conn *domain.ShopConnection) error
	GetByID(ctx context.Context, id string) (*domain.ShopConnection, error)
	ListAll(ctx context.Context) ([]*domain.ShopConnection, error)
	ListByExternalShopID(ctx context.Context, externalShopID string) ([]*domain.ShopConnection, error)
	UpdateTokens(ctx context.Context, externalShopID, accessToken, refreshToken string, expiresAt time.Time) error
	StampSyncedAt(ctx context.Context, externalShopID string, resource domain.ResourceType, at time.Time) error
}

// OrderRepository defines persistence for mirrored orders.
type OrderRepository interface {
	// BulkUpsert writes a batch keyed by (shop id, order id) and returns
	// the number of records written. Re-upserting an existing record
	// refreshes its values without duplicating it.
	BulkUpsert(ctx context.Context, orders []domain.Order) (int, error)

	// ListOrderIDs returns the set of natural keys stored for a shop.
	ListOrderIDs(ctx context.Context, shopID string) (map[string]struct{}, error)

	// MaxCreatedTime returns the newest stored event timestamp for a
	// shop, or nil if no order is stored.
	MaxCreatedTime(ctx context.Context, shopID string) (*time.Time, error)

	CountByShop(ctx context.Context, shopID string) (int64, error)
	List(ctx context.Context, shopID string, limit, offset int) ([]domain.Order, error)
	SumTotalAmount(ctx context.Context, shopID string) (float64, error)
}

// ProductRepository defines persistence for mirrored product listings.
type ProductRepository interface {
	BulkUpsert(ctx context.Context, products []domain.Product) (int, error)

	// MergePerformance folds performance metrics onto already-stored
	// product rows by natural key and returns how many rows matched.
	MergePerformance(ctx context.Context, shopID string, reports []domain.ProductPerformance) (int, error)

	CountByShop(ctx context.Context, shopID string) (int64, error)
	List(ctx context.Context, shopID string, limit, offset int) ([]domain.Product, error)
}

// SettlementRepository defines persistence for mirrored settlements.
type SettlementRepository interface {
	BulkUpsert(ctx context.Context, settlements []domain.Settlement) (int, error)
	ListSettlementIDs(ctx context.Context, shopID string) (map[string]struct{}, error)
	MaxSettledTime(ctx context.Context, shopID string) (*time.Time, error)
	CountByShop(ctx context.Context, shopID string) (int64, error)
	List(ctx context.Context, shopID string, limit, offset int) ([]domain.Settlement, error)
	SumAmounts(ctx context.Context, shopID string) (settled float64, fees float64, err error)
}
